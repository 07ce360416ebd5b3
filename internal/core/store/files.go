package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/courseflow/courseflow/internal/core"
)

// RecordFile stores file metadata. Content lives in object storage.
func (s *Store) RecordFile(ctx context.Context, file core.FileRecord) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(file.ID) == "" || strings.TrimSpace(file.UserID) == "" {
		return errors.New("file id and user id are required")
	}
	if strings.TrimSpace(file.ContentHash) == "" {
		return errors.New("content hash is required")
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO files (id, user_id, name, content_hash, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, file.ID, file.UserID, file.Name, file.ContentHash, file.SizeBytes, file.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("store file: %w", err)
	}
	return nil
}

// ListFiles returns the files of userID, oldest first.
func (s *Store) ListFiles(ctx context.Context, userID string) ([]core.FileRecord, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, user_id, name, content_hash, size_bytes, created_at
		FROM files
		WHERE user_id = ?
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	files := []core.FileRecord{}
	for rows.Next() {
		var (
			file      core.FileRecord
			createdAt int64
		)
		if err := rows.Scan(&file.ID, &file.UserID, &file.Name, &file.ContentHash, &file.SizeBytes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan files: %w", err)
		}
		file.CreatedAt = time.Unix(createdAt, 0).UTC()
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}
