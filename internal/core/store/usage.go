package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/courseflow/courseflow/internal/core"
	"github.com/courseflow/courseflow/internal/core/usage"
)

// AI usage kinds.
const (
	AIKindSummary = "summary"
	AIKindChat    = "chat"
)

const (
	bytesPerMB = 1024 * 1024
	secPerDay  = 24 * 60 * 60
)

// AIUsage is one billable AI call.
type AIUsage struct {
	UserID    string
	Kind      string
	CostEUR   float64
	CreatedAt time.Time
}

// RecordAIUsage appends an AI call to the ledger.
func (s *Store) RecordAIUsage(ctx context.Context, record AIUsage) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(record.UserID) == "" {
		return errors.New("user id is required")
	}
	if record.Kind == "" {
		record.Kind = AIKindSummary
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO ai_usage (user_id, kind, cost_eur, created_at)
		VALUES (?, ?, ?, ?)
	`, record.UserID, record.Kind, record.CostEUR, record.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("store ai usage: %w", err)
	}
	return nil
}

// UsageSnapshot reads current consumption. Storage counts each distinct
// content hash once; AI figures cover the calendar month of now (UTC).
func (s *Store) UsageSnapshot(ctx context.Context, userID string, now time.Time) (core.UsageSnapshot, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return core.UsageSnapshot{}, err
	}

	var storageBytes int64
	row := s.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(size_bytes), 0)
		FROM (
			SELECT MAX(size_bytes) AS size_bytes
			FROM files
			WHERE user_id = ?
			GROUP BY content_hash
		)
	`, userID)
	if err := row.Scan(&storageBytes); err != nil {
		return core.UsageSnapshot{}, fmt.Errorf("sum storage: %w", err)
	}

	monthStart := startOfMonth(now).Unix()
	var (
		summaries int
		spend     float64
	)
	row = s.DB.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(cost_eur), 0)
		FROM ai_usage
		WHERE user_id = ? AND created_at >= ?
	`, AIKindSummary, userID, monthStart)
	if err := row.Scan(&summaries, &spend); err != nil {
		return core.UsageSnapshot{}, fmt.Errorf("sum ai usage: %w", err)
	}

	files, err := s.ListFiles(ctx, userID)
	if err != nil {
		return core.UsageSnapshot{}, err
	}

	return core.UsageSnapshot{
		StorageUsedMB:       float64(storageBytes) / bytesPerMB,
		AISummariesUsed:     summaries,
		AISpendThisMonthEUR: spend,
		FileHashHistogram:   usage.HashHistogram(files),
	}, nil
}

// UsageHistory returns one bucket per UTC day for the last days days,
// ending with today. Days before the account existed are omitted so a new
// user is not measured against an empty baseline.
func (s *Store) UsageHistory(ctx context.Context, userID string, days int, now time.Time) (core.UsageHistory, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return core.UsageHistory{}, err
	}
	if days <= 0 {
		days = 1
	}

	today := startOfDay(now)
	first := today.AddDate(0, 0, -(days - 1))
	if user, err := s.GetUser(ctx, userID); err == nil {
		if created := startOfDay(user.CreatedAt); created.After(first) {
			first = created
		}
	} else if !errors.Is(err, ErrNotFound) {
		return core.UsageHistory{}, err
	}
	if first.After(today) {
		first = today
	}

	buckets := map[int64]*core.DailyUsage{}
	history := core.UsageHistory{UserID: userID}
	for day := first; !day.After(today); day = day.AddDate(0, 0, 1) {
		history.Days = append(history.Days, core.DailyUsage{Day: day})
	}
	for i := range history.Days {
		buckets[history.Days[i].Day.Unix()/secPerDay] = &history.Days[i]
	}

	end := today.Add(24 * time.Hour).Unix()
	rows, err := s.DB.QueryContext(ctx, `
		SELECT created_at / ? AS day, COALESCE(SUM(size_bytes), 0), COUNT(*)
		FROM files
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
		GROUP BY day
	`, secPerDay, userID, first.Unix(), end)
	if err != nil {
		return core.UsageHistory{}, fmt.Errorf("file history: %w", err)
	}
	for rows.Next() {
		var (
			day   int64
			bytes int64
			count int
		)
		if err := rows.Scan(&day, &bytes, &count); err != nil {
			_ = rows.Close()
			return core.UsageHistory{}, fmt.Errorf("scan file history: %w", err)
		}
		if bucket, ok := buckets[day]; ok {
			bucket.StorageMB = float64(bytes) / bytesPerMB
			bucket.FilesStored = count
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return core.UsageHistory{}, fmt.Errorf("file history: %w", err)
	}
	_ = rows.Close()

	rows, err = s.DB.QueryContext(ctx, `
		SELECT created_at / ? AS day, COUNT(*), COALESCE(SUM(cost_eur), 0)
		FROM ai_usage
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
		GROUP BY day
	`, secPerDay, userID, first.Unix(), end)
	if err != nil {
		return core.UsageHistory{}, fmt.Errorf("ai history: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup
	for rows.Next() {
		var (
			day   int64
			calls int
			spend float64
		)
		if err := rows.Scan(&day, &calls, &spend); err != nil {
			return core.UsageHistory{}, fmt.Errorf("scan ai history: %w", err)
		}
		if bucket, ok := buckets[day]; ok {
			bucket.AICalls = calls
			bucket.AISpendEUR = spend
		}
	}
	if err := rows.Err(); err != nil {
		return core.UsageHistory{}, fmt.Errorf("ai history: %w", err)
	}

	return history, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
