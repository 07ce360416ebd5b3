package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/courseflow/courseflow/internal/core"
)

// User is an account row.
type User struct {
	ID        string
	Email     string
	Tier      core.Tier
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertUser inserts or updates the account. CreatedAt is kept on update.
func (s *Store) UpsertUser(ctx context.Context, user User) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	id := strings.TrimSpace(user.ID)
	if id == "" {
		return errors.New("user id is required")
	}
	if user.Tier == "" {
		user.Tier = core.TierFree
	}
	if user.Role == "" {
		user.Role = "user"
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, tier, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			tier = excluded.tier,
			role = excluded.role,
			updated_at = excluded.updated_at
	`, id, user.Email, string(user.Tier), user.Role, user.CreatedAt.Unix(), user.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	return nil
}

// GetUser returns the account or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, userID string) (User, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return User{}, err
	}

	var (
		user      User
		tier      string
		createdAt int64
		updatedAt int64
	)
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, email, tier, role, created_at, updated_at
		FROM users
		WHERE id = ?
	`, userID)
	if err := row.Scan(&user.ID, &user.Email, &tier, &user.Role, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("fetch user: %w", err)
	}
	user.Tier = core.Tier(tier)
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	user.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return user, nil
}

// UserTier returns the plan of userID. Accounts without a row have not
// been through checkout yet and are on the free plan.
func (s *Store) UserTier(ctx context.Context, userID string) (core.Tier, error) {
	user, err := s.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return core.TierFree, nil
	}
	if err != nil {
		return "", err
	}
	if user.Tier == "" {
		return core.TierFree, nil
	}
	return user.Tier, nil
}

// SetUserTier moves userID to tier, creating the account row if needed.
func (s *Store) SetUserTier(ctx context.Context, userID string, tier core.Tier, at time.Time) error {
	return setUserTier(ctx, s.DB, userID, tier, at)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setUserTier(ctx context.Context, db execer, userID string, tier core.Tier, at time.Time) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, tier, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tier = excluded.tier,
			updated_at = excluded.updated_at
	`, userID, string(tier), at.Unix(), at.Unix())
	if err != nil {
		return fmt.Errorf("update user tier: %w", err)
	}
	return nil
}
