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

// Billing event types understood by ApplyBillingEvent. Other types are
// recorded but change nothing.
const (
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
	EventSubscriptionDeleted  = "subscription.deleted"
)

// ApplyBillingEvent records the event and applies its tier change in one
// transaction. It reports false when the event id was already recorded.
func (s *Store) ApplyBillingEvent(ctx context.Context, event core.BillingEvent) (bool, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(event.ID) == "" {
		return false, errors.New("event id is required")
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin billing tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO billing_events (event_id, type, user_id, tier, received_at)
		VALUES (?, ?, ?, ?, ?)
	`, event.ID, event.Type, event.UserID, string(event.Tier), event.ReceivedAt.Unix())
	if err != nil {
		return false, fmt.Errorf("record billing event: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record billing event: %w", err)
	}
	if inserted == 0 {
		return false, nil
	}

	if tier, ok := TierForEvent(event); ok {
		if err := setUserTier(ctx, tx, event.UserID, tier, event.ReceivedAt); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit billing event: %w", err)
	}
	return true, nil
}

// TierForEvent returns the plan an event moves its user to.
func TierForEvent(event core.BillingEvent) (core.Tier, bool) {
	if strings.TrimSpace(event.UserID) == "" {
		return "", false
	}
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		switch event.Tier {
		case core.TierFree, core.TierPro, core.TierTeam:
			return event.Tier, true
		}
	case EventSubscriptionCanceled, EventSubscriptionDeleted:
		return core.TierFree, true
	}
	return "", false
}

// BillingEventApplied reports whether eventID has been recorded.
func (s *Store) BillingEventApplied(ctx context.Context, eventID string) (bool, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return false, err
	}
	var id string
	err = s.DB.QueryRowContext(ctx, `SELECT event_id FROM billing_events WHERE event_id = ?`, eventID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup billing event: %w", err)
	}
	return true, nil
}
