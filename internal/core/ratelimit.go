package core

import "time"

// RateLimitResult is the post-increment state of a fixed-window counter.
type RateLimitResult struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after"`

	// FailedOpen is set when the request was admitted because the limiter
	// itself could not decide.
	FailedOpen bool `json:"failed_open,omitempty"`
}

// RateLimitEntry is a stored counter as seen by admin tooling.
type RateLimitEntry struct {
	Key           string    `json:"key"`
	Count         int64     `json:"count"`
	WindowResetAt time.Time `json:"window_reset_at"`
}

// WebhookRateLimitResult is the reply of the coarse webhook ingress limiter.
type WebhookRateLimitResult struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after"`
}

// ProcessedEventRecord marks a webhook event id as handled.
type ProcessedEventRecord struct {
	EventID     string    `json:"event_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// BillingEvent is the normalised payload of a payments-provider webhook.
type BillingEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Tier       Tier      `json:"tier,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}
