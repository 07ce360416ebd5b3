package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/courseflow/courseflow/internal/core"
	"github.com/courseflow/courseflow/internal/core/engine"
	apperrors "github.com/courseflow/courseflow/internal/errors"
	"github.com/courseflow/courseflow/internal/metrics"
	"github.com/courseflow/courseflow/internal/observability"
	"github.com/courseflow/courseflow/internal/server/middleware"
)

// Default header names of the payment provider.
const (
	DefaultSignatureHeader = "X-Webhook-Signature"
	DefaultTimestampHeader = "X-Webhook-Timestamp"

	defaultWebhookBodyLimit = 1 << 20
)

// BillingApplier applies a billing event. It reports false when the event
// had already been applied.
type BillingApplier interface {
	ApplyBillingEvent(ctx context.Context, event core.BillingEvent) (bool, error)
}

// WebhookHandler receives payment provider deliveries.
type WebhookHandler struct {
	Guard           *engine.WebhookGuard
	Secret          []byte
	SignatureHeader string
	TimestampHeader string
	RateLimit       engine.WebhookRateLimitOptions
	Applier         BillingApplier
	MaxBodyBytes    int64
	Clock           func() time.Time
}

type webhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		UserID string    `json:"user_id"`
		Tier   core.Tier `json:"tier"`
	} `json:"data"`
}

// WebhookAck is returned for accepted deliveries.
type WebhookAck struct {
	Received bool   `json:"received"`
	EventID  string `json:"eventId"`
}

// ServeHTTP runs a delivery through ingress limiting, signature, freshness
// and replay checks before applying it once.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := h.Guard.CheckWebhookRateLimit(ctx, middleware.RemoteIdentifier(r), h.RateLimit)
	middleware.SetRateLimitHeaders(w, core.RateLimitResult{
		Allowed:    limit.Allowed,
		Limit:      limit.Limit,
		Remaining:  limit.Remaining,
		ResetAt:    limit.ResetAt,
		RetryAfter: limit.RetryAfter,
	})
	if !limit.Allowed {
		metrics.RecordWebhookRejection("rate_limited")
		apperrors.RespondRateLimited(w, r, middleware.RateLimitMessage)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.bodyLimit()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.RecordWebhookRejection("payload")
			respondWithError(w, r, apperrors.NewPayloadTooLargeError("webhook payload too large"))
			return
		}
		respondWithError(w, r, apperrors.WrapInvalidInput(ctx, err, "unreadable webhook payload"))
		return
	}

	timestamp := strings.TrimSpace(r.Header.Get(h.timestampHeader()))
	if err := engine.VerifySignature(h.Secret, r.Header.Get(h.signatureHeader()), timestamp, body); err != nil {
		metrics.RecordWebhookRejection("signature")
		h.logRejection(r, "signature", "", err)
		respondWithError(w, r, apperrors.WrapInvalidSignature(ctx, err, "invalid webhook signature"))
		return
	}

	if !h.Guard.VerifyTimestamp(timestamp) {
		metrics.RecordWebhookRejection("stale")
		h.logRejection(r, "stale", "", nil)
		respondWithError(w, r, apperrors.NewStaleEventError("webhook timestamp outside the accepted window"))
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(ctx, err, "malformed webhook payload"))
		return
	}
	payload.ID = strings.TrimSpace(payload.ID)
	if payload.ID == "" || strings.TrimSpace(payload.Type) == "" {
		respondWithError(w, r, apperrors.NewValidationError("webhook event id and type are required"))
		return
	}

	if h.Guard.IsEventProcessed(ctx, payload.ID) {
		metrics.RecordWebhookRejection("duplicate")
		h.logRejection(r, "duplicate", payload.ID, nil)
		respondWithError(w, r, apperrors.NewDuplicateEventError("webhook event already processed"))
		return
	}

	event := core.BillingEvent{
		ID:         payload.ID,
		Type:       payload.Type,
		UserID:     payload.Data.UserID,
		Tier:       payload.Data.Tier,
		ReceivedAt: h.now(),
	}
	if h.Applier != nil {
		applied, err := h.Applier.ApplyBillingEvent(ctx, event)
		if err != nil {
			// Not marked, so the provider's retry is processed.
			respondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to process webhook"))
			return
		}
		if applied {
			metrics.RecordWebhookProcessed(event.Type)
		}
	}

	if err := h.Guard.MarkEventProcessed(ctx, payload.ID); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("failed to mark webhook event processed",
			zap.String("event_id", payload.ID),
			zap.Error(err),
		)
	}

	writeJSON(w, http.StatusOK, WebhookAck{Received: true, EventID: payload.ID})
}

func (h *WebhookHandler) logRejection(r *http.Request, reason, eventID string, err error) {
	if observability.ServerLogger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("reason", reason),
		zap.String("request_id", middleware.GetRequestID(r.Context())),
	}
	if eventID != "" {
		fields = append(fields, zap.String("event_id", eventID))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	observability.ServerLogger.Info("webhook rejected", fields...)
}

func (h *WebhookHandler) signatureHeader() string {
	if h.SignatureHeader == "" {
		return DefaultSignatureHeader
	}
	return h.SignatureHeader
}

func (h *WebhookHandler) timestampHeader() string {
	if h.TimestampHeader == "" {
		return DefaultTimestampHeader
	}
	return h.TimestampHeader
}

func (h *WebhookHandler) bodyLimit() int64 {
	if h.MaxBodyBytes <= 0 {
		return defaultWebhookBodyLimit
	}
	return h.MaxBodyBytes
}

func (h *WebhookHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now().UTC()
}
