package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseflow/courseflow/internal/core/engine"
	"github.com/courseflow/courseflow/internal/kv"
	"github.com/courseflow/courseflow/internal/output"
)

func TestLookupWebhookEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	guard := &engine.WebhookGuard{Store: kv.NewMemoryStore(), Clock: func() time.Time { return now }}
	require.NoError(t, guard.MarkEventProcessed(ctx, "evt_123"))

	status, err := lookupWebhookEvent(ctx, guard, "evt_123")
	require.NoError(t, err)
	assert.True(t, status.Processed)
	require.NotNil(t, status.ProcessedAt)
	assert.Equal(t, now, *status.ProcessedAt)

	status, err = lookupWebhookEvent(ctx, guard, "evt_999")
	require.NoError(t, err)
	assert.False(t, status.Processed)
	assert.Nil(t, status.ProcessedAt)

	// Past retention the record no longer counts.
	now = now.Add(25 * time.Hour)
	status, err = lookupWebhookEvent(ctx, guard, "evt_123")
	require.NoError(t, err)
	assert.False(t, status.Processed)
}

func TestWriteWebhookEventStatus(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, writeWebhookEventStatus(output.FormatTable, &buf, webhookEventStatus{EventID: "evt_123", Processed: true, ProcessedAt: &at}))
	assert.Equal(t, "evt_123: processed at 2026-10-16T09:30:00Z\n", buf.String())

	buf.Reset()
	require.NoError(t, writeWebhookEventStatus(output.FormatTable, &buf, webhookEventStatus{EventID: "evt_9"}))
	assert.Equal(t, "evt_9: not processed within the retention window\n", buf.String())

	buf.Reset()
	require.NoError(t, writeWebhookEventStatus(output.FormatJSON, &buf, webhookEventStatus{EventID: "evt_9"}))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, false, decoded["processed"])
	assert.NotContains(t, decoded, "processed_at")
}
