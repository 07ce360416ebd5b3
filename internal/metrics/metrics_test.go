package metrics

import (
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseflow/courseflow/internal/observability"
)

func TestRecordersWithoutTelemetry(t *testing.T) {
	previous := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = previous })

	assert.NotPanics(t, func() {
		RecordOperation("usage.report", true)
		RecordHealthCheck("store", false, time.Millisecond)
		RecordHTTPError("/api/billing/checkout", "RATE_LIMITED", 429)
		RecordHTTPError("", "NOT_FOUND", 404)
		RecordPanic()
		RecordRateLimitDecision("checkout", false)
		RecordFailOpen("ratelimit", "increment")
		RecordWebhookRejection("stale")
		RecordWebhookProcessed("subscription.updated")
		RecordAbuseAssessment("high", true)
		RecordSweep("ratelimit", 3)
	})
}

func TestRecordersWithTelemetry(t *testing.T) {
	previous := observability.TelemetrySystem
	t.Cleanup(func() { observability.TelemetrySystem = previous })

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)
	observability.TelemetrySystem = sys

	RecordRateLimitDecision("portal", true)
	RecordRateLimitDecision("portal", false)
	RecordFailOpen("webhook", "lookup")
	RecordWebhookRejection("duplicate")
	RecordWebhookProcessed("subscription.updated")
	RecordAbuseAssessment("medium", false)
	RecordSweep("webhook", 0)
	RecordSweep("webhook", 2)
	RecordHTTPError("/api/usage", "RATE_LIMITED", 429)
	RecordHTTPError("", "NOT_FOUND", 404)
	SetServerStartTime(time.Now().Unix())

	assert.Equal(t, 2, collector.CountMetricsByName(RateLimitDecisionsTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(RateLimitFailOpenTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(WebhookRejectionsTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(WebhookProcessedTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(AbuseAssessmentsTotal))
	assert.Equal(t, 0, collector.CountMetricsByName(CostAnomaliesTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(KVSweptEntriesTotal))
	assert.Equal(t, 2, collector.CountMetricsByName(ErrorsTotalName))
	assert.Equal(t, 1, collector.CountMetricsByName(ErrorsByEndpointName))
	assert.Equal(t, 1, collector.CountMetricsByName(ServerStartTime))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "allowed", outcome(true, "allowed", "denied"))
	assert.Equal(t, "denied", outcome(false, "allowed", "denied"))
}
