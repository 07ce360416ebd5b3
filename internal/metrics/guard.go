package metrics

import (
	"github.com/courseflow/courseflow/internal/observability"
)

// Guard metric names.
const (
	RateLimitDecisionsTotal = "ratelimit_decisions_total"
	RateLimitFailOpenTotal  = "ratelimit_fail_open_total"
	WebhookRejectionsTotal  = "webhook_rejections_total"
	WebhookProcessedTotal   = "webhook_events_processed_total"
	AbuseAssessmentsTotal   = "abuse_assessments_total"
	CostAnomaliesTotal      = "cost_anomalies_total"
	KVSweptEntriesTotal     = "kv_swept_entries_total"
)

// RecordRateLimitDecision counts an allow or deny for a route.
func RecordRateLimitDecision(route string, allowed bool) {
	counter(RateLimitDecisionsTotal, map[string]string{
		"route":   route,
		"outcome": outcome(allowed, "allowed", "denied"),
	})
}

// RecordFailOpen counts a guard that let traffic through because its store failed.
func RecordFailOpen(component, operation string) {
	counter(RateLimitFailOpenTotal, map[string]string{
		"component": component,
		"operation": operation,
	})
}

// RecordWebhookRejection counts webhook deliveries refused before processing.
// Reason is one of signature, stale, duplicate, rate_limited, payload.
func RecordWebhookRejection(reason string) {
	counter(WebhookRejectionsTotal, map[string]string{"reason": reason})
}

// RecordWebhookProcessed counts events applied to billing state.
func RecordWebhookProcessed(eventType string) {
	counter(WebhookProcessedTotal, map[string]string{"type": eventType})
}

// RecordAbuseAssessment counts assessments by resulting risk level.
func RecordAbuseAssessment(level string, anomalous bool) {
	counter(AbuseAssessmentsTotal, map[string]string{"level": level})
	if anomalous {
		counter(CostAnomaliesTotal, nil)
	}
}

// RecordSweep records entries removed by a background sweeper.
func RecordSweep(sweeper string, removed int) {
	if observability.TelemetrySystem == nil || removed <= 0 {
		return
	}
	_ = observability.TelemetrySystem.Counter(KVSweptEntriesTotal, float64(removed), map[string]string{
		"sweeper": sweeper,
	})
}
