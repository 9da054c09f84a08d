package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordWebhookEventLabels(t *testing.T) {
	m := NewMetrics()

	m.RecordWebhookEvent("transfer.success", "processed")
	m.RecordWebhookEvent("transfer.success", "processed")
	m.RecordWebhookEvent("transfer.failed", "failed")

	if got := testutil.ToFloat64(m.webhookEvents.WithLabelValues("transfer.success", "processed")); got != 2 {
		t.Fatalf("expected 2 processed transfer.success events, got %v", got)
	}
	if got := testutil.ToFloat64(m.webhookEvents.WithLabelValues("transfer.failed", "failed")); got != 1 {
		t.Fatalf("expected 1 failed transfer.failed event, got %v", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordLedgerTransaction("credit_earned")
	m.RecordPayoutTransition("completed")
	m.RecordWebhookEvent("transfer.success", "processed")
}
