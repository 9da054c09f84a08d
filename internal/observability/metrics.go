package observability

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	ledgerEntries *prometheus.CounterVec
	payoutStates  *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meridian_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ledgerEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_ledger_transactions_total",
			Help: "Wallet ledger transactions by kind.",
		}, []string{"kind"}),
		payoutStates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_payout_transitions_total",
			Help: "Payout request transitions by target status.",
		}, []string{"status"}),
		webhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_webhook_events_total",
			Help: "Provider webhook deliveries by event type and outcome.",
		}, []string{"event_type", "outcome"}),
	}
}

func (m *Metrics) RecordLedgerTransaction(kind string) {
	if m == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(strings.TrimSpace(kind)).Inc()
}

func (m *Metrics) RecordPayoutTransition(status string) {
	if m == nil {
		return
	}
	m.payoutStates.WithLabelValues(strings.TrimSpace(status)).Inc()
}

func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(strings.TrimSpace(eventType), strings.TrimSpace(outcome)).Inc()
}

// GinMetrics records request counts and latency per route.
func GinMetrics(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
