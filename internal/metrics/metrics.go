package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhooksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_webhooks_processed_total",
			Help: "Webhooks handled by the reconciliation engine, by gateway and outcome",
		},
		[]string{"source", "outcome"},
	)

	reconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payments_reconcile_duration_seconds",
			Help:    "Duration of reconciliation operations",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"source"},
	)

	sideEffectErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_side_effect_errors_total",
			Help: "Post-commit notification, publish and cache failures",
		},
		[]string{"kind"},
	)

	recoveryPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payments_manual_recovery_pending",
			Help: "Audit rows in the report window that need manual reconciliation",
		},
		[]string{"status"},
	)
)

// ObserveWebhook records one engine call. outcome is the result outcome or "error".
func ObserveWebhook(source, outcome string, started time.Time) {
	webhooksProcessed.WithLabelValues(source, outcome).Inc()
	reconcileDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())
}

func SideEffectFailed(kind string) {
	sideEffectErrors.WithLabelValues(kind).Inc()
}

func SetRecoveryPending(status string, n int64) {
	recoveryPending.WithLabelValues(status).Set(float64(n))
}
