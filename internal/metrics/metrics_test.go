package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func gaugeValue(t *testing.T, name, label, value string) (float64, bool) {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					if g := m.GetGauge(); g != nil {
						return g.GetValue(), true
					}
					if c := m.GetCounter(); c != nil {
						return c.GetValue(), true
					}
				}
			}
		}
	}
	return 0, false
}

func TestSetRecoveryPending(t *testing.T) {
	SetRecoveryPending("offline", 3)
	v, ok := gaugeValue(t, "payments_manual_recovery_pending", "status", "offline")
	if !ok || v != 3 {
		t.Fatalf("expected gauge 3, got %v (found=%v)", v, ok)
	}
}

func TestObserveWebhook(t *testing.T) {
	ObserveWebhook("metrics_test_source", "applied", time.Now())
	v, ok := gaugeValue(t, "payments_webhooks_processed_total", "source", "metrics_test_source")
	if !ok || v != 1 {
		t.Fatalf("expected counter 1, got %v (found=%v)", v, ok)
	}
}
