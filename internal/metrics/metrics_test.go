package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matches(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(m *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok {
			if v != lp.GetValue() {
				return false
			}
			found++
		}
	}
	return found == len(labels)
}

func TestBillingMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")

	m.DocumentCreated("INVOICE", "new")
	m.DocumentCreated("INVOICE", "new")
	m.Transition("QUOTE", "send")
	m.Notification("skipped")

	if got := counterValue(t, reg, "billing_documents_created_total", map[string]string{"kind": "INVOICE", "origin": "new"}); got != 2 {
		t.Errorf("documents created = %v, want 2", got)
	}
	if got := counterValue(t, reg, "billing_document_transitions_total", map[string]string{"kind": "QUOTE", "action": "send"}); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}
	if got := counterValue(t, reg, "billing_notifications_total", map[string]string{"result": "skipped", "service": "test"}); got != 1 {
		t.Errorf("notifications = %v, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *BillingMetrics
	m.DocumentCreated("QUOTE", "new")
	m.Transition("QUOTE", "send")
	m.Payment("payment")
	m.Notification("sent")
	m.NumberRetry()
}
