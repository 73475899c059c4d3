package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

type BillingMetrics struct {
	documentsCreated *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	payments         *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	numberRetries    prometheus.Counter
}

// New registers the billing collectors on registerer, or on the default
// registerer when it is nil.
func New(registerer prometheus.Registerer, serviceName string) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = "billing"
	}
	constLabels := prometheus.Labels{"service": serviceName}

	documentsCreated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "billing_documents_created_total",
			Help:        "Billing documents created, by kind and origin.",
			ConstLabels: constLabels,
		},
		[]string{"kind", "origin"}, // new | duplicate | conversion | time_entries
	)

	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "billing_document_transitions_total",
			Help:        "Status transitions applied to billing documents.",
			ConstLabels: constLabels,
		},
		[]string{"kind", "action"},
	)

	payments := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "billing_payments_total",
			Help:        "Payments and payment adjustments applied to invoices.",
			ConstLabels: constLabels,
		},
		[]string{"type"}, // payment | adjustment
	)

	notifications := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "billing_notifications_total",
			Help:        "Document notifications attempted on send.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // sent | skipped | failed
	)

	numberRetries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "billing_number_retries_total",
			Help:        "Document number allocations retried after a uniqueness conflict.",
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(documentsCreated, transitions, payments, notifications, numberRetries)

	return &BillingMetrics{
		documentsCreated: documentsCreated,
		transitions:      transitions,
		payments:         payments,
		notifications:    notifications,
		numberRetries:    numberRetries,
	}
}

func (m *BillingMetrics) DocumentCreated(kind, origin string) {
	if m == nil {
		return
	}
	m.documentsCreated.WithLabelValues(kind, origin).Inc()
}

func (m *BillingMetrics) Transition(kind, action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, action).Inc()
}

func (m *BillingMetrics) Payment(kind string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(kind).Inc()
}

func (m *BillingMetrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *BillingMetrics) NumberRetry() {
	if m == nil {
		return
	}
	m.numberRetries.Inc()
}
