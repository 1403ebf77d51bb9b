package payload

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SenderMetrics provides Prometheus metrics for a Sender. A nil
// *SenderMetrics records nothing.
type SenderMetrics struct {
	enqueued prometheus.Counter
	dropped  prometheus.Counter
	started  prometheus.Counter
	sent     prometheus.Counter
	failed   *prometheus.CounterVec
	skipped  *prometheus.CounterVec
}

// NewSenderMetrics registers the sender metrics on registerer. name labels
// every series so several senders can share a registry.
func NewSenderMetrics(registerer prometheus.Registerer, name string) *SenderMetrics {
	factory := promauto.With(registerer)
	labels := prometheus.Labels{"sender": name}

	counter := func(metric, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		})
	}
	counterVec := func(metric, help, label string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, []string{label})
	}

	return &SenderMetrics{
		enqueued: counter("delivery_payloads_enqueued_total", "Total number of payloads added to the queue"),
		dropped:  counter("delivery_payloads_dropped_total", "Total number of payloads that never reached the queue"),
		started:  counter("delivery_payload_sends_started_total", "Total number of payload sends started"),
		sent:     counter("delivery_payloads_sent_total", "Total number of payloads delivered"),
		failed:   counterVec("delivery_payloads_failed_total", "Total number of failed payload sends by outcome", "outcome"),
		skipped:  counterVec("delivery_payload_advances_skipped_total", "Total number of send attempts that did not start, by reason", "reason"),
	}
}

func (m *SenderMetrics) recordEnqueued() {
	if m == nil {
		return
	}
	m.enqueued.Inc()
}

func (m *SenderMetrics) recordDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *SenderMetrics) recordStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
}

func (m *SenderMetrics) recordSent() {
	if m == nil {
		return
	}
	m.sent.Inc()
}

func (m *SenderMetrics) recordFailed(deleted bool) {
	if m == nil {
		return
	}
	outcome := "retained"
	if deleted {
		outcome = "deleted"
	}
	m.failed.WithLabelValues(outcome).Inc()
}

func (m *SenderMetrics) recordSkipped(reason error) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(SkipReason(reason)).Inc()
}

// SkipReason returns the metric label for a skipped advance.
func SkipReason(reason error) string {
	switch {
	case errors.Is(reason, ErrNoService):
		return "no_service"
	case errors.Is(reason, ErrPaused):
		return "paused"
	case errors.Is(reason, ErrSendPending):
		return "in_flight"
	case errors.Is(reason, ErrQueueEmpty):
		return "empty"
	default:
		return "other"
	}
}
