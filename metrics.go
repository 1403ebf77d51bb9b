package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsListener is a Listener that records request lifecycle events as
// Prometheus metrics. It is safe for concurrent use.
type MetricsListener struct {
	requestsStarted   *prometheus.CounterVec
	requestsRetried   *prometheus.CounterVec
	requestsCompleted *prometheus.CounterVec
	requestsInFlight  *prometheus.GaugeVec
}

var _ Listener = (*MetricsListener)(nil)

// NewMetricsListener registers the delivery request metrics on registerer.
func NewMetricsListener(registerer prometheus.Registerer) *MetricsListener {
	factory := promauto.With(registerer)
	return &MetricsListener{
		requestsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delivery_requests_started_total",
				Help: "Total number of requests handed to the client",
			},
			[]string{"method"},
		),
		requestsRetried: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delivery_request_retries_total",
				Help: "Total number of request retries",
			},
			[]string{"method"},
		),
		requestsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delivery_requests_completed_total",
				Help: "Total number of requests that reached a terminal outcome",
			},
			[]string{"method"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "delivery_requests_in_flight",
				Help: "Number of requests started but not yet completed",
			},
			[]string{"method"},
		),
	}
}

// OnRequestStart implements Listener.
func (m *MetricsListener) OnRequestStart(_ *Client, req RequestInfo) {
	method := string(req.Method())
	m.requestsStarted.WithLabelValues(method).Inc()
	m.requestsInFlight.WithLabelValues(method).Inc()
}

// OnRequestRetry implements Listener.
func (m *MetricsListener) OnRequestRetry(_ *Client, req RequestInfo) {
	m.requestsRetried.WithLabelValues(string(req.Method())).Inc()
}

// OnRequestComplete implements Listener.
func (m *MetricsListener) OnRequestComplete(_ *Client, req RequestInfo) {
	method := string(req.Method())
	m.requestsCompleted.WithLabelValues(method).Inc()
	m.requestsInFlight.WithLabelValues(method).Dec()
}
