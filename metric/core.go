// Package metric provides Prometheus instrumentation for the macro dispatch
// layer. Metrics are optional: a Router without a Metrics instance records
// nothing.
package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all dispatcher-level metrics
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RouteNotFound    prometheus.Counter
	CastFailures     prometheus.Counter
	UnsupportedScope prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all dispatcher metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "macro",
				Subsystem: "dispatch",
				Name:      "requests_total",
				Help:      "Total number of dispatched requests",
			},
			[]string{"method", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "macro",
				Subsystem: "dispatch",
				Name:      "request_duration_seconds",
				Help:      "Time from header parse to final response event",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		RouteNotFound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "macro",
				Subsystem: "dispatch",
				Name:      "route_not_found_total",
				Help:      "Requests that resolved to the 404 fallback",
			},
		),

		CastFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "macro",
				Subsystem: "dispatch",
				Name:      "cast_failures_total",
				Help:      "Path variable casts that rejected a matched route",
			},
		),

		UnsupportedScope: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "macro",
				Subsystem: "dispatch",
				Name:      "unsupported_scope_total",
				Help:      "Connections rejected for a non-HTTP scope type",
			},
		),
	}
}

// Register registers all dispatcher metrics with a Prometheus registerer
func (m *Metrics) Register(registerer prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.RequestsTotal,
		m.RequestDuration,
		m.RouteNotFound,
		m.CastFailures,
		m.UnsupportedScope,
	}

	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// ObserveRequest records one completed dispatch
func (m *Metrics) ObserveRequest(method string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}
