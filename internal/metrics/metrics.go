// Package metrics exposes Prometheus metrics for the gate.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/roasbeef/pulljoy/internal/gate"
	"github.com/roasbeef/pulljoy/internal/store"
)

const namespace = "pulljoy"

// Event results recorded by ObserveEvent.
const (
	ResultProcessed   = "processed"
	ResultFailed      = "failed"
	ResultUnsupported = "unsupported"
	ResultDuplicate   = "duplicate"
)

// Metrics holds the gate's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal        *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	processingDuration *prometheus.HistogramVec
}

var _ gate.Notifier = (*Metrics)(nil)

// New registers the gate's metrics, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook deliveries by event kind and result",
		}, []string{"kind", "result"}),
		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Pull request state transitions",
		}, []string{"from", "to"}),
		processingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_processing_seconds",
				Help:      "Time spent processing an event",
				Buckets: []float64{
					.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60,
				},
			}, []string{"kind"},
		),
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}

// ObserveEvent records the outcome of one webhook delivery. elapsed is
// only recorded for processed and failed events.
func (m *Metrics) ObserveEvent(kind, result string, elapsed time.Duration) {
	m.eventsTotal.WithLabelValues(kind, result).Inc()

	if result == ResultProcessed || result == ResultFailed {
		m.processingDuration.WithLabelValues(kind).Observe(
			elapsed.Seconds(),
		)
	}
}

// NotifyTransition implements gate.Notifier.
func (m *Metrics) NotifyTransition(_ context.Context,
	notice gate.TransitionNotice) {

	m.transitionsTotal.WithLabelValues(notice.From, notice.To).Inc()
}

// TrackStates adds a gauge of tracked pull requests per state, read from
// counter at scrape time.
func (m *Metrics) TrackStates(counter store.StateCounter) {
	m.registry.MustRegister(newStateCollector(counter))
}
