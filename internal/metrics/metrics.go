package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors shared by the store, the storage adapter and
// the persistence binding. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	actions        *prometheus.CounterVec
	storageWrites  *prometheus.CounterVec
	storageDropped *prometheus.CounterVec
	hydrations     *prometheus.CounterVec
	syncs          prometheus.Counter
}

// New creates a Metrics instance backed by its own registry so tests can
// create as many as they like without duplicate registration panics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diamondinv",
			Name:      "store_actions_total",
			Help:      "Store mutations applied, by action.",
		}, []string{"action"}),
		storageWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diamondinv",
			Name:      "storage_writes_total",
			Help:      "Durable storage writes that reached the backend, by operation.",
		}, []string{"op"}),
		storageDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diamondinv",
			Name:      "storage_dropped_total",
			Help:      "Durable storage writes dropped, by reason.",
		}, []string{"reason"}),
		hydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diamondinv",
			Name:      "hydrations_total",
			Help:      "Store hydrations, by outcome.",
		}, []string{"outcome"}),
		syncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "diamondinv",
			Name:      "remote_syncs_total",
			Help:      "Reloads triggered by writes from another context.",
		}),
	}
	m.registry.MustRegister(m.actions, m.storageWrites, m.storageDropped, m.hydrations, m.syncs)
	return m
}

func (m *Metrics) ObserveAction(action string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveWrite(op string) {
	if m == nil {
		return
	}
	m.storageWrites.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveDropped(reason string) {
	if m == nil {
		return
	}
	m.storageDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveHydration(outcome string) {
	if m == nil {
		return
	}
	m.hydrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSync() {
	if m == nil {
		return
	}
	m.syncs.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
