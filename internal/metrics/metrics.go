// Package metrics holds the scorer's prometheus collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry plumbing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scorer"

type Metrics struct {
	raidsApplied       *prometheus.CounterVec
	eventsRejected     *prometheus.CounterVec
	storageFailures    *prometheus.CounterVec
	archiveFailures    prometheus.Counter
	droppedSubscribers prometheus.Counter
	activeSessions     prometheus.Gauge
	connections        *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		raidsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raids_applied_total",
			Help:      "Raid events applied to a match, by kind.",
		}, []string{"kind"}),
		eventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Client messages rejected, by reason.",
		}, []string{"reason"}),
		storageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_failures_total",
			Help:      "Snapshot store operations that failed, by operation.",
		}, []string{"op"}),
		archiveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_failures_total",
			Help:      "Finished matches that could not be archived.",
		}),
		droppedSubscribers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_subscribers_total",
			Help:      "Connections dropped because their outbox was full.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Match sessions currently held in memory.",
		}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections, by role.",
		}, []string{"role"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.raidsApplied,
			m.eventsRejected,
			m.storageFailures,
			m.archiveFailures,
			m.droppedSubscribers,
			m.activeSessions,
			m.connections,
		)
	}
	return m
}

func (m *Metrics) RaidApplied(kind string) {
	if m == nil {
		return
	}
	m.raidsApplied.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventRejected(reason string) {
	if m == nil {
		return
	}
	m.eventsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) StorageFailed(op string) {
	if m == nil {
		return
	}
	m.storageFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) ArchiveFailed() {
	if m == nil {
		return
	}
	m.archiveFailures.Inc()
}

func (m *Metrics) SubscriberDropped() {
	if m == nil {
		return
	}
	m.droppedSubscribers.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) ConnectionOpened(role string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(role).Inc()
}

func (m *Metrics) ConnectionClosed(role string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(role).Dec()
}
