// Package metrics exposes Prometheus counters for session and mutation activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	mutations       *prometheus.CounterVec
	quotaRejections *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	sessionsSeeded  prometheus.Counter
}

// New creates the collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskdemo",
			Name:      "mutations_total",
			Help:      "Task and tag mutations by entity, operation and result kind.",
		}, []string{"entity", "op", "result"}),
		quotaRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskdemo",
			Name:      "quota_rejections_total",
			Help:      "Mutations rejected by a session limit, by limit code.",
		}, []string{"code"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskdemo",
			Name:      "sessions_created_total",
			Help:      "Sessions inserted into the store.",
		}),
		sessionsSeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskdemo",
			Name:      "sessions_seeded_total",
			Help:      "Sessions populated with default demo data.",
		}),
	}
	reg.MustRegister(m.mutations, m.quotaRejections, m.sessionsCreated, m.sessionsSeeded)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Mutation(entity, op, result string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(entity, op, result).Inc()
}

func (m *Metrics) QuotaRejected(code string) {
	if m == nil {
		return
	}
	m.quotaRejections.WithLabelValues(code).Inc()
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

func (m *Metrics) SessionSeeded() {
	if m == nil {
		return
	}
	m.sessionsSeeded.Inc()
}
