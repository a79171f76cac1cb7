// Package metrics exposes prometheus counters for pipeline runs. A
// dedicated registry keeps the /metrics endpoint free of unrelated
// collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline counters. A nil *Metrics is valid and turns
// every method into a no-op, so tests and one-shot CLI runs don't need a
// registry.
type Metrics struct {
	registry *prometheus.Registry

	usersCreated     prometheus.Counter
	usersUpdated     prometheus.Counter
	usersDeactivated prometheus.Counter
	usersSkipped     prometheus.Counter
	groupsCreated    prometheus.Counter
	httpRetries      prometheus.Counter
	runErrors        prometheus.Counter
}

// New creates the counters on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timecamp_sync",
			Name:      name,
			Help:      help,
		})
		m.registry.MustRegister(c)
		return c
	}

	m.usersCreated = counter("users_created_total", "Users created in TimeCamp.")
	m.usersUpdated = counter("users_updated_total", "Users updated in TimeCamp.")
	m.usersDeactivated = counter("users_deactivated_total", "Users deactivated in TimeCamp.")
	m.usersSkipped = counter("users_skipped_total", "Users skipped during sync.")
	m.groupsCreated = counter("groups_created_total", "Groups created in TimeCamp.")
	m.httpRetries = counter("http_retries_total", "Retried TimeCamp API requests.")
	m.runErrors = counter("run_errors_total", "Pipeline runs that ended with an error.")

	return m
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Metrics) UserCreated() {
	if m != nil {
		m.usersCreated.Inc()
	}
}

func (m *Metrics) UserUpdated() {
	if m != nil {
		m.usersUpdated.Inc()
	}
}

func (m *Metrics) UserDeactivated() {
	if m != nil {
		m.usersDeactivated.Inc()
	}
}

func (m *Metrics) UserSkipped() {
	if m != nil {
		m.usersSkipped.Inc()
	}
}

func (m *Metrics) GroupCreated() {
	if m != nil {
		m.groupsCreated.Inc()
	}
}

func (m *Metrics) HTTPRetry() {
	if m != nil {
		m.httpRetries.Inc()
	}
}

func (m *Metrics) RunError() {
	if m != nil {
		m.runErrors.Inc()
	}
}
