// Package metrics exposes Prometheus counters for custody, provisioning and export.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the service collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	custodyOps *prometheus.CounterVec
	provisions *prometheus.CounterVec
	exports    *prometheus.CounterVec
}

// New creates and registers the collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		custodyOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_operations_total",
			Help: "Agent key custody operations by operation and result.",
		}, []string{"op", "result"}),
		provisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_provisions_total",
			Help: "Wallet provisioning calls by chain family and outcome (created, updated, error).",
		}, []string{"family", "outcome"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "export_requests_total",
			Help: "Mnemonic export requests by outcome.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.custodyOps,
		m.provisions,
		m.exports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// CustodyOp records one custody operation
func (m *Metrics) CustodyOp(op string, err error) {
	if m == nil {
		return
	}
	m.custodyOps.WithLabelValues(op, result(err)).Inc()
}

// Provision records one provisioning outcome
func (m *Metrics) Provision(family, outcome string) {
	if m == nil {
		return
	}
	m.provisions.WithLabelValues(family, outcome).Inc()
}

// Export records one export outcome
func (m *Metrics) Export(outcome string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
