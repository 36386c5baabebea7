// Package metrics provides Prometheus observability for the billing service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks reconcile outcomes, public lookups, and import batches.
type Metrics struct {
	Reconciles *prometheus.CounterVec
	Lookups    *prometheus.CounterVec
	ImportRows *prometheus.CounterVec
}

// New creates a Metrics instance with all billing metrics registered on
// the default registry.
func New() *Metrics {
	return &Metrics{
		Reconciles: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "billdesk_reconciles_total",
			Help: "Total reconcile operations by outcome (created, updated, rejected)",
		}, []string{"outcome"}),
		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "billdesk_lookups_total",
			Help: "Total public bill lookups by result (hit, miss)",
		}, []string{"result"}),
		ImportRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "billdesk_import_rows_total",
			Help: "Total CSV import rows by disposition (processed, skipped, aborted)",
		}, []string{"disposition"}),
	}
}

// ObserveReconcile records one reconcile outcome.
func (m *Metrics) ObserveReconcile(outcome string) {
	m.Reconciles.WithLabelValues(outcome).Inc()
}

// ObserveLookup records one public lookup result.
func (m *Metrics) ObserveLookup(hit bool) {
	if hit {
		m.Lookups.WithLabelValues("hit").Inc()
		return
	}
	m.Lookups.WithLabelValues("miss").Inc()
}

// ObserveImport records the dispositions of a finished import batch.
func (m *Metrics) ObserveImport(processed, skipped int, aborted bool) {
	m.ImportRows.WithLabelValues("processed").Add(float64(processed))
	m.ImportRows.WithLabelValues("skipped").Add(float64(skipped))
	if aborted {
		m.ImportRows.WithLabelValues("aborted").Inc()
	}
}
