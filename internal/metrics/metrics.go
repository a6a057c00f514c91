// Package metrics exposes Prometheus collectors for the retrieval pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	IngestsTotal    *prometheus.CounterVec
	QueriesTotal    *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	DecryptFailures prometheus.Counter
	SearchResults   prometheus.Histogram
}

// New creates collectors on a private registry so tests can build multiple
// instances without duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		IngestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinquery_ingests_total",
				Help: "Total ingested records by outcome",
			},
			[]string{"status"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinquery_queries_total",
				Help: "Total patient queries by outcome",
			},
			[]string{"outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clinquery_stage_duration_seconds",
				Help:    "Duration of pipeline stages",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		DecryptFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clinquery_decrypt_failures_total",
				Help: "Per-record decryption failures skipped during queries",
			},
		),
		SearchResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "clinquery_search_results",
				Help:    "Number of hits returned per vector search",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),
	}
	reg.MustRegister(m.IngestsTotal, m.QueriesTotal, m.StageDuration, m.DecryptFailures, m.SearchResults)
	return m
}
