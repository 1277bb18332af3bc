package loader

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the load counters exposed on /metrics.
type Metrics struct {
	loads      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rows       *prometheus.CounterVec
	pseudo     prometheus.Counter
	accessions *prometheus.CounterVec
}

// NewMetrics registers the load metrics on reg. A nil reg leaves them unregistered, which
// tests use to avoid global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cegs",
			Name:      "loads_total",
			Help:      "Loads run, by kind and terminal state.",
		}, []string{"kind", "state"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cegs",
			Name:      "load_duration_seconds",
			Help:      "Wall time of a load.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"kind"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cegs",
			Name:      "bulk_rows_total",
			Help:      "Rows committed by bulk phases, by table.",
		}, []string{"table"}),
		pseudo: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cegs",
			Name:      "pseudo_ccres_total",
			Help:      "cCREs minted because no catalog entry overlapped a feature.",
		}),
		accessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cegs",
			Name:      "accessions_issued_total",
			Help:      "Accession ids issued by committed sessions, by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.loads, m.duration, m.rows, m.pseudo, m.accessions)
	}
	return m
}
