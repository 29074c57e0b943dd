package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the store counters. A nil Registerer yields unregistered
// collectors, which is what tests use.
type Metrics struct {
	NodesWritten prometheus.Counter
	BytesWritten prometheus.Counter
	DedupHits    prometheus.Counter
	Lookups      *prometheus.CounterVec
}

// NewMetrics registers the store metrics on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		NodesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dagstore",
			Subsystem: "store",
			Name:      "nodes_written_total",
			Help:      "Nodes persisted for the first time.",
		}),
		BytesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dagstore",
			Subsystem: "store",
			Name:      "record_bytes_written_total",
			Help:      "Encoded record bytes persisted.",
		}),
		DedupHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dagstore",
			Subsystem: "store",
			Name:      "dedup_hits_total",
			Help:      "Puts that found the key already stored.",
		}),
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dagstore",
			Subsystem: "store",
			Name:      "lookups_total",
			Help:      "Node lookups by result.",
		}, []string{"result"}),
	}
}
