package reassembler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"xdao.co/dagstore/dag"
)

// Metrics are the reassembler prometheus collectors.
type Metrics struct {
	Reassemblies *prometheus.CounterVec
	Duration     prometheus.Histogram
	NodesVisited prometheus.Counter
	BytesOut     prometheus.Counter
}

// NewMetrics registers the reassembler metrics on reg. A nil reg leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Reassemblies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dagstore",
			Subsystem: "reassembler",
			Name:      "runs_total",
			Help:      "Reassemblies by outcome (ok or error kind).",
		}, []string{"outcome"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dagstore",
			Subsystem: "reassembler",
			Name:      "duration_seconds",
			Help:      "Wall time of a reassembly.",
			Buckets:   prometheus.DefBuckets,
		}),
		NodesVisited: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dagstore",
			Subsystem: "reassembler",
			Name:      "nodes_visited_total",
			Help:      "Distinct nodes loaded during traversal.",
		}),
		BytesOut: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dagstore",
			Subsystem: "reassembler",
			Name:      "bytes_total",
			Help:      "Bytes returned by successful reassemblies.",
		}),
	}
}

func (m *Metrics) observe(err error, start time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if k := dag.KindOf(err); k != "" {
			outcome = string(k)
		}
	}
	m.Reassemblies.WithLabelValues(outcome).Inc()
	m.Duration.Observe(time.Since(start).Seconds())
}
