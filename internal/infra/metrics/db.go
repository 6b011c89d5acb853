package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(snapshotDBConns, snapshotDBAcquireWait) }

var (
	snapshotDBConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapshot_db_connections",
			Help: "Connections in the session snapshot database pool, by state.",
		},
		[]string{"state"}, // total|idle|in_use|max
	)
	snapshotDBAcquireWait = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapshot_db_acquire_wait_seconds",
			Help: "Cumulative time spent waiting for a snapshot database connection.",
		},
	)
)

// PoolStats is the subset of pool statistics exported for the snapshot store.
type PoolStats struct {
	Total, Idle, InUse, Max int32
	AcquireWait             time.Duration
}

func SetDBPoolStats(s PoolStats) {
	snapshotDBConns.WithLabelValues("total").Set(float64(s.Total))
	snapshotDBConns.WithLabelValues("idle").Set(float64(s.Idle))
	snapshotDBConns.WithLabelValues("in_use").Set(float64(s.InUse))
	snapshotDBConns.WithLabelValues("max").Set(float64(s.Max))
	snapshotDBAcquireWait.Set(s.AcquireWait.Seconds())
}
