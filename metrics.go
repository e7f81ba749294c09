package globaldb

import (
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// Package-wide operation counters and gauges, exposed through
// VictoriaMetrics/metrics (the dKV example's choice for serving-layer
// metrics) rather than as bare struct fields, per SPEC_FULL.md §4.5. They
// are process-wide rather than per-Connection: the source has at most one
// live backend handle per kind anyway (§9 "Library-load globals"), so a
// per-Connection metric would just be this value divided across aliases.
var (
	readTotal  = metrics.NewCounter(`globaldb_read_total`)
	writeTotal = metrics.NewCounter(`globaldb_write_total`)

	workerQueueDepth int64
	cursorsOpenBtree int64
	cursorsOpenMmap  int64
)

func init() {
	metrics.NewGauge(`globaldb_worker_queue_depth`, func() float64 {
		return float64(atomic.LoadInt64(&workerQueueDepth))
	})
	metrics.NewGauge(`globaldb_cursors_open{backend="btree"}`, func() float64 {
		return float64(atomic.LoadInt64(&cursorsOpenBtree))
	})
	metrics.NewGauge(`globaldb_cursors_open{backend="mmap"}`, func() float64 {
		return float64(atomic.LoadInt64(&cursorsOpenMmap))
	})
}

func cursorsOpenGauge(kind BackendKind) *int64 {
	if kind == BackendBtree {
		return &cursorsOpenBtree
	}
	return &cursorsOpenMmap
}
