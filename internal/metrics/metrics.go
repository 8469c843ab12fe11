// Package metrics captures shared operational counters for the load jobs and
// worker queue.
package metrics

import "sync/atomic"

// Metrics holds the running counters. All methods are safe for concurrent
// use.
type Metrics struct {
	queueLength   int64
	queueCapacity int64
	workerCount   int64

	processedJobs int64
	failedJobs    int64

	recordsKept     int64
	recordsExcluded int64
}

// Snapshot is a consistent read-only view of the current metrics.
type Snapshot struct {
	QueueLength     int   `json:"queue_length"`
	QueueCapacity   int   `json:"queue_capacity"`
	WorkerCount     int   `json:"worker_count"`
	ProcessedJobs   int64 `json:"processed_jobs"`
	FailedJobs      int64 `json:"failed_jobs"`
	RecordsKept     int64 `json:"records_kept"`
	RecordsExcluded int64 `json:"records_excluded"`
}

// New creates a zeroed Metrics instance.
func New() *Metrics {
	return &Metrics{}
}

// UpdateQueue records the current queue stats.
func (m *Metrics) UpdateQueue(length, capacity, workers int) {
	atomic.StoreInt64(&m.queueLength, int64(length))
	atomic.StoreInt64(&m.queueCapacity, int64(capacity))
	atomic.StoreInt64(&m.workerCount, int64(workers))
}

// RecordJobCompletion increments processed/failed counters based on outcome.
func (m *Metrics) RecordJobCompletion(err error) {
	atomic.AddInt64(&m.processedJobs, 1)
	if err != nil {
		atomic.AddInt64(&m.failedJobs, 1)
	}
}

// RecordCleaningRun accumulates the kept/excluded tallies of one finished
// trip load.
func (m *Metrics) RecordCleaningRun(kept, excluded int64) {
	atomic.AddInt64(&m.recordsKept, kept)
	atomic.AddInt64(&m.recordsExcluded, excluded)
}

// Snapshot returns a read-only view of metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		QueueLength:     int(atomic.LoadInt64(&m.queueLength)),
		QueueCapacity:   int(atomic.LoadInt64(&m.queueCapacity)),
		WorkerCount:     int(atomic.LoadInt64(&m.workerCount)),
		ProcessedJobs:   atomic.LoadInt64(&m.processedJobs),
		FailedJobs:      atomic.LoadInt64(&m.failedJobs),
		RecordsKept:     atomic.LoadInt64(&m.recordsKept),
		RecordsExcluded: atomic.LoadInt64(&m.recordsExcluded),
	}
}
