// Package journal keeps in-memory counters and timestamps describing what
// the daemon has done: retrieval requests served, records pushed, errors and
// watchdog interruptions. Writers use atomic increments only; readers take
// consistent-enough snapshots without blocking writers.
package journal

import (
	"sync/atomic"
	"time"
)

// Journal is a monotonic counter store. The zero value is not usable;
// construct with New.
type Journal struct {
	startedAt time.Time

	requestsTotal   atomic.Int64
	requestsIndexer atomic.Int64
	requestsDenied  atomic.Int64
	requestsErrored atomic.Int64

	pushBatches  atomic.Int64
	pushRecords  atomic.Int64
	pushFailures atomic.Int64
	pushRejected atomic.Int64

	fullListings        atomic.Int64
	incrementalListings atomic.Int64

	interruptions atomic.Int64

	lastRequestUnixMilli atomic.Int64
	lastPushUnixMilli    atomic.Int64

	metrics *promMetrics
}

// New creates an empty journal. When registerMetrics is true the counters
// are mirrored into the default Prometheus registry.
func New(registerMetrics bool) *Journal {
	j := &Journal{startedAt: time.Now()}
	if registerMetrics {
		j.metrics = newPromMetrics()
	}
	return j
}

// RecordRequest counts one retrieval request. indexerOriginated marks
// requests from fully-trusted clients.
func (j *Journal) RecordRequest(indexerOriginated bool) {
	j.requestsTotal.Add(1)
	if indexerOriginated {
		j.requestsIndexer.Add(1)
	}
	j.lastRequestUnixMilli.Store(time.Now().UnixMilli())
	if j.metrics != nil {
		j.metrics.requests.WithLabelValues(originLabel(indexerOriginated)).Inc()
	}
}

// RecordRequestDenied counts a request refused by authorization.
func (j *Journal) RecordRequestDenied() {
	j.requestsDenied.Add(1)
	if j.metrics != nil {
		j.metrics.denied.Inc()
	}
}

// RecordRequestError counts a request that failed with a server error.
func (j *Journal) RecordRequestError() {
	j.requestsErrored.Add(1)
	if j.metrics != nil {
		j.metrics.errors.Inc()
	}
}

// RecordPushBatch counts one delivered batch of n records.
func (j *Journal) RecordPushBatch(n int) {
	j.pushBatches.Add(1)
	j.pushRecords.Add(int64(n))
	j.lastPushUnixMilli.Store(time.Now().UnixMilli())
	if j.metrics != nil {
		j.metrics.pushBatches.Inc()
		j.metrics.pushRecords.Add(float64(n))
	}
}

// RecordPushFailed counts a batch that exhausted its retries.
func (j *Journal) RecordPushFailed(n int) {
	j.pushFailures.Add(1)
	if j.metrics != nil {
		j.metrics.pushFailures.Inc()
	}
}

// RecordPushRejected counts one record refused by the full queue.
func (j *Journal) RecordPushRejected() {
	j.pushRejected.Add(1)
	if j.metrics != nil {
		j.metrics.pushRejected.Inc()
	}
}

// RecordFullListing counts one completed full-listing run.
func (j *Journal) RecordFullListing() {
	j.fullListings.Add(1)
}

// RecordIncrementalListing counts one completed incremental-listing run.
func (j *Journal) RecordIncrementalListing() {
	j.incrementalListings.Add(1)
}

// RecordInterruption counts one watchdog interruption.
func (j *Journal) RecordInterruption() {
	j.interruptions.Add(1)
	if j.metrics != nil {
		j.metrics.interruptions.Inc()
	}
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	StartedAt time.Time `json:"started_at"`
	UptimeSec int64     `json:"uptime_sec"`

	RequestsTotal   int64 `json:"requests_total"`
	RequestsIndexer int64 `json:"requests_indexer"`
	RequestsDenied  int64 `json:"requests_denied"`
	RequestsErrored int64 `json:"requests_errored"`

	PushBatches  int64 `json:"push_batches"`
	PushRecords  int64 `json:"push_records"`
	PushFailures int64 `json:"push_failures"`
	PushRejected int64 `json:"push_rejected"`

	FullListings        int64 `json:"full_listings"`
	IncrementalListings int64 `json:"incremental_listings"`

	Interruptions int64 `json:"interruptions"`

	LastRequestUnixMilli int64 `json:"last_request_unix_milli"`
	LastPushUnixMilli    int64 `json:"last_push_unix_milli"`
}

// Snapshot returns a copy of the current counters.
func (j *Journal) Snapshot() Snapshot {
	return Snapshot{
		StartedAt:            j.startedAt,
		UptimeSec:            int64(time.Since(j.startedAt).Seconds()),
		RequestsTotal:        j.requestsTotal.Load(),
		RequestsIndexer:      j.requestsIndexer.Load(),
		RequestsDenied:       j.requestsDenied.Load(),
		RequestsErrored:      j.requestsErrored.Load(),
		PushBatches:          j.pushBatches.Load(),
		PushRecords:          j.pushRecords.Load(),
		PushFailures:         j.pushFailures.Load(),
		PushRejected:         j.pushRejected.Load(),
		FullListings:         j.fullListings.Load(),
		IncrementalListings:  j.incrementalListings.Load(),
		Interruptions:        j.interruptions.Load(),
		LastRequestUnixMilli: j.lastRequestUnixMilli.Load(),
		LastPushUnixMilli:    j.lastPushUnixMilli.Load(),
	}
}

func originLabel(indexer bool) string {
	if indexer {
		return "indexer"
	}
	return "other"
}
