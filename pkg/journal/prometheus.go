package journal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// promMetrics mirrors the journal counters into Prometheus.
type promMetrics struct {
	requests      *prometheus.CounterVec
	denied        prometheus.Counter
	errors        prometheus.Counter
	pushBatches   prometheus.Counter
	pushRecords   prometheus.Counter
	pushFailures  prometheus.Counter
	pushRejected  prometheus.Counter
	interruptions prometheus.Counter
}

func newPromMetrics() *promMetrics {
	return &promMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_requests_total",
			Help: "Retrieval requests served, by origin class",
		}, []string{"origin"}),
		denied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "connector_requests_denied_total",
			Help: "Retrieval requests refused by authorization",
		}),
		errors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "connector_request_errors_total",
			Help: "Retrieval requests that failed with a server error",
		}),
		pushBatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "connector_push_batches_total",
			Help: "Feed batches delivered to the indexer",
		}),
		pushRecords: promauto.NewCounter(prometheus.CounterOpts{
			Name: "connector_push_records_total",
			Help: "Records delivered inside feed batches",
		}),
		pushFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "connector_push_failures_total",
			Help: "Feed batches that exhausted their delivery retries",
		}),
		pushRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "connector_push_rejected_total",
			Help: "Records rejected because the feed queue was full",
		}),
		interruptions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "connector_watchdog_interruptions_total",
			Help: "Adaptor calls interrupted by the watchdog",
		}),
	}
}
