package feed

import (
	"context"
	"sync"
	"time"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/pkg/journal"
)

// DefaultMaxBatchLatency bounds how long the oldest record may sit in a
// partial batch before the batch is sent anyway.
const DefaultMaxBatchLatency = 5 * time.Minute

// BatchSender receives full batches from the pusher worker.
type BatchSender interface {
	SendBatch(ctx context.Context, records []Record) error
}

// BatchSenderFunc adapts a function to the BatchSender interface.
type BatchSenderFunc func(ctx context.Context, records []Record) error

func (f BatchSenderFunc) SendBatch(ctx context.Context, records []Record) error {
	return f(ctx, records)
}

// PusherConfig configures the AsyncPusher.
type PusherConfig struct {
	// MaxRecordsPerFeed caps the batch size. Default: 5000.
	MaxRecordsPerFeed int

	// QueueSize bounds the offer queue. Default: 2 * MaxRecordsPerFeed.
	QueueSize int

	// MaxBatchLatency bounds the age of the oldest queued record before a
	// partial batch is flushed. Default: 5 minutes.
	MaxBatchLatency time.Duration
}

// DefaultPusherConfig returns the default pusher configuration.
func DefaultPusherConfig() PusherConfig {
	return PusherConfig{
		MaxRecordsPerFeed: 5000,
		MaxBatchLatency:   DefaultMaxBatchLatency,
	}
}

// queued pairs a record with its arrival time for the latency cutoff.
type queued struct {
	rec Record
	at  time.Time
}

// AsyncPusher accepts records from any number of producers and delivers them
// to the sender in size- and latency-bounded batches from a single worker.
//
// Back-pressure: Offer is non-blocking and returns false when the queue is
// full. Every record accepted by Offer is delivered to the sender at least
// once, including during shutdown drain.
type AsyncPusher struct {
	cfg    PusherConfig
	sender BatchSender
	jnl    *journal.Journal

	queue     chan queued
	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool

	// now is stubbed in tests.
	now func() time.Time
}

// NewAsyncPusher creates a stopped pusher; call Start to begin draining.
func NewAsyncPusher(cfg PusherConfig, sender BatchSender, jnl *journal.Journal) *AsyncPusher {
	if cfg.MaxRecordsPerFeed <= 0 {
		cfg.MaxRecordsPerFeed = DefaultPusherConfig().MaxRecordsPerFeed
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 2 * cfg.MaxRecordsPerFeed
	}
	if cfg.MaxBatchLatency <= 0 {
		cfg.MaxBatchLatency = DefaultMaxBatchLatency
	}
	return &AsyncPusher{
		cfg:       cfg,
		sender:    sender,
		jnl:       jnl,
		queue:     make(chan queued, cfg.QueueSize),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		now:       time.Now,
	}
}

// Offer enqueues one record without blocking. It returns false when the
// queue is full or the pusher is stopped; the producer decides whether to
// drop or retry later.
func (p *AsyncPusher) Offer(rec Record) bool {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return false
	}

	select {
	case p.queue <- queued{rec: rec, at: p.now()}:
		return true
	default:
		logger.Warn("feed queue full, rejecting record", logger.KeyDocID, string(rec.ID))
		if p.jnl != nil {
			p.jnl.RecordPushRejected()
		}
		return false
	}
}

// Start launches the single pusher worker.
func (p *AsyncPusher) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	logger.Info("Starting feed pusher",
		"queue_size", p.cfg.QueueSize,
		"max_records", p.cfg.MaxRecordsPerFeed,
		"max_latency", p.cfg.MaxBatchLatency)

	go p.worker(ctx)
}

// Stop shuts the pusher down, draining already-accepted records. It waits
// up to timeout for the worker to finish.
func (p *AsyncPusher) Stop(timeout time.Duration) {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.stopped = true
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.stoppedCh:
		logger.Info("Feed pusher stopped")
	case <-time.After(timeout):
		logger.Warn("Feed pusher stop timed out", "queued", len(p.queue))
	}
}

// worker drains the queue into batches and hands them to the sender.
func (p *AsyncPusher) worker(ctx context.Context) {
	defer close(p.stoppedCh)

	for {
		// Block for the first record of the next batch.
		var first queued
		select {
		case first = <-p.queue:
		case <-p.stopCh:
			p.drain(ctx, nil)
			return
		}

		batch := []Record{first.rec}
		deadline := time.NewTimer(p.latencyLeft(first.at))

	fill:
		for len(batch) < p.cfg.MaxRecordsPerFeed {
			select {
			case q := <-p.queue:
				batch = append(batch, q.rec)
			case <-deadline.C:
				break fill
			case <-p.stopCh:
				deadline.Stop()
				p.drain(ctx, batch)
				return
			}
		}
		deadline.Stop()

		p.send(ctx, batch)
	}
}

// drain flushes the partial batch plus whatever is left on the queue.
func (p *AsyncPusher) drain(ctx context.Context, batch []Record) {
	for {
		select {
		case q := <-p.queue:
			batch = append(batch, q.rec)
			if len(batch) >= p.cfg.MaxRecordsPerFeed {
				p.send(ctx, batch)
				batch = nil
			}
		default:
			if len(batch) > 0 {
				p.send(ctx, batch)
			}
			return
		}
	}
}

func (p *AsyncPusher) send(ctx context.Context, batch []Record) {
	if err := p.sender.SendBatch(ctx, batch); err != nil {
		logger.Error("Feed batch delivery failed",
			logger.KeyRecords, len(batch), logger.KeyError, err.Error())
		if p.jnl != nil {
			p.jnl.RecordPushFailed(len(batch))
		}
		return
	}
	if p.jnl != nil {
		p.jnl.RecordPushBatch(len(batch))
	}
}

func (p *AsyncPusher) latencyLeft(oldest time.Time) time.Duration {
	left := p.cfg.MaxBatchLatency - p.now().Sub(oldest)
	if left < 0 {
		return 0
	}
	return left
}
