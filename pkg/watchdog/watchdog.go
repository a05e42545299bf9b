// Package watchdog bounds the two phases of a retrieval: the header phase,
// from adaptor dispatch until headers are committed, and the content phase,
// until the body is fully written. A phase overrunning its budget cancels
// the request context and records an interruption.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/pkg/journal"
)

// Default phase budgets.
const (
	DefaultHeaderTimeout  = 30 * time.Second
	DefaultContentTimeout = 180 * time.Second
)

// Phase names a watched request phase.
type Phase string

const (
	PhaseHeader  Phase = "header"
	PhaseContent Phase = "content"
)

// Watchdog guards one request. At most one phase is armed at a time;
// arming a new phase replaces the previous one.
type Watchdog struct {
	cancel context.CancelFunc
	jnl    *journal.Journal

	mu    sync.Mutex
	timer *time.Timer
	phase Phase
	fired bool
}

// New derives a cancellable context for the request and returns the
// watchdog guarding it. jnl may be nil.
func New(ctx context.Context, jnl *journal.Journal) (*Watchdog, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &Watchdog{cancel: cancel, jnl: jnl}, ctx
}

// Arm starts (or restarts) the watchdog for the given phase.
func (w *Watchdog) Arm(phase Phase, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.phase = phase
	w.timer = time.AfterFunc(d, func() { w.fire(phase, d) })
}

// Disarm stops the current phase timer without cancelling the context.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Fired reports whether a phase overran and the context was cancelled.
func (w *Watchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

func (w *Watchdog) fire(phase Phase, d time.Duration) {
	w.mu.Lock()
	if w.fired || w.phase != phase {
		w.mu.Unlock()
		return
	}
	w.fired = true
	w.mu.Unlock()

	logger.Error("Request phase exceeded its budget, interrupting",
		logger.KeyPhase, string(phase), logger.KeyDurationMs, d.Milliseconds())
	if w.jnl != nil {
		w.jnl.RecordInterruption()
	}
	w.cancel()
}
