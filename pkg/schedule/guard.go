package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/pkg/adaptor"
)

// OneAtATime wraps task so overlapping runs are dropped instead of
// stacking: if a fire arrives while the previous run is still going, the
// new one is skipped with a warning.
func OneAtATime(name string, task Task) Task {
	var running atomic.Bool
	return func(ctx context.Context) error {
		if !running.CompareAndSwap(false, true) {
			logger.Warn("Skipping scheduled run, previous still in progress", logger.KeyTask, name)
			return nil
		}
		defer running.Store(false)
		return task(ctx)
	}
}

// RetryPolicy drives WithRetry.
type RetryPolicy struct {
	// Initial is the first sleep after a transient failure. Default: 8s.
	Initial time.Duration

	// Max caps the sleep. Default: 1h.
	Max time.Duration

	// Multiplier scales the sleep after each failure. Default: 2.
	Multiplier float64
}

// DefaultRetryPolicy matches the startup retry curve.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Initial: 8 * time.Second, Max: time.Hour, Multiplier: 2}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Initial <= 0 {
		p.Initial = 8 * time.Second
	}
	if p.Max <= 0 {
		p.Max = time.Hour
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// WithRetry retries transient task failures with exponential backoff until
// success, a fatal error, or context cancellation. Fatal errors abort the
// run; the schedule fires it again next time.
func WithRetry(name string, policy RetryPolicy, task Task) Task {
	policy = policy.normalized()
	return func(ctx context.Context) error {
		delay := policy.Initial
		for attempt := 1; ; attempt++ {
			err := task(ctx)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !adaptor.IsTransient(err) {
				logger.Error("Scheduled task failed",
					logger.KeyTask, name, logger.KeyAttempt, attempt, logger.KeyError, err.Error())
				return err
			}
			logger.Warn("Scheduled task hit a transient failure, backing off",
				logger.KeyTask, name, logger.KeyAttempt, attempt,
				"delay", delay.String(), logger.KeyError, err.Error())

			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
			delay = time.Duration(float64(delay) * policy.Multiplier)
			if delay > policy.Max {
				delay = policy.Max
			}
		}
	}
}
