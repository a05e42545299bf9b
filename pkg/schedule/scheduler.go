package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/crawlpoint/connector/internal/logger"
)

// opKind is the actor command discriminator.
type opKind int

const (
	opAdd opKind = iota
	opRemove
	opTrigger
)

type op struct {
	kind  opKind
	name  string
	sched Schedule
	task  Task
}

type entry struct {
	sched Schedule
	task  Task
	next  time.Time
}

// Scheduler fires tasks per their schedules. One actor goroutine owns the
// job table; Add, Remove and Trigger enqueue commands to it and are safe
// from any goroutine.
type Scheduler struct {
	ops  chan op
	done chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	tasks     sync.WaitGroup

	// now is stubbed in tests.
	now func() time.Time
}

// NewScheduler creates a stopped scheduler; call Start.
func NewScheduler() *Scheduler {
	return &Scheduler{
		ops:  make(chan op, 16),
		done: make(chan struct{}),
		now:  time.Now,
	}
}

// Start launches the actor. Tasks run with ctx and end when it is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.loop(ctx)
	})
}

// Add registers or replaces the named job. The first fire is computed from
// now.
func (s *Scheduler) Add(name string, sched Schedule, task Task) {
	s.enqueue(op{kind: opAdd, name: name, sched: sched, task: task})
}

// Remove drops the named job. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.enqueue(op{kind: opRemove, name: name})
}

// Trigger runs the named job immediately without touching its schedule.
func (s *Scheduler) Trigger(name string) {
	s.enqueue(op{kind: opTrigger, name: name})
}

// Stop ends the actor and waits up to timeout for running tasks.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.stopOnce.Do(func() { close(s.done) })

	waited := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(timeout):
		logger.Warn("Scheduler stop timed out waiting for tasks")
	}
}

func (s *Scheduler) enqueue(o op) {
	select {
	case s.ops <- o:
	case <-s.done:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	jobs := map[string]*entry{}
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	rearm := func() {
		timer.Stop()
		var soonest time.Time
		for _, e := range jobs {
			if soonest.IsZero() || e.next.Before(soonest) {
				soonest = e.next
			}
		}
		if soonest.IsZero() {
			return
		}
		d := soonest.Sub(s.now())
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
	}

	for {
		select {
		case o := <-s.ops:
			switch o.kind {
			case opAdd:
				next := o.sched.Next(s.now())
				if next.IsZero() {
					// An already-due one-shot still owes its single run.
					if one, ok := o.sched.(once); ok && !time.Time(one).IsZero() {
						s.launch(ctx, o.name, o.task)
						continue
					}
					logger.Warn("Job schedule never fires, ignoring", logger.KeyTask, o.name)
					continue
				}
				jobs[o.name] = &entry{sched: o.sched, task: o.task, next: next}
				logger.Debug("Scheduled job", logger.KeyTask, o.name, "next", next)
			case opRemove:
				delete(jobs, o.name)
			case opTrigger:
				if e, ok := jobs[o.name]; ok {
					s.launch(ctx, o.name, e.task)
				} else {
					logger.Warn("Trigger for unknown job", logger.KeyTask, o.name)
				}
			}
			rearm()

		case <-timer.C:
			now := s.now()
			for name, e := range jobs {
				if e.next.After(now) {
					continue
				}
				s.launch(ctx, name, e.task)
				if e.next = e.sched.Next(now); e.next.IsZero() {
					delete(jobs, name)
				}
			}
			rearm()

		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) launch(ctx context.Context, name string, task Task) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		start := time.Now()
		if err := task(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Scheduled job failed", logger.KeyTask, name,
				logger.KeyDurationMs, time.Since(start).Milliseconds(), logger.KeyError, err.Error())
			return
		}
		logger.Debug("Scheduled job finished", logger.KeyTask, name,
			logger.KeyDurationMs, time.Since(start).Milliseconds())
	}()
}
