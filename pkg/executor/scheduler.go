package executor

import (
	"context"
	"sync"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ScheduledExecutor runs tasks after a delay or periodically.
//
// A periodic task stops when its context ends, when its future is canceled
// or when a run returns an error. The future then completes with that error.
type ScheduledExecutor interface {
	Executor
	Schedule(ctx context.Context, task Task, delay time.Duration) (*Future, error)
	ScheduleAtFixedRate(ctx context.Context, task Task, initialDelay, period time.Duration) (*Future, error)
	ScheduleWithFixedDelay(ctx context.Context, task Task, initialDelay, delay time.Duration) (*Future, error)
}

// Scheduler is a ScheduledExecutor running a bounded number of task bodies
// at any time.
type Scheduler struct {
	sem    *semaphore.Weighted
	group  errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	logger logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
}

// NewScheduler creates a scheduler. maxConcurrent <= 0 means one.
func NewScheduler(maxConcurrent int, logger logrus.FieldLogger) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.WithField("component", "scheduler"),
	}
}

// start registers a scheduled task and runs loop for it on its own goroutine.
func (s *Scheduler) start(ctx context.Context, task Task, loop func(ctx context.Context) error) (*Future, error) {
	if task == nil {
		return nil, errors.InvalidArgument("task must not be nil")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.ErrRejected
	}

	taskCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	f := newFuture(cancel)
	s.group.Go(func() error {
		defer stop()
		defer cancel()
		f.complete(loop(taskCtx))
		return nil
	})
	return f, nil
}

// runBody runs one invocation of task within the concurrency bound. The
// semaphore wait is abandoned only when the scheduler itself shuts down.
func (s *Scheduler) runBody(ctx context.Context, task Task) error {
	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		return run(ctx, task)
	}
	defer s.sem.Release(1)
	return run(ctx, task)
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Submit runs task as soon as possible.
func (s *Scheduler) Submit(ctx context.Context, task Task) (*Future, error) {
	return s.Schedule(ctx, task, 0)
}

// Schedule runs task once after delay. A task canceled while waiting is
// still invoked, with its canceled context.
func (s *Scheduler) Schedule(ctx context.Context, task Task, delay time.Duration) (*Future, error) {
	return s.start(ctx, task, func(ctx context.Context) error {
		wait(ctx, delay)
		return s.runBody(ctx, task)
	})
}

// ScheduleAtFixedRate runs task every period after initialDelay. A run that
// overruns its period delays the next one; runs never overlap.
func (s *Scheduler) ScheduleAtFixedRate(ctx context.Context, task Task, initialDelay, period time.Duration) (*Future, error) {
	if period <= 0 {
		return nil, errors.InvalidArgument("period must be positive")
	}
	return s.start(ctx, task, func(ctx context.Context) error {
		if !wait(ctx, initialDelay) {
			return ctx.Err()
		}
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			if err := s.runBody(ctx, task); err != nil {
				return err
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// ScheduleWithFixedDelay runs task repeatedly, waiting delay between the end
// of one run and the start of the next.
func (s *Scheduler) ScheduleWithFixedDelay(ctx context.Context, task Task, initialDelay, delay time.Duration) (*Future, error) {
	if delay <= 0 {
		return nil, errors.InvalidArgument("delay must be positive")
	}
	return s.start(ctx, task, func(ctx context.Context) error {
		if !wait(ctx, initialDelay) {
			return ctx.Err()
		}
		for {
			if err := s.runBody(ctx, task); err != nil {
				return err
			}
			if !wait(ctx, delay) {
				return ctx.Err()
			}
		}
	})
}

// Shutdown cancels every scheduled task and waits for running bodies to
// return or ctx to end.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrAlreadyShutDown
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Shutdown deadline reached with tasks still running")
		return ctx.Err()
	}
}
