package executor

import (
	"context"
	"sync"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// PoolConfig sizes a Pool.
type PoolConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// DefaultPoolConfig returns a small general-purpose configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Workers: 4, QueueSize: 256}
}

type job struct {
	ctx    context.Context
	task   Task
	future *Future
	stop   func() bool
}

// Pool is a fixed set of workers draining a bounded queue.
type Pool struct {
	queue  chan job
	group  errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	logger logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
}

// NewPool starts a pool. Non-positive sizes fall back to the defaults.
func NewPool(config PoolConfig, logger logrus.FieldLogger) *Pool {
	defaults := DefaultPoolConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan job, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.WithField("component", "executor"),
	}
	for i := 0; i < config.Workers; i++ {
		p.group.Go(p.worker)
	}
	return p
}

func (p *Pool) worker() error {
	for j := range p.queue {
		err := run(j.ctx, j.task)
		j.stop()
		j.future.cancel()
		j.future.complete(err)
	}
	return nil
}

// Submit queues task. The task's context is derived from ctx and is also
// canceled when the pool is shut down without draining. A full queue or a
// shut down pool yields ErrRejected.
func (p *Pool) Submit(ctx context.Context, task Task) (*Future, error) {
	if task == nil {
		return nil, errors.InvalidArgument("task must not be nil")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, errors.ErrRejected
	}

	taskCtx, cancel := context.WithCancel(ctx)
	j := job{
		ctx:    taskCtx,
		task:   task,
		future: newFuture(cancel),
		stop:   context.AfterFunc(p.ctx, cancel),
	}
	select {
	case p.queue <- j:
		return j.future, nil
	default:
		j.stop()
		cancel()
		return nil, errors.ErrRejected
	}
}

// Len returns the number of queued tasks.
func (p *Pool) Len() int {
	return len(p.queue)
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish. If ctx ends first, every outstanding task's context is canceled;
// queued tasks still run, with a canceled context, and Shutdown keeps
// waiting for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.ErrAlreadyShutDown
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.logger.WithField("queued", len(p.queue)).Warn("Shutdown deadline reached, canceling outstanding tasks")
		p.cancel()
		<-done
		return ctx.Err()
	}
}
