// Package executor runs tasks on a bounded worker pool or on a schedule.
//
// A task accepted by an executor is invoked exactly once for one-shot
// submissions, even when its context is canceled while it waits. The task
// sees the canceled context and is expected to return promptly. This keeps
// instrumentation wrapped around a task balanced: every accepted task
// starts and finishes.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
)

// Task is a unit of work.
type Task func(ctx context.Context) error

// Executor accepts tasks for asynchronous execution.
type Executor interface {
	// Submit queues task. It returns ErrRejected when the executor cannot
	// accept more work.
	Submit(ctx context.Context, task Task) (*Future, error)
}

// Future tracks a submitted task.
type Future struct {
	done   chan struct{}
	once   sync.Once
	err    error
	cancel context.CancelFunc
}

func newFuture(cancel context.CancelFunc) *Future {
	return &Future{done: make(chan struct{}), cancel: cancel}
}

func (f *Future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed when the task has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx ends, returning the task's
// error or the context's.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task's error once it has finished, nil before.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Cancel cancels the task's context. A periodic task stops being
// rescheduled.
func (f *Future) Cancel() {
	f.cancel()
}

// run invokes task, turning a panic into an error.
func run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewError(errors.ErrCodeInternalError, fmt.Sprintf("task panicked: %v", r)).
				WithComponent("executor")
		}
	}()
	return task(ctx)
}
