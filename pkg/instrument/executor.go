package instrument

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/executor"
	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// ExecutorMetrics are the handles an executor proxy records into.
type ExecutorMetrics struct {
	Submitted metrics.Meter
	Running   metrics.Counter
	Completed metrics.Meter
	Rejected  metrics.Meter
	Duration  metrics.Timer
}

// NewExecutorMetrics returns unregistered handles.
func NewExecutorMetrics() ExecutorMetrics {
	return ExecutorMetrics{
		Submitted: metrics.NewMeter(),
		Running:   metrics.NewCounter(),
		Completed: metrics.NewMeter(),
		Rejected:  metrics.NewMeter(),
		Duration:  metrics.NewTimer(),
	}
}

// Executor is an instrumented executor.Executor.
//
// Every submission marks Submitted before it reaches the delegate. A
// rejected submission marks Rejected and returns the delegate's error. An
// accepted task increments Running when it starts; when it returns, panics
// or observes cancellation it decrements Running, marks Completed and
// records its duration.
type Executor struct {
	delegate executor.Executor
	metrics  ExecutorMetrics
	rec      recorder
}

var _ executor.Executor = (*Executor)(nil)

// NewExecutor wraps delegate.
func NewExecutor(delegate executor.Executor, m ExecutorMetrics, logger logrus.FieldLogger) *Executor {
	return &Executor{
		delegate: delegate,
		metrics:  m,
		rec:      newRecorder(logger, "executor"),
	}
}

// Metrics returns the proxy's handles.
func (e *Executor) Metrics() ExecutorMetrics {
	return e.metrics
}

func (e *Executor) Submit(ctx context.Context, task executor.Task) (*executor.Future, error) {
	e.rec.record("submitted", e.metrics.Submitted.Mark(1))
	f, err := e.delegate.Submit(ctx, e.wrap(task))
	return f, e.checkRejected(err)
}

func (e *Executor) checkRejected(err error) error {
	if err != nil && stderrors.Is(err, errors.ErrRejected) {
		e.rec.record("rejected", e.metrics.Rejected.Mark(1))
	}
	return err
}

func (e *Executor) wrap(task executor.Task) executor.Task {
	if task == nil {
		return nil
	}
	return func(ctx context.Context) error {
		e.rec.record("running", e.metrics.Running.Inc(1))
		start := time.Now()
		defer func() {
			e.rec.record("duration", e.metrics.Duration.Update(time.Since(start)))
			e.rec.record("running", e.metrics.Running.Dec(1))
			e.rec.record("completed", e.metrics.Completed.Mark(1))
		}()
		return task(ctx)
	}
}
