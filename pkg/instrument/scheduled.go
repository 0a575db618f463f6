package instrument

import (
	"context"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/executor"
	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// ScheduledMetrics extend ExecutorMetrics with scheduling statistics.
type ScheduledMetrics struct {
	ExecutorMetrics
	ScheduledOnce         metrics.Meter
	ScheduledRepetitively metrics.Meter
	// Overrun counts fixed-rate runs that took longer than their period.
	Overrun metrics.Counter
	// PercentOfPeriod records each fixed-rate run's duration as a
	// percentage of its period.
	PercentOfPeriod metrics.Histogram
}

// NewScheduledMetrics returns unregistered handles.
func NewScheduledMetrics() ScheduledMetrics {
	return ScheduledMetrics{
		ExecutorMetrics:       NewExecutorMetrics(),
		ScheduledOnce:         metrics.NewMeter(),
		ScheduledRepetitively: metrics.NewMeter(),
		Overrun:               metrics.NewCounter(),
		PercentOfPeriod:       metrics.NewHistogram(),
	}
}

// ScheduledExecutor is an instrumented executor.ScheduledExecutor. Each run
// of a periodic task counts as one start and one completion.
type ScheduledExecutor struct {
	*Executor
	delegate executor.ScheduledExecutor
	metrics  ScheduledMetrics
}

var _ executor.ScheduledExecutor = (*ScheduledExecutor)(nil)

// NewScheduledExecutor wraps delegate.
func NewScheduledExecutor(delegate executor.ScheduledExecutor, m ScheduledMetrics, logger logrus.FieldLogger) *ScheduledExecutor {
	return &ScheduledExecutor{
		Executor: &Executor{
			delegate: delegate,
			metrics:  m.ExecutorMetrics,
			rec:      newRecorder(logger, "scheduled_executor"),
		},
		delegate: delegate,
		metrics:  m,
	}
}

// ScheduledMetrics returns the proxy's handles.
func (s *ScheduledExecutor) ScheduledMetrics() ScheduledMetrics {
	return s.metrics
}

func (s *ScheduledExecutor) Schedule(ctx context.Context, task executor.Task, delay time.Duration) (*executor.Future, error) {
	s.rec.record("submitted", s.metrics.Submitted.Mark(1))
	s.rec.record("scheduled.once", s.metrics.ScheduledOnce.Mark(1))
	f, err := s.delegate.Schedule(ctx, s.wrap(task), delay)
	return f, s.checkRejected(err)
}

func (s *ScheduledExecutor) ScheduleAtFixedRate(ctx context.Context, task executor.Task, initialDelay, period time.Duration) (*executor.Future, error) {
	s.rec.record("submitted", s.metrics.Submitted.Mark(1))
	s.rec.record("scheduled.repetitively", s.metrics.ScheduledRepetitively.Mark(1))
	f, err := s.delegate.ScheduleAtFixedRate(ctx, s.wrapPeriodic(task, period), initialDelay, period)
	return f, s.checkRejected(err)
}

func (s *ScheduledExecutor) ScheduleWithFixedDelay(ctx context.Context, task executor.Task, initialDelay, delay time.Duration) (*executor.Future, error) {
	s.rec.record("submitted", s.metrics.Submitted.Mark(1))
	s.rec.record("scheduled.repetitively", s.metrics.ScheduledRepetitively.Mark(1))
	f, err := s.delegate.ScheduleWithFixedDelay(ctx, s.wrap(task), initialDelay, delay)
	return f, s.checkRejected(err)
}

func (s *ScheduledExecutor) wrapPeriodic(task executor.Task, period time.Duration) executor.Task {
	if task == nil {
		return nil
	}
	return func(ctx context.Context) error {
		s.rec.record("running", s.metrics.Running.Inc(1))
		start := time.Now()
		defer func() {
			elapsed := time.Since(start)
			s.rec.record("duration", s.metrics.Duration.Update(elapsed))
			if period > 0 {
				if elapsed > period {
					s.rec.record("scheduled.overrun", s.metrics.Overrun.Inc(1))
				}
				percent := int64(elapsed) * 100 / int64(period)
				s.rec.record("scheduled.percentOfPeriod", s.metrics.PercentOfPeriod.Update(percent))
			}
			s.rec.record("running", s.metrics.Running.Dec(1))
			s.rec.record("completed", s.metrics.Completed.Mark(1))
		}()
		return task(ctx)
	}
}
