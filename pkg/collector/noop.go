package collector

import (
	"database/sql"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/executor"
	"github.com/monitoringcenter/monitoringcenter/pkg/instrument"
	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/monitoringcenter/monitoringcenter/pkg/naming"
)

// Noop is a MetricCollector bound to nothing. Getters return fresh,
// unregistered metrics, registration and removal do nothing, and the
// instrumentation helpers still return working proxies whose metrics are
// discarded. Name validation is kept so callers see the same argument
// errors as with a real collector.
type Noop struct {
	namespace string
}

var _ MetricCollector = (*Noop)(nil)

// NewNoop creates a no-op collector. A blank namespace is accepted.
func NewNoop(namespace string) *Noop {
	return &Noop{namespace: naming.Join(namespace)}
}

func (n *Noop) Namespace() string { return n.namespace }

func (n *Noop) check(topLevelName string, additionalNames []string) error {
	_, err := naming.Build(n.namespace, metrics.KindCounter, naming.PolicyOff, topLevelName, additionalNames...)
	return err
}

func (n *Noop) GetCounter(topLevelName string, additionalNames ...string) (metrics.Counter, error) {
	if err := n.check(topLevelName, additionalNames); err != nil {
		return nil, err
	}
	return metrics.NewCounter(), nil
}

func (n *Noop) GetTimer(topLevelName string, additionalNames ...string) (metrics.Timer, error) {
	if err := n.check(topLevelName, additionalNames); err != nil {
		return nil, err
	}
	return metrics.NewTimer(), nil
}

func (n *Noop) GetMeter(topLevelName string, additionalNames ...string) (metrics.Meter, error) {
	if err := n.check(topLevelName, additionalNames); err != nil {
		return nil, err
	}
	return metrics.NewMeter(), nil
}

func (n *Noop) GetHistogram(topLevelName string, additionalNames ...string) (metrics.Histogram, error) {
	if err := n.check(topLevelName, additionalNames); err != nil {
		return nil, err
	}
	return metrics.NewHistogram(), nil
}

func (n *Noop) RegisterGauge(metrics.Gauge, string, ...string) error                    { return nil }
func (n *Noop) RegisterMetric(metrics.Metric, string, ...string) error                  { return nil }
func (n *Noop) RegisterMetricSet(metrics.MetricSet, ...string) error                    { return nil }
func (n *Noop) ReplaceMetric(metrics.Metric, string, ...string) error                   { return nil }
func (n *Noop) RemoveMetric(metrics.Metric, string, ...string) error                    { return nil }
func (n *Noop) RemoveMetricSet(metrics.MetricSet, ...string) error                      { return nil }
func (n *Noop) RemoveAll()                                                              {}
func (n *Noop) PoolMetrics(string, ...string) (metrics.Timer, error)                    { return metrics.NewTimer(), nil }
func (n *Noop) QueueMetrics(instrument.Sized, string, ...string) (metrics.Meter, error) { return metrics.NewMeter(), nil }

func (n *Noop) InstrumentExecutor(delegate executor.Executor, _ string, _ ...string) (*instrument.Executor, error) {
	if delegate == nil {
		return nil, errors.InvalidArgument("executor must not be nil")
	}
	return instrument.NewExecutor(delegate, instrument.NewExecutorMetrics(), nil), nil
}

func (n *Noop) InstrumentScheduledExecutor(delegate executor.ScheduledExecutor, _ string, _ ...string) (*instrument.ScheduledExecutor, error) {
	if delegate == nil {
		return nil, errors.InvalidArgument("scheduled executor must not be nil")
	}
	return instrument.NewScheduledExecutor(delegate, instrument.NewScheduledMetrics(), nil), nil
}

func (n *Noop) InstrumentDataSource(db *sql.DB, _ string, _ ...string) (*instrument.DB, error) {
	if db == nil {
		return nil, errors.InvalidArgument("data source must not be nil")
	}
	return instrument.NewDB(db, metrics.NewTimer(), nil), nil
}
