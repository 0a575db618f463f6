package monitoring

import (
	"database/sql"

	"github.com/monitoringcenter/monitoringcenter/pkg/collector"
	"github.com/monitoringcenter/monitoringcenter/pkg/executor"
	"github.com/monitoringcenter/monitoringcenter/pkg/instrument"
	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// lazyCollector resolves its target on every call: the shared collector for
// its namespace while the center is configured, a no-op collector otherwise.
// Handles obtained before configuration are disposable.
type lazyCollector struct {
	namespace string
	center    *Center
	noop      *collector.Noop
}

var _ collector.MetricCollector = (*lazyCollector)(nil)

func (l *lazyCollector) target() collector.MetricCollector {
	if c := l.center.collector(l.namespace); c != nil {
		return c
	}
	return l.noop
}

func (l *lazyCollector) Namespace() string { return l.noop.Namespace() }

// Logger returns the center's logger.
func (l *lazyCollector) Logger() logrus.FieldLogger {
	return l.center.logger.WithField("namespace", l.noop.Namespace())
}

func (l *lazyCollector) GetCounter(topLevelName string, additionalNames ...string) (metrics.Counter, error) {
	return l.target().GetCounter(topLevelName, additionalNames...)
}

func (l *lazyCollector) GetTimer(topLevelName string, additionalNames ...string) (metrics.Timer, error) {
	return l.target().GetTimer(topLevelName, additionalNames...)
}

func (l *lazyCollector) GetMeter(topLevelName string, additionalNames ...string) (metrics.Meter, error) {
	return l.target().GetMeter(topLevelName, additionalNames...)
}

func (l *lazyCollector) GetHistogram(topLevelName string, additionalNames ...string) (metrics.Histogram, error) {
	return l.target().GetHistogram(topLevelName, additionalNames...)
}

func (l *lazyCollector) RegisterGauge(gauge metrics.Gauge, topLevelName string, additionalNames ...string) error {
	return l.target().RegisterGauge(gauge, topLevelName, additionalNames...)
}

func (l *lazyCollector) RegisterMetric(metric metrics.Metric, topLevelName string, additionalNames ...string) error {
	return l.target().RegisterMetric(metric, topLevelName, additionalNames...)
}

func (l *lazyCollector) RegisterMetricSet(set metrics.MetricSet, names ...string) error {
	return l.target().RegisterMetricSet(set, names...)
}

func (l *lazyCollector) ReplaceMetric(metric metrics.Metric, topLevelName string, additionalNames ...string) error {
	return l.target().ReplaceMetric(metric, topLevelName, additionalNames...)
}

func (l *lazyCollector) RemoveMetric(metric metrics.Metric, topLevelName string, additionalNames ...string) error {
	return l.target().RemoveMetric(metric, topLevelName, additionalNames...)
}

func (l *lazyCollector) RemoveMetricSet(set metrics.MetricSet, names ...string) error {
	return l.target().RemoveMetricSet(set, names...)
}

func (l *lazyCollector) RemoveAll() { l.target().RemoveAll() }

func (l *lazyCollector) InstrumentExecutor(delegate executor.Executor, topLevelName string, additionalNames ...string) (*instrument.Executor, error) {
	return l.target().InstrumentExecutor(delegate, topLevelName, additionalNames...)
}

func (l *lazyCollector) InstrumentScheduledExecutor(delegate executor.ScheduledExecutor, topLevelName string, additionalNames ...string) (*instrument.ScheduledExecutor, error) {
	return l.target().InstrumentScheduledExecutor(delegate, topLevelName, additionalNames...)
}

func (l *lazyCollector) InstrumentDataSource(db *sql.DB, topLevelName string, additionalNames ...string) (*instrument.DB, error) {
	return l.target().InstrumentDataSource(db, topLevelName, additionalNames...)
}

func (l *lazyCollector) QueueMetrics(s instrument.Sized, topLevelName string, additionalNames ...string) (metrics.Meter, error) {
	return l.target().QueueMetrics(s, topLevelName, additionalNames...)
}

func (l *lazyCollector) PoolMetrics(topLevelName string, additionalNames ...string) (metrics.Timer, error) {
	return l.target().PoolMetrics(topLevelName, additionalNames...)
}
