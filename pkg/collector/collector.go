// Package collector provides per-namespace views over a metric registry.
//
// A MetricCollector turns short, namespace-relative names into canonical
// names and forwards to the shared registry. Removal computes names exactly
// as registration does, so a metric registered under some parts is removed
// by the same parts.
package collector

import (
	"database/sql"
	"strings"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/executor"
	"github.com/monitoringcenter/monitoringcenter/pkg/instrument"
	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/monitoringcenter/monitoringcenter/pkg/naming"
	"github.com/monitoringcenter/monitoringcenter/pkg/registry"
	"github.com/sirupsen/logrus"
)

// MetricCollector is a namespace-scoped view over a registry.
type MetricCollector interface {
	Namespace() string

	// The getters return the metric bound to the computed name, creating it
	// on first use.
	GetCounter(topLevelName string, additionalNames ...string) (metrics.Counter, error)
	GetTimer(topLevelName string, additionalNames ...string) (metrics.Timer, error)
	GetMeter(topLevelName string, additionalNames ...string) (metrics.Meter, error)
	GetHistogram(topLevelName string, additionalNames ...string) (metrics.Histogram, error)

	// RegisterGauge and RegisterMetric fail with DUPLICATE_NAME if the name
	// is already bound. A MetricSet passed to RegisterMetric is flattened.
	RegisterGauge(gauge metrics.Gauge, topLevelName string, additionalNames ...string) error
	RegisterMetric(metric metrics.Metric, topLevelName string, additionalNames ...string) error
	// RegisterMetricSet binds every leaf of set under names followed by the
	// leaf's path. Nothing stays registered if any leaf fails.
	RegisterMetricSet(set metrics.MetricSet, names ...string) error
	// ReplaceMetric removes then registers. The name is briefly unbound.
	ReplaceMetric(metric metrics.Metric, topLevelName string, additionalNames ...string) error
	RemoveMetric(metric metrics.Metric, topLevelName string, additionalNames ...string) error
	RemoveMetricSet(set metrics.MetricSet, names ...string) error
	// RemoveAll removes every metric inside this collector's namespace.
	RemoveAll()

	InstrumentExecutor(delegate executor.Executor, topLevelName string, additionalNames ...string) (*instrument.Executor, error)
	InstrumentScheduledExecutor(delegate executor.ScheduledExecutor, topLevelName string, additionalNames ...string) (*instrument.ScheduledExecutor, error)
	InstrumentDataSource(db *sql.DB, topLevelName string, additionalNames ...string) (*instrument.DB, error)
	// QueueMetrics registers size and remainingCapacity gauges over s and
	// returns the meter for rejected offers. See InstrumentQueue.
	QueueMetrics(s instrument.Sized, topLevelName string, additionalNames ...string) (metrics.Meter, error)
	// PoolMetrics returns the acquisition timer. See InstrumentPool.
	PoolMetrics(topLevelName string, additionalNames ...string) (metrics.Timer, error)
}

// Collector is the registry-backed MetricCollector.
type Collector struct {
	namespace string
	registry  *registry.Registry
	policy    naming.PostfixPolicy
	logger    logrus.FieldLogger
}

var _ MetricCollector = (*Collector)(nil)

func cleanNamespace(namespace string) (string, error) {
	if strings.TrimSpace(namespace) == "" {
		return "", errors.InvalidArgument("collector namespace must not be blank")
	}
	return naming.Join(namespace), nil
}

// New creates a collector for namespace over reg.
func New(namespace string, reg *registry.Registry, policy naming.PostfixPolicy, logger logrus.FieldLogger) (*Collector, error) {
	ns, err := cleanNamespace(namespace)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, errors.InvalidArgument("registry must not be nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Collector{
		namespace: ns,
		registry:  reg,
		policy:    policy,
		logger:    logger.WithFields(logrus.Fields{"component": "collector", "namespace": ns}),
	}, nil
}

func (c *Collector) Namespace() string { return c.namespace }

// Logger returns the collector's logger.
func (c *Collector) Logger() logrus.FieldLogger { return c.logger }

func (c *Collector) name(kind metrics.Kind, topLevelName string, additionalNames []string) (string, error) {
	return naming.Build(c.namespace, kind, c.policy, topLevelName, additionalNames...)
}

func getOrCreate[M metrics.Metric](c *Collector, kind metrics.Kind, factory func() M, topLevelName string, additionalNames []string) (M, error) {
	var zero M
	name, err := c.name(kind, topLevelName, additionalNames)
	if err != nil {
		return zero, err
	}
	m, err := c.registry.GetOrCreate(name, kind, func() metrics.Metric { return factory() })
	if err != nil {
		return zero, err
	}
	typed, ok := m.(M)
	if !ok {
		return zero, errors.Newf(errors.ErrCodeKindMismatch, "%q does not implement the %s interface", name, kind).
			WithDetail("name", name)
	}
	return typed, nil
}

func (c *Collector) GetCounter(topLevelName string, additionalNames ...string) (metrics.Counter, error) {
	return getOrCreate(c, metrics.KindCounter, metrics.NewCounter, topLevelName, additionalNames)
}

func (c *Collector) GetTimer(topLevelName string, additionalNames ...string) (metrics.Timer, error) {
	return getOrCreate(c, metrics.KindTimer, metrics.NewTimer, topLevelName, additionalNames)
}

func (c *Collector) GetMeter(topLevelName string, additionalNames ...string) (metrics.Meter, error) {
	return getOrCreate(c, metrics.KindMeter, metrics.NewMeter, topLevelName, additionalNames)
}

func (c *Collector) GetHistogram(topLevelName string, additionalNames ...string) (metrics.Histogram, error) {
	return getOrCreate(c, metrics.KindHistogram, metrics.NewHistogram, topLevelName, additionalNames)
}

func (c *Collector) RegisterGauge(gauge metrics.Gauge, topLevelName string, additionalNames ...string) error {
	if gauge == nil {
		return errors.InvalidArgument("gauge must not be nil")
	}
	return c.RegisterMetric(gauge, topLevelName, additionalNames...)
}

func (c *Collector) RegisterMetric(metric metrics.Metric, topLevelName string, additionalNames ...string) error {
	if metric == nil {
		return errors.InvalidArgument("metric must not be nil")
	}
	if set, ok := metric.(metrics.MetricSet); ok && metric.Kind() == metrics.KindSet {
		return c.RegisterMetricSet(set, append([]string{topLevelName}, additionalNames...)...)
	}
	name, err := c.name(metric.Kind(), topLevelName, additionalNames)
	if err != nil {
		return err
	}
	return c.registry.RegisterOnce(name, metric)
}

// leafNames computes the canonical name of every leaf of set.
func (c *Collector) leafNames(set metrics.MetricSet, names []string) ([]string, []metrics.Metric, error) {
	leaves, err := metrics.Flatten(set)
	if err != nil {
		return nil, nil, err
	}
	canonical := make([]string, 0, len(leaves))
	ms := make([]metrics.Metric, 0, len(leaves))
	for _, leaf := range leaves {
		parts := append(append([]string{}, names...), leaf.Path...)
		name, err := c.name(leaf.Metric.Kind(), parts[0], parts[1:])
		if err != nil {
			return nil, nil, err
		}
		canonical = append(canonical, name)
		ms = append(ms, leaf.Metric)
	}
	return canonical, ms, nil
}

func (c *Collector) RegisterMetricSet(set metrics.MetricSet, names ...string) error {
	canonical, ms, err := c.leafNames(set, names)
	if err != nil {
		return err
	}
	for i, name := range canonical {
		if err := c.registry.RegisterOnce(name, ms[i]); err != nil {
			for _, registered := range canonical[:i] {
				c.registry.Remove(registered)
			}
			return err
		}
	}
	return nil
}

func (c *Collector) ReplaceMetric(metric metrics.Metric, topLevelName string, additionalNames ...string) error {
	if err := c.RemoveMetric(metric, topLevelName, additionalNames...); err != nil {
		return err
	}
	return c.RegisterMetric(metric, topLevelName, additionalNames...)
}

func (c *Collector) RemoveMetric(metric metrics.Metric, topLevelName string, additionalNames ...string) error {
	if metric == nil {
		return errors.InvalidArgument("metric must not be nil")
	}
	if set, ok := metric.(metrics.MetricSet); ok && metric.Kind() == metrics.KindSet {
		return c.RemoveMetricSet(set, append([]string{topLevelName}, additionalNames...)...)
	}
	name, err := c.name(metric.Kind(), topLevelName, additionalNames)
	if err != nil {
		return err
	}
	c.registry.Remove(name)
	return nil
}

func (c *Collector) RemoveMetricSet(set metrics.MetricSet, names ...string) error {
	canonical, _, err := c.leafNames(set, names)
	if err != nil {
		return err
	}
	for _, name := range canonical {
		c.registry.Remove(name)
	}
	return nil
}

func (c *Collector) RemoveAll() {
	removed := c.registry.RemoveMatching(func(name string) bool {
		return naming.IsUnder(name, c.namespace)
	})
	c.logger.WithField("count", removed).Debug("Removed all metrics in namespace")
}

func (c *Collector) executorMetrics(topLevelName string, additionalNames []string) (instrument.ExecutorMetrics, error) {
	var (
		m   instrument.ExecutorMetrics
		err error
	)
	sub := func(leaf string) []string { return append(append([]string{}, additionalNames...), leaf) }
	if m.Submitted, err = c.GetMeter(topLevelName, sub("submitted")...); err != nil {
		return m, err
	}
	if m.Running, err = c.GetCounter(topLevelName, sub("running")...); err != nil {
		return m, err
	}
	if m.Completed, err = c.GetMeter(topLevelName, sub("completed")...); err != nil {
		return m, err
	}
	if m.Rejected, err = c.GetMeter(topLevelName, sub("rejected")...); err != nil {
		return m, err
	}
	m.Duration, err = c.GetTimer(topLevelName, sub("duration")...)
	return m, err
}

func (c *Collector) InstrumentExecutor(delegate executor.Executor, topLevelName string, additionalNames ...string) (*instrument.Executor, error) {
	if delegate == nil {
		return nil, errors.InvalidArgument("executor must not be nil")
	}
	m, err := c.executorMetrics(topLevelName, additionalNames)
	if err != nil {
		return nil, err
	}
	return instrument.NewExecutor(delegate, m, c.logger), nil
}

func (c *Collector) InstrumentScheduledExecutor(delegate executor.ScheduledExecutor, topLevelName string, additionalNames ...string) (*instrument.ScheduledExecutor, error) {
	if delegate == nil {
		return nil, errors.InvalidArgument("scheduled executor must not be nil")
	}
	em, err := c.executorMetrics(topLevelName, additionalNames)
	if err != nil {
		return nil, err
	}
	m := instrument.ScheduledMetrics{ExecutorMetrics: em}
	sub := func(leaf string) []string {
		return append(append([]string{}, additionalNames...), "scheduled", leaf)
	}
	if m.ScheduledOnce, err = c.GetMeter(topLevelName, sub("once")...); err != nil {
		return nil, err
	}
	if m.ScheduledRepetitively, err = c.GetMeter(topLevelName, sub("repetitively")...); err != nil {
		return nil, err
	}
	if m.Overrun, err = c.GetCounter(topLevelName, sub("overrun")...); err != nil {
		return nil, err
	}
	if m.PercentOfPeriod, err = c.GetHistogram(topLevelName, sub("percentOfPeriod")...); err != nil {
		return nil, err
	}
	return instrument.NewScheduledExecutor(delegate, m, c.logger), nil
}

// registerGauges binds gauges under topLevelName, additionalNames and each
// key, undoing every binding if one fails.
func (c *Collector) registerGauges(gauges map[string]metrics.Gauge, topLevelName string, additionalNames []string) error {
	set := make(metrics.Set, len(gauges))
	for k, g := range gauges {
		set[k] = g
	}
	return c.RegisterMetricSet(set, append([]string{topLevelName}, additionalNames...)...)
}

func (c *Collector) InstrumentDataSource(db *sql.DB, topLevelName string, additionalNames ...string) (*instrument.DB, error) {
	if db == nil {
		return nil, errors.InvalidArgument("data source must not be nil")
	}
	acquire, err := c.GetTimer(topLevelName, append(append([]string{}, additionalNames...), "acquire")...)
	if err != nil {
		return nil, err
	}
	if err := c.registerGauges(instrument.DBStatsGauges(db), topLevelName, additionalNames); err != nil {
		return nil, err
	}
	return instrument.NewDB(db, acquire, c.logger), nil
}

func (c *Collector) QueueMetrics(s instrument.Sized, topLevelName string, additionalNames ...string) (metrics.Meter, error) {
	if s == nil {
		return nil, errors.InvalidArgument("queue must not be nil")
	}
	rejected, err := c.GetMeter(topLevelName, append(append([]string{}, additionalNames...), "rejected")...)
	if err != nil {
		return nil, err
	}
	size, remaining := instrument.SizeGauges(s)
	gauges := map[string]metrics.Gauge{"size": size, "remainingCapacity": remaining}
	if err := c.registerGauges(gauges, topLevelName, additionalNames); err != nil {
		return nil, err
	}
	return rejected, nil
}

func (c *Collector) PoolMetrics(topLevelName string, additionalNames ...string) (metrics.Timer, error) {
	return c.GetTimer(topLevelName, append(append([]string{}, additionalNames...), "acquire")...)
}
