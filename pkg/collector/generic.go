package collector

import (
	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/instrument"
	"github.com/monitoringcenter/monitoringcenter/pkg/pool"
	"github.com/monitoringcenter/monitoringcenter/pkg/queue"
	"github.com/sirupsen/logrus"
)

// InstrumentQueue registers size and remainingCapacity gauges for q under
// the given name in c and returns a proxy marking rejected offers. Use the
// proxy in place of q.
func InstrumentQueue[T any](c MetricCollector, q queue.Queue[T], topLevelName string, additionalNames ...string) (*instrument.Queue[T], error) {
	if q == nil {
		return nil, errors.InvalidArgument("queue must not be nil")
	}
	rejected, err := c.QueueMetrics(q, topLevelName, additionalNames...)
	if err != nil {
		return nil, err
	}
	return instrument.NewQueue(q, rejected, loggerOf(c)), nil
}

// InstrumentPool returns a proxy for p timing every Acquire under the given
// name in c.
func InstrumentPool[C any](c MetricCollector, p pool.Interface[C], topLevelName string, additionalNames ...string) (*instrument.Pool[C], error) {
	if p == nil {
		return nil, errors.InvalidArgument("pool must not be nil")
	}
	acquire, err := c.PoolMetrics(topLevelName, additionalNames...)
	if err != nil {
		return nil, err
	}
	return instrument.NewPool(p, acquire, loggerOf(c)), nil
}

func loggerOf(c MetricCollector) logrus.FieldLogger {
	if lc, ok := c.(interface{ Logger() logrus.FieldLogger }); ok {
		return lc.Logger()
	}
	return nil
}
