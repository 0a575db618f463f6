// Package instrument wraps executors, queues, connection pools and databases
// in proxies that record metrics around each operation.
//
// A proxy never changes the outcome of the wrapped call. Errors and panics
// from the delegate reach the caller unchanged, and a failure to record a
// metric is logged and dropped.
package instrument

import (
	"github.com/sirupsen/logrus"
)

type recorder struct {
	logger logrus.FieldLogger
}

func newRecorder(logger logrus.FieldLogger, resource string) recorder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return recorder{logger: logger.WithFields(logrus.Fields{
		"component": "instrument",
		"resource":  resource,
	})}
}

// record logs err if recording metric failed.
func (r recorder) record(metric string, err error) {
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"metric": metric,
			"error":  err,
		}).Warn("Failed to record metric")
	}
}
