// Package graphite pushes metric datapoints to a Graphite server using the
// plaintext protocol, one "<path> <value> <unix-seconds>" line per point.
package graphite

import (
	"bytes"
	"context"
	"math"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/monitoringcenter/monitoringcenter/internal/circuit"
	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/export"
	"github.com/monitoringcenter/monitoringcenter/pkg/naming"
	"github.com/monitoringcenter/monitoringcenter/pkg/registry"
	"github.com/monitoringcenter/monitoringcenter/pkg/retry"
	"github.com/sirupsen/logrus"
)

// Config represents Graphite reporter configuration
type Config struct {
	Enabled  bool          `yaml:"enabled"`
	Address  string        `yaml:"address"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Retry    retry.Config  `yaml:"retry"`

	// Breaker skips reports while Graphite keeps failing
	Breaker circuit.Config `yaml:"circuit_breaker"`

	// Prefix is prepended to every path. It is derived from the node
	// identity rather than read from the file.
	Prefix string `yaml:"-"`
}

// DefaultConfig returns a disabled reporter configuration with the usual Graphite port.
func DefaultConfig() Config {
	return Config{
		Address:  "localhost:2003",
		Interval: time.Minute,
		Timeout:  5 * time.Second,
		Retry:    retry.DefaultConfig(),
		Breaker:  circuit.DefaultConfig(),
	}
}

// Reporter periodically writes every registered metric to Graphite.
type Reporter struct {
	config  Config
	source  export.Source
	filter  registry.Filter
	retryer *retry.Retryer
	breaker *circuit.Breaker
	logger  logrus.FieldLogger
	dialer  net.Dialer
	now     func() time.Time

	// mu serializes reports and guards conn.
	mu   sync.Mutex
	conn net.Conn

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReporter creates a reporter reading from source. The connection is
// opened lazily on the first report.
func NewReporter(config Config, source export.Source, logger logrus.FieldLogger) (*Reporter, error) {
	if source == nil {
		return nil, errors.InvalidArgument("graphite reporter needs a metric source")
	}
	if config.Address == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "graphite address must not be empty").
			WithDetail("field", "address")
	}
	if config.Interval <= 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "graphite interval must be positive").
			WithDetail("field", "interval")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithFields(logrus.Fields{
		"component": "graphite",
		"address":   config.Address,
	})

	r := &Reporter{
		config: config,
		source: source,
		filter: registry.All,
		logger: logger,
		dialer: net.Dialer{Timeout: config.Timeout},
		now:    time.Now,
	}
	r.retryer = retry.New(config.Retry).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("Graphite write failed, retrying")
	})

	bc := config.Breaker
	bc.OnStateChange = func(_ string, from, to circuit.State) {
		logger.WithFields(logrus.Fields{
			"from": from.String(),
			"to":   to.String(),
		}).Warn("Graphite circuit breaker state changed")
	}
	r.breaker = circuit.New("graphite", bc)
	return r, nil
}

// Start runs Report every interval until Stop is called or ctx ends.
func (r *Reporter) Start(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if r.done != nil {
		return errors.NewError(errors.ErrCodeAlreadyConfigured, "graphite reporter already started").
			WithComponent("graphite")
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)

	r.logger.WithField("interval", r.config.Interval).Info("Graphite reporter started")
	return nil
}

func (r *Reporter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := r.Report(ctx)
			switch {
			case err == nil, ctx.Err() != nil:
			case errors.IsCode(err, errors.ErrCodeCircuitOpen):
				r.logger.WithError(err).Debug("Graphite report skipped")
			default:
				r.logger.WithError(err).Error("Graphite report failed")
			}
		}
	}
}

// Stop ends the periodic loop and closes the connection. It does not send
// a final report.
func (r *Reporter) Stop() {
	r.runMu.Lock()
	if r.cancel != nil {
		r.cancel()
		<-r.done
		r.cancel, r.done = nil, nil
	}
	r.runMu.Unlock()

	r.mu.Lock()
	r.closeConn()
	r.mu.Unlock()
}

// Report writes one datapoint line per statistic of every registered
// metric. Points with non-finite values are skipped.
func (r *Reporter) Report(ctx context.Context) error {
	payload := r.render(export.ExpandAll(r.source.Metrics(r.filter)), r.now())
	if len(payload) == 0 {
		return nil
	}
	return r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.retryer.Do(ctx, func(ctx context.Context) error {
			return r.send(ctx, payload)
		})
	})
}

// Breaker returns the circuit breaker guarding the connection.
func (r *Reporter) Breaker() *circuit.Breaker {
	return r.breaker
}

func (r *Reporter) render(points []export.Point, at time.Time) []byte {
	var buf bytes.Buffer
	ts := strconv.FormatInt(at.Unix(), 10)
	for _, p := range points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		buf.WriteString(naming.Join(r.config.Prefix, p.Path()))
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatFloat(p.Value, 'f', -1, 64))
		buf.WriteByte(' ')
		buf.WriteString(ts)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func (r *Reporter) send(ctx context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		conn, err := r.dialer.DialContext(ctx, "tcp", r.config.Address)
		if err != nil {
			return errors.NewError(errors.ErrCodeConnectionFailed, "failed to connect to graphite").
				WithCause(err).
				WithComponent("graphite")
		}
		r.conn = conn
	}

	if err := r.conn.SetWriteDeadline(time.Now().Add(r.config.Timeout)); err != nil {
		r.closeConn()
		return errors.NewError(errors.ErrCodeNetworkError, "failed to set write deadline").
			WithCause(err).
			WithComponent("graphite")
	}
	if _, err := r.conn.Write(payload); err != nil {
		r.closeConn()
		return errors.NewError(errors.ErrCodeNetworkError, "failed to write to graphite").
			WithCause(err).
			WithComponent("graphite")
	}
	return nil
}

// closeConn must be called with mu held.
func (r *Reporter) closeConn() {
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}
