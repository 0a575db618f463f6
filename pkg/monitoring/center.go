// Package monitoring ties the registry, collectors, health checks and
// reporters together behind one explicitly owned Center.
//
// A Center is configured once and shut down once. Collectors handed out
// before Configure are no-ops that start forwarding to the registry as soon
// as configuration completes, so callers never branch on configuration
// state.
package monitoring

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/monitoringcenter/monitoringcenter/pkg/collector"
	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/export/graphite"
	"github.com/monitoringcenter/monitoringcenter/pkg/export/otel"
	promexport "github.com/monitoringcenter/monitoringcenter/pkg/export/prometheus"
	"github.com/monitoringcenter/monitoringcenter/pkg/health"
	"github.com/monitoringcenter/monitoringcenter/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
)

const (
	stateOpen int32 = iota
	stateConfiguring
	stateConfigured
	stateShutDown
)

// GraphiteHealthCheck names the check registered for the Graphite circuit
// breaker when reporting is enabled.
const GraphiteHealthCheck = "graphite"

// Center owns the metric registry and everything built on it.
type Center struct {
	state    atomic.Int32
	logger   logrus.FieldLogger
	registry *registry.Registry
	checker  *health.Checker

	mu         sync.RWMutex
	config     Config
	collectors map[string]*collector.Collector
	reporter   *graphite.Reporter
	gatherer   prometheus.Gatherer
	cancel     context.CancelFunc
	healthDone chan struct{}
}

// Option configures a Center.
type Option func(*Center)

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Center) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegistry uses reg instead of a fresh registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(c *Center) {
		if reg != nil {
			c.registry = reg
		}
	}
}

// New creates an unconfigured center. Health checks may be registered and
// collectors obtained right away.
func New(opts ...Option) *Center {
	c := &Center{
		logger:     logrus.StandardLogger(),
		collectors: make(map[string]*collector.Collector),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("component", "monitoring")
	if c.registry == nil {
		c.registry = registry.New(registry.WithLogger(c.logger))
	}
	c.checker = health.NewChecker(health.DefaultConfig(), c.logger)
	reg, err := promexport.NewRegistry(promexport.NewCollector(c.registry, promexport.WithLogger(c.logger)), false)
	c.gatherer = gathererOrEmpty(reg, err, c.logger)
	return c
}

// gathererOrEmpty substitutes an empty registry when reg could not be built,
// so Prometheus never returns nil.
func gathererOrEmpty(reg *prometheus.Registry, err error, logger logrus.FieldLogger) prometheus.Gatherer {
	if err != nil {
		logger.WithError(err).Warn("Prometheus registry unavailable until configured")
		return prometheus.NewRegistry()
	}
	return reg
}

// Configure applies cfg. It succeeds at most once per center, failing with
// ALREADY_CONFIGURED on repeat and ALREADY_SHUT_DOWN after Shutdown. A
// configuration error leaves the center unconfigured.
func (c *Center) Configure(cfg Config) error {
	if !c.state.CompareAndSwap(stateOpen, stateConfiguring) {
		return c.stateError()
	}
	if err := cfg.Validate(); err != nil {
		c.state.CompareAndSwap(stateConfiguring, stateOpen)
		return err
	}

	logger := c.logger.WithField("application", cfg.Naming.ApplicationName)

	var reporter *graphite.Reporter
	if cfg.Graphite.Enabled {
		gc := cfg.Graphite
		gc.Prefix = cfg.Naming.Prefix()
		r, err := graphite.NewReporter(gc, c.registry, c.logger)
		if err != nil {
			c.state.CompareAndSwap(stateConfiguring, stateOpen)
			return err
		}
		reporter = r
	}

	gatherer, err := promexport.NewRegistry(promexport.NewCollector(c.registry,
		promexport.WithConstLabels(cfg.Naming.Labels()),
		promexport.WithLogger(c.logger),
	), cfg.RuntimeMetrics)
	if err != nil {
		c.state.CompareAndSwap(stateConfiguring, stateOpen)
		return errors.NewError(errors.ErrCodeInternalError, "building prometheus registry").WithCause(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	healthDone := make(chan struct{})

	c.checker.Reconfigure(cfg.Health)

	c.mu.Lock()
	c.config = cfg
	c.reporter = reporter
	c.gatherer = gatherer
	c.cancel = cancel
	c.healthDone = healthDone
	c.mu.Unlock()

	go func() {
		defer close(healthDone)
		c.checker.StartPeriodic(ctx, cfg.Health.Interval)
	}()
	if reporter != nil {
		if cfg.Graphite.Breaker.Enabled {
			if err := c.checker.Register(GraphiteHealthCheck, reporter.Breaker().HealthCheck); err != nil {
				logger.WithError(err).Warn("Graphite health check not registered")
			}
		}
		if err := reporter.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start graphite reporter")
		}
	}

	if !c.state.CompareAndSwap(stateConfiguring, stateConfigured) {
		c.stop(context.Background(), false)
		return c.stateError()
	}
	logger.WithFields(logrus.Fields{
		"postfix_policy": cfg.Naming.PostfixPolicy.String(),
		"graphite":       reporter != nil,
	}).Info("Monitoring center configured")
	return nil
}

// Shutdown stops the reporter and health loop, sends a final report and
// clears the registry. Collectors become no-ops. It succeeds at most once.
func (c *Center) Shutdown(ctx context.Context) error {
	for {
		s := c.state.Load()
		if s == stateShutDown {
			return errors.NewError(errors.ErrCodeAlreadyShutDown, "monitoring center already shut down").
				WithComponent("monitoring")
		}
		if c.state.CompareAndSwap(s, stateShutDown) {
			if s == stateConfigured {
				c.stop(ctx, true)
			}
			break
		}
	}

	removed := c.registry.RemoveMatching(func(string) bool { return true })
	c.logger.WithField("removed", removed).Info("Monitoring center shut down")
	return nil
}

func (c *Center) stop(ctx context.Context, finalReport bool) {
	c.mu.Lock()
	reporter, cancel, healthDone := c.reporter, c.cancel, c.healthDone
	c.reporter, c.cancel, c.healthDone = nil, nil, nil
	c.collectors = make(map[string]*collector.Collector)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-healthDone
	}
	if reporter != nil {
		reporter.Stop()
		if finalReport {
			if err := reporter.Report(ctx); err != nil {
				c.logger.WithError(err).Warn("Final graphite report failed")
			}
			// Close the connection the final report opened.
			reporter.Stop()
		}
	}
}

func (c *Center) stateError() error {
	switch c.state.Load() {
	case stateShutDown:
		return errors.NewError(errors.ErrCodeAlreadyShutDown, "monitoring center already shut down").
			WithComponent("monitoring")
	default:
		return errors.NewError(errors.ErrCodeAlreadyConfigured, "monitoring center already configured").
			WithComponent("monitoring")
	}
}

// Configured reports whether Configure has completed and Shutdown has not run.
func (c *Center) Configured() bool {
	return c.state.Load() == stateConfigured
}

// collector returns the shared collector for namespace, or nil when the
// center is not configured.
func (c *Center) collector(namespace string) *collector.Collector {
	if !c.Configured() {
		return nil
	}

	c.mu.RLock()
	col, ok := c.collectors[namespace]
	policy := c.config.Naming.PostfixPolicy
	c.mu.RUnlock()
	if ok {
		return col
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collectors[namespace]; ok {
		return col
	}
	col, err := collector.New(namespace, c.registry, policy, c.logger)
	if err != nil {
		return nil
	}
	c.collectors[namespace] = col
	return col
}

// MetricCollector returns a collector for namespace. It is usable before
// Configure and after Shutdown, as a no-op in both cases.
func (c *Center) MetricCollector(namespace string) (collector.MetricCollector, error) {
	if strings.TrimSpace(namespace) == "" {
		return nil, errors.InvalidArgument("collector namespace must not be blank")
	}
	noop := collector.NewNoop(namespace)
	return &lazyCollector{namespace: noop.Namespace(), center: c, noop: noop}, nil
}

// MetricCollectorFor returns a collector namespaced by the type name of v.
// Pointers are dereferenced, and a reflect.Type is used as is.
func (c *Center) MetricCollectorFor(v any) (collector.MetricCollector, error) {
	t, ok := v.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(v)
	}
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return nil, errors.InvalidArgument("cannot derive a namespace from %T", v)
	}
	return c.MetricCollector(t.Name())
}

// Metrics returns a name-sorted snapshot of the registered metrics.
func (c *Center) Metrics(filter registry.Filter) []registry.Entry {
	return c.registry.Metrics(filter)
}

// NamingConfig returns the naming configuration in effect. It is the zero
// value before Configure.
func (c *Center) NamingConfig() NamingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.Naming
}

// Prometheus returns a gatherer over the registry.
func (c *Center) Prometheus() prometheus.Gatherer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gatherer
}

// OTel starts observing the registry through meter. Close the returned
// bridge to stop.
func (c *Center) OTel(meter metric.Meter) (*otel.Bridge, error) {
	return otel.NewBridge(meter, c.registry)
}

// ReportNow pushes the current readings to Graphite. It fails with
// NOT_CONFIGURED unless the center is configured with Graphite enabled.
func (c *Center) ReportNow(ctx context.Context) error {
	c.mu.RLock()
	reporter := c.reporter
	c.mu.RUnlock()

	if !c.Configured() || reporter == nil {
		return errors.NewError(errors.ErrCodeNotConfigured, "graphite reporting is not configured").
			WithComponent("monitoring")
	}
	return reporter.Report(ctx)
}

// HealthChecker returns the checker backing the health-check methods.
func (c *Center) HealthChecker() *health.Checker {
	return c.checker
}

// RegisterHealthCheck adds a named check. Duplicate names fail with
// DUPLICATE_NAME.
func (c *Center) RegisterHealthCheck(name string, check health.CheckFunction) error {
	return c.checker.Register(name, check)
}

// RemoveHealthCheck removes a named check and reports whether it existed.
func (c *Center) RemoveHealthCheck(name string) bool {
	return c.checker.Unregister(name)
}

// RunHealthCheck runs one check. An unknown name fails with LOOKUP_NOT_FOUND,
// and NO_HEALTH_CHECKS is returned when none are registered.
func (c *Center) RunHealthCheck(ctx context.Context, name string) (*health.Result, error) {
	return c.checker.Run(ctx, name)
}

// RunHealthChecks runs every check concurrently.
func (c *Center) RunHealthChecks(ctx context.Context) (map[string]*health.Result, error) {
	return c.checker.RunAll(ctx)
}
