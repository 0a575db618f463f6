// Package health runs named health checks and tracks their state over time.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CheckFunction defines the signature for health check functions. A nil
// return means healthy.
type CheckFunction func(ctx context.Context) error

// Config represents health checker configuration
type Config struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`

	// ErrorThreshold is the number of consecutive failures before a check is degraded
	ErrorThreshold int `yaml:"error_threshold" json:"error_threshold"`

	// UnavailableThreshold is the number of consecutive failures before a check is unavailable
	UnavailableThreshold int `yaml:"unavailable_threshold" json:"unavailable_threshold"`
}

// DefaultConfig returns a default checker configuration
func DefaultConfig() Config {
	return Config{
		Interval:             30 * time.Second,
		Timeout:              10 * time.Second,
		ErrorThreshold:       3,
		UnavailableThreshold: 10,
	}
}

// Result represents the result of a health check
type Result struct {
	Check     string        `json:"check"`
	Healthy   bool          `json:"healthy"`
	State     State         `json:"state"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Checker is a registry of named health checks.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunction
	config  Config
	tracker *Tracker
	logger  logrus.FieldLogger
}

func withDefaults(config Config) Config {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = defaults.ErrorThreshold
	}
	if config.UnavailableThreshold <= 0 {
		config.UnavailableThreshold = defaults.UnavailableThreshold
	}
	return config
}

// NewChecker creates a checker. Zero values in config fall back to the defaults.
func NewChecker(config Config, logger logrus.FieldLogger) *Checker {
	config = withDefaults(config)
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "health")

	c := &Checker{
		checks:  make(map[string]CheckFunction),
		config:  config,
		tracker: NewTracker(config),
		logger:  logger,
	}
	c.tracker.OnStateChange(func(name string, oldState, newState State, err error) {
		entry := logger.WithFields(logrus.Fields{
			"check": name,
			"from":  oldState.String(),
			"to":    newState.String(),
		})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Info("Health check changed state")
	})
	return c
}

// Reconfigure replaces the timeout, interval and thresholds. Registered
// checks and tracked state are kept.
func (c *Checker) Reconfigure(config Config) {
	config = withDefaults(config)

	c.mu.Lock()
	c.config = config
	c.mu.Unlock()

	c.tracker.setConfig(config)
}

// Config returns the effective configuration.
func (c *Checker) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Tracker returns the state tracker updated by every run.
func (c *Checker) Tracker() *Tracker {
	return c.tracker
}

// Register adds a named check.
func (c *Checker) Register(name string, check CheckFunction) error {
	if name == "" {
		return errors.InvalidArgument("health check name must not be blank")
	}
	if check == nil {
		return errors.InvalidArgument("health check %q must not be nil", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.checks[name]; exists {
		return errors.Newf(errors.ErrCodeDuplicateName, "a health check named %q already exists", name).
			WithDetail("name", name).
			WithComponent("health")
	}
	c.checks[name] = check
	return nil
}

// Unregister removes a named check and its tracked state. It reports whether
// the check was registered.
func (c *Checker) Unregister(name string) bool {
	c.mu.Lock()
	_, exists := c.checks[name]
	delete(c.checks, name)
	c.mu.Unlock()

	c.tracker.Remove(name)
	return exists
}

// Names returns the registered check names in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named check. It fails with NO_HEALTH_CHECKS when nothing is
// registered and LOOKUP_NOT_FOUND when only the name is unknown. A failing
// check is a result, not an error.
func (c *Checker) Run(ctx context.Context, name string) (*Result, error) {
	c.mu.RLock()
	empty := len(c.checks) == 0
	check, exists := c.checks[name]
	c.mu.RUnlock()

	if empty {
		return nil, errors.NewError(errors.ErrCodeNoHealthChecks, "no health checks are registered").
			WithComponent("health")
	}
	if !exists {
		return nil, errors.LookupNotFound("health check", name)
	}
	return c.execute(ctx, name, check), nil
}

// RunAll executes every registered check concurrently and returns the
// results keyed by name.
func (c *Checker) RunAll(ctx context.Context) (map[string]*Result, error) {
	c.mu.RLock()
	checks := make(map[string]CheckFunction, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	if len(checks) == 0 {
		return nil, errors.NewError(errors.ErrCodeNoHealthChecks, "no health checks are registered").
			WithComponent("health")
	}

	var (
		mu      sync.Mutex
		results = make(map[string]*Result, len(checks))
		g       errgroup.Group
	)
	for name, check := range checks {
		g.Go(func() error {
			result := c.execute(ctx, name, check)
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// StartPeriodic runs all checks every interval until ctx ends. A
// non-positive interval uses the configured one.
func (c *Checker) StartPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.Config().Interval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.RunAll(ctx); err != nil && !errors.IsCode(err, errors.ErrCodeNoHealthChecks) {
				c.logger.WithError(err).Warn("Periodic health check run failed")
			}
		}
	}
}

// execute runs one check under the configured timeout. The check runs on its
// own goroutine so a check ignoring its context still times out.
func (c *Checker) execute(ctx context.Context, name string, check CheckFunction) *Result {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, c.Config().Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errors.Newf(errors.ErrCodeInternalError, "health check panicked: %v", r).
					WithComponent("health")
			}
		}()
		done <- check(checkCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-checkCtx.Done():
		err = errors.Newf(errors.ErrCodeOperationTimeout, "health check %q did not finish", name).
			WithCause(checkCtx.Err()).
			WithComponent("health")
	}

	result := &Result{
		Check:     name,
		Duration:  time.Since(start),
		Timestamp: start,
	}
	if err != nil {
		result.Message = "Check failed"
		result.Error = err.Error()
	} else {
		result.Healthy = true
		result.Message = "Check passed"
	}
	result.State = c.tracker.Record(name, err)
	return result
}

// Func adapts a plain func to a CheckFunction.
func Func(fn func() error) CheckFunction {
	return func(context.Context) error {
		return fn()
	}
}

// Ping is a check that always passes.
func Ping() CheckFunction {
	return func(context.Context) error { return nil }
}

// Threshold fails when value() exceeds limit.
func Threshold(what string, value func() float64, limit float64) CheckFunction {
	return func(context.Context) error {
		if v := value(); v > limit {
			return fmt.Errorf("%s is %.2f, above %.2f", what, v, limit)
		}
		return nil
	}
}
