// Package circuit stops a failing downstream from being hammered on every
// reporting tick.
package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed - requests pass through
	StateClosed State = iota
	// StateOpen - requests are rejected until the timeout elapses
	StateOpen
	// StateHalfOpen - a limited number of trial requests are let through
	StateHalfOpen
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config contains circuit breaker configuration
type Config struct {
	// Enabled turns the breaker on. A disabled breaker runs every call.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// FailureThreshold is the number of consecutive failures that trips the breaker
	FailureThreshold uint32 `yaml:"failure_threshold" json:"failure_threshold"`

	// MaxRequests is the number of trial calls allowed while half-open
	MaxRequests uint32 `yaml:"max_requests" json:"max_requests"`

	// Timeout is how long the breaker stays open before probing
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// OnStateChange is called with the breaker lock released
	OnStateChange func(name string, from, to State) `yaml:"-" json:"-"`
}

// DefaultConfig returns the reporting defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		FailureThreshold: 5,
		MaxRequests:      1,
		Timeout:          time.Minute,
	}
}

// Counts holds the numbers of requests and their successes/failures since
// the last state change.
type Counts struct {
	Requests             uint32    `json:"requests"`
	TotalSuccesses       uint32    `json:"total_successes"`
	TotalFailures        uint32    `json:"total_failures"`
	ConsecutiveSuccesses uint32    `json:"consecutive_successes"`
	ConsecutiveFailures  uint32    `json:"consecutive_failures"`
	LastActivity         time.Time `json:"last_activity"`
}

// Breaker implements the circuit breaker pattern
type Breaker struct {
	name   string
	config Config
	now    func() time.Time

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

// New creates a closed breaker. Zero fields take DefaultConfig values.
func New(name string, config Config) *Breaker {
	defaults := DefaultConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = defaults.MaxRequests
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &Breaker{
		name:   name,
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute runs fn if the breaker allows it. A rejected call returns
// CIRCUIT_OPEN without invoking fn. Context cancellation is not counted as
// a failure.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !b.config.Enabled {
		return fn(ctx)
	}

	if err := b.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	b.afterRequest(ctx, err)
	return err
}

func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	state, change := b.currentState()

	var err error
	switch {
	case state == StateOpen:
		err = errors.NewError(errors.ErrCodeCircuitOpen, "circuit breaker is open").
			WithComponent(b.name).
			WithDetail("retry_after", b.expiry.Sub(b.now()).String())
	case state == StateHalfOpen && b.counts.Requests >= b.config.MaxRequests:
		err = errors.NewError(errors.ErrCodeCircuitOpen, "too many requests in half-open state").
			WithComponent(b.name)
	default:
		b.counts.onRequest(b.now())
	}
	b.mu.Unlock()

	if change != nil {
		change()
	}
	return err
}

func (b *Breaker) afterRequest(ctx context.Context, err error) {
	b.mu.Lock()
	state, change := b.currentState()
	switch {
	case err != nil && ctx.Err() != nil:
		// a canceled trial call gives its slot back
		if state == StateHalfOpen && b.counts.Requests > 0 {
			b.counts.Requests--
		}
	case err == nil:
		b.counts.onSuccess()
		if state == StateHalfOpen {
			change = chain(change, b.setState(StateClosed))
		}
	default:
		b.counts.onFailure()
		switch state {
		case StateClosed:
			if b.counts.ConsecutiveFailures >= b.config.FailureThreshold {
				change = chain(change, b.setState(StateOpen))
			}
		case StateHalfOpen:
			change = chain(change, b.setState(StateOpen))
		}
	}
	b.mu.Unlock()

	if change != nil {
		change()
	}
}

// currentState moves an expired open breaker to half-open. Must be called
// with mu held; a non-nil func must be called after unlocking.
func (b *Breaker) currentState() (State, func()) {
	if b.state == StateOpen && !b.expiry.After(b.now()) {
		return StateHalfOpen, b.setState(StateHalfOpen)
	}
	return b.state, nil
}

func chain(first, second func()) func() {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	}
	return func() {
		first()
		second()
	}
}

// setState must be called with mu held. The returned func fires the
// callback and must be called after unlocking.
func (b *Breaker) setState(state State) func() {
	prev := b.state
	if prev == state {
		return nil
	}

	b.state = state
	b.counts.clear()
	if state == StateOpen {
		b.expiry = b.now().Add(b.config.Timeout)
	} else {
		b.expiry = time.Time{}
	}

	cb := b.config.OnStateChange
	if cb == nil {
		return nil
	}
	return func() { cb(b.name, prev, state) }
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	state, change := b.currentState()
	b.mu.Unlock()
	if change != nil {
		change()
	}
	return state
}

// Counts returns a copy of the current counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	change := b.setState(StateClosed)
	b.counts.clear()
	b.expiry = time.Time{}
	b.mu.Unlock()
	if change != nil {
		change()
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// HealthCheck fails while the breaker is open.
func (b *Breaker) HealthCheck(context.Context) error {
	if state := b.State(); state == StateOpen {
		return errors.NewError(errors.ErrCodeCircuitOpen, "circuit breaker is open").
			WithComponent(b.name)
	}
	return nil
}

func (c *Counts) onRequest(now time.Time) {
	c.Requests++
	c.LastActivity = now
}

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

func (c *Counts) clear() {
	*c = Counts{}
}
