package health

import (
	"sort"
	"sync"
	"time"
)

// State is the health state of a single check, derived from its run history.
type State int

const (
	// StateHealthy means the last run passed.
	StateHealthy State = iota

	// StateDegraded means the check failed at least ErrorThreshold times in a row.
	StateDegraded

	// StateUnavailable means the check failed at least UnavailableThreshold
	// times in a row.
	StateUnavailable
)

// String returns the string representation of a health state
func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ComponentHealth is the tracked history of one check.
type ComponentHealth struct {
	Name              string    `json:"name"`
	State             State     `json:"state"`
	LastStateChange   time.Time `json:"last_state_change"`
	LastRun           time.Time `json:"last_run"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	Runs              int64     `json:"runs"`
	Failures          int64     `json:"failures"`
	LastErrorMessage  string    `json:"last_error_message,omitempty"`
}

// StateChangeCallback is called after a check moves between states.
type StateChangeCallback func(name string, oldState, newState State, err error)

// Tracker keeps per-check state. A check is created on its first record.
type Tracker struct {
	mu         sync.RWMutex
	components map[string]*ComponentHealth
	config     Config
	callbacks  []StateChangeCallback
}

// NewTracker creates a tracker using the thresholds in config.
func NewTracker(config Config) *Tracker {
	return &Tracker{
		components: make(map[string]*ComponentHealth),
		config:     config,
	}
}

func (t *Tracker) setConfig(config Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.config = config
}

// OnStateChange registers a callback for state transitions.
func (t *Tracker) OnStateChange(cb StateChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

// Record applies the outcome of one run of the named check and returns the
// resulting state. A nil err is a pass and resets the failure streak.
func (t *Tracker) Record(name string, err error) State {
	t.mu.Lock()
	now := time.Now()
	health, exists := t.components[name]
	if !exists {
		health = &ComponentHealth{Name: name, State: StateHealthy, LastStateChange: now}
		t.components[name] = health
	}

	oldState := health.State
	health.LastRun = now
	health.Runs++
	if err == nil {
		health.ConsecutiveErrors = 0
		health.LastErrorMessage = ""
	} else {
		health.ConsecutiveErrors++
		health.Failures++
		health.LastErrorMessage = err.Error()
	}

	newState := t.stateFor(health.ConsecutiveErrors)
	if newState != oldState {
		health.State = newState
		health.LastStateChange = now
	}
	callbacks := t.callbacks
	t.mu.Unlock()

	if newState != oldState {
		for _, cb := range callbacks {
			cb(name, oldState, newState, err)
		}
	}
	return newState
}

func (t *Tracker) stateFor(consecutive int) State {
	switch {
	case consecutive == 0:
		return StateHealthy
	case t.config.UnavailableThreshold > 0 && consecutive >= t.config.UnavailableThreshold:
		return StateUnavailable
	case consecutive >= max(t.config.ErrorThreshold, 1):
		return StateDegraded
	default:
		// Failures below the threshold keep a check healthy.
		return StateHealthy
	}
}

// State returns the state of the named check. Untracked checks are healthy.
func (t *Tracker) State(name string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if health, exists := t.components[name]; exists {
		return health.State
	}
	return StateHealthy
}

// Component returns a copy of the tracked history of the named check.
func (t *Tracker) Component(name string) (ComponentHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	health, exists := t.components[name]
	if !exists {
		return ComponentHealth{}, false
	}
	return *health, true
}

// Components returns copies of all tracked histories sorted by name.
func (t *Tracker) Components() []ComponentHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]ComponentHealth, 0, len(t.components))
	for _, health := range t.components {
		result = append(result, *health)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Overall returns the worst state across all tracked checks.
func (t *Tracker) Overall() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	overall := StateHealthy
	for _, health := range t.components {
		if health.State > overall {
			overall = health.State
		}
	}
	return overall
}

// Remove forgets the named check.
func (t *Tracker) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.components, name)
}
