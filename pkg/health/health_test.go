package health

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChecker() *Checker {
	return NewChecker(Config{Timeout: time.Second, ErrorThreshold: 2, UnavailableThreshold: 4}, nil)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	c := newTestChecker()
	require.NoError(t, c.Register("db", Ping()))

	err := c.Register("db", Ping())
	assert.ErrorIs(t, err, errors.ErrDuplicateName)

	assert.ErrorIs(t, c.Register("", Ping()), errors.ErrInvalidArgument)
	assert.ErrorIs(t, c.Register("nil", nil), errors.ErrInvalidArgument)

	require.NoError(t, c.Register("cache", Ping()))
	assert.Equal(t, []string{"cache", "db"}, c.Names())

	assert.True(t, c.Unregister("db"))
	assert.False(t, c.Unregister("db"))
	assert.Equal(t, []string{"cache"}, c.Names())
}

func TestRunDistinguishesNoChecksFromUnknown(t *testing.T) {
	t.Parallel()

	c := newTestChecker()
	ctx := context.Background()

	_, err := c.Run(ctx, "db")
	assert.ErrorIs(t, err, errors.ErrNoHealthChecks)

	_, err = c.RunAll(ctx)
	assert.ErrorIs(t, err, errors.ErrNoHealthChecks)

	require.NoError(t, c.Register("db", Ping()))
	_, err = c.Run(ctx, "cache")
	assert.ErrorIs(t, err, errors.ErrLookupNotFound)
	assert.NotErrorIs(t, err, errors.ErrNoHealthChecks)
}

func TestRunResults(t *testing.T) {
	t.Parallel()

	c := newTestChecker()
	ctx := context.Background()
	require.NoError(t, c.Register("ok", Ping()))
	require.NoError(t, c.Register("bad", Func(func() error { return stderrors.New("disk full") })))

	result, err := c.Run(ctx, "ok")
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.Equal(t, "ok", result.Check)
	assert.Equal(t, StateHealthy, result.State)

	result, err = c.Run(ctx, "bad")
	require.NoError(t, err, "a failing check is a result")
	assert.False(t, result.Healthy)
	assert.Equal(t, "disk full", result.Error)
}

func TestRunPanickingCheck(t *testing.T) {
	t.Parallel()

	c := newTestChecker()
	require.NoError(t, c.Register("boom", func(context.Context) error { panic("kaboom") }))

	result, err := c.Run(context.Background(), "boom")
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Error, "kaboom")
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()

	c := NewChecker(Config{Timeout: 20 * time.Millisecond}, nil)
	block := make(chan struct{})
	defer close(block)
	require.NoError(t, c.Register("stuck", func(context.Context) error {
		<-block
		return nil
	}))

	result, err := c.Run(context.Background(), "stuck")
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	assert.Less(t, result.Duration, time.Second)
}

func TestRunAllIsConcurrent(t *testing.T) {
	t.Parallel()

	const n = 5
	c := newTestChecker()

	var started sync.WaitGroup
	started.Add(n)
	release := make(chan struct{})
	go func() {
		started.Wait()
		close(release)
	}()

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, c.Register(name, func(ctx context.Context) error {
			started.Done()
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))
	}

	results, err := c.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, n)
	for name, result := range results {
		assert.True(t, result.Healthy, name)
	}
}

func TestTrackerStates(t *testing.T) {
	t.Parallel()

	tr := NewTracker(Config{ErrorThreshold: 2, UnavailableThreshold: 4})
	fail := stderrors.New("fail")

	var transitions []State
	tr.OnStateChange(func(_ string, _, newState State, _ error) {
		transitions = append(transitions, newState)
	})

	assert.Equal(t, StateHealthy, tr.Record("db", fail))
	assert.Equal(t, StateDegraded, tr.Record("db", fail))
	assert.Equal(t, StateDegraded, tr.Record("db", fail))
	assert.Equal(t, StateUnavailable, tr.Record("db", fail))
	assert.Equal(t, StateUnavailable, tr.Overall())

	assert.Equal(t, StateHealthy, tr.Record("db", nil))
	assert.Equal(t, []State{StateDegraded, StateUnavailable, StateHealthy}, transitions)

	h, ok := tr.Component("db")
	require.True(t, ok)
	assert.Equal(t, int64(5), h.Runs)
	assert.Equal(t, int64(4), h.Failures)
	assert.Zero(t, h.ConsecutiveErrors)

	tr.Remove("db")
	_, ok = tr.Component("db")
	assert.False(t, ok)
	assert.Empty(t, tr.Components())
}

func TestCheckerFeedsTracker(t *testing.T) {
	t.Parallel()

	c := newTestChecker()
	require.NoError(t, c.Register("bad", Func(func() error { return stderrors.New("down") })))

	for range 2 {
		_, err := c.Run(context.Background(), "bad")
		require.NoError(t, err)
	}
	assert.Equal(t, StateDegraded, c.Tracker().State("bad"))

	c.Unregister("bad")
	assert.Equal(t, StateHealthy, c.Tracker().State("bad"))
}

func TestStartPeriodic(t *testing.T) {
	t.Parallel()

	c := newTestChecker()
	runs := make(chan struct{}, 16)
	require.NoError(t, c.Register("tick", func(context.Context) error {
		select {
		case runs <- struct{}{}:
		default:
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.StartPeriodic(ctx, 5*time.Millisecond)
		close(done)
	}()

	for range 2 {
		select {
		case <-runs:
		case <-time.After(2 * time.Second):
			t.Fatal("periodic run did not happen")
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("periodic loop did not stop")
	}
}

func TestThreshold(t *testing.T) {
	t.Parallel()

	v := 1.0
	check := Threshold("load", func() float64 { return v }, 2)
	assert.NoError(t, check(context.Background()))
	v = 3
	assert.ErrorContains(t, check(context.Background()), "load is 3.00")
}
