package executor

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsTasks(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{Workers: 2, QueueSize: 16}, nil)
	var ran atomic.Int32
	futures := make([]*Future, 0, 10)
	for i := 0; i < 10; i++ {
		f, err := p.Submit(context.Background(), func(context.Context) error {
			ran.Add(1)
			return nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	for _, f := range futures {
		require.NoError(t, f.Wait(context.Background()))
	}
	assert.Equal(t, int32(10), ran.Load())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolDefaultsNonPositiveSizes(t *testing.T) {
	t.Parallel()

	defaults := DefaultPoolConfig()
	for _, size := range []int{0, -1} {
		p := NewPool(PoolConfig{Workers: size, QueueSize: size}, nil)
		assert.Equal(t, defaults.QueueSize, cap(p.queue))

		f, err := p.Submit(context.Background(), func(context.Context) error { return nil })
		require.NoError(t, err)
		require.NoError(t, f.Wait(context.Background()))
		require.NoError(t, p.Shutdown(context.Background()))
	}
}

func TestPoolFutureCarriesTaskError(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{Workers: 1, QueueSize: 1}, nil)
	defer p.Shutdown(context.Background())

	boom := stderrors.New("boom")
	f, err := p.Submit(context.Background(), func(context.Context) error { return boom })
	require.NoError(t, err)
	assert.ErrorIs(t, f.Wait(context.Background()), boom)
	assert.ErrorIs(t, f.Err(), boom)
}

func TestPoolRecoversPanics(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{Workers: 1, QueueSize: 1}, nil)
	defer p.Shutdown(context.Background())

	f, err := p.Submit(context.Background(), func(context.Context) error { panic("bad task") })
	require.NoError(t, err)
	err = f.Wait(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeInternalError))
	assert.Contains(t, err.Error(), "bad task")
}

func TestPoolRejectsWhenFull(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{Workers: 1, QueueSize: 1}, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	_, err := p.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-started

	_, err = p.Submit(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, errors.ErrRejected)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))

	_, err = p.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, errors.ErrRejected)
	assert.ErrorIs(t, p.Shutdown(context.Background()), errors.ErrAlreadyShutDown)
}

func TestPoolCanceledTaskStillRuns(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{Workers: 1, QueueSize: 4}, nil)
	release := make(chan struct{})
	_, err := p.Submit(context.Background(), func(context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	var sawCanceled atomic.Bool
	f, err := p.Submit(context.Background(), func(ctx context.Context) error {
		sawCanceled.Store(ctx.Err() != nil)
		return ctx.Err()
	})
	require.NoError(t, err)
	f.Cancel()
	close(release)

	assert.ErrorIs(t, f.Wait(context.Background()), context.Canceled)
	assert.True(t, sawCanceled.Load())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolShutdownDeadlineCancelsQueued(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{Workers: 1, QueueSize: 4}, nil)
	var mu sync.Mutex
	var errs []error
	task := func(ctx context.Context) error {
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
		mu.Lock()
		errs = append(errs, ctx.Err())
		mu.Unlock()
		return ctx.Err()
	}
	for i := 0; i < 3; i++ {
		_, err := p.Submit(context.Background(), task)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestFutureWaitHonoursContext(t *testing.T) {
	t.Parallel()

	f := newFuture(func() {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.Canceled)
	assert.NoError(t, f.Err())

	f.complete(nil)
	f.complete(stderrors.New("ignored"))
	assert.NoError(t, f.Wait(context.Background()))
	select {
	case <-f.Done():
	default:
		t.Fatal("future should be done")
	}
}
