package collector

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/executor"
	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/monitoringcenter/monitoringcenter/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopCollector(t *testing.T) {
	t.Parallel()

	n := NewNoop("Worker")
	assert.Equal(t, "Worker", n.Namespace())

	a, err := n.GetCounter("x")
	require.NoError(t, err)
	b, err := n.GetCounter("x")
	require.NoError(t, err)
	assert.NotSame(t, a, b, "no-op getters hand out disposable metrics")

	require.NoError(t, a.Inc(1))
	assert.Equal(t, int64(1), a.Count())

	_, err = n.GetTimer("")
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	g := metrics.NewGauge(func() int { return 1 })
	assert.NoError(t, n.RegisterGauge(g, "g"))
	assert.NoError(t, n.RegisterGauge(g, "g"))
	assert.NoError(t, n.RegisterMetricSet(metrics.Set{"a": g}))
	assert.NoError(t, n.RemoveMetric(g, "g"))
	n.RemoveAll()
}

// Hot-path getters before configuration must not pin their disposable metrics.
func TestNoopMetersAreReleased(t *testing.T) {
	n := NewNoop("Worker")

	var released atomic.Int32
	for i := 0; i < 10000; i++ {
		m, err := n.GetMeter("errors")
		require.NoError(t, err)
		require.NoError(t, m.Mark(1))
		tm, err := n.GetTimer("latency")
		require.NoError(t, err)
		require.NoError(t, tm.Update(time.Millisecond))
		if i%1000 == 0 {
			runtime.SetFinalizer(m, func(any) { released.Add(1) })
			runtime.SetFinalizer(tm, func(any) { released.Add(1) })
		}
	}

	assert.Eventually(t, func() bool {
		runtime.GC()
		return released.Load() == 20
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNoopInstrumentationStillProxies(t *testing.T) {
	t.Parallel()

	n := NewNoop("Worker")
	p := executor.NewPool(executor.PoolConfig{Workers: 1, QueueSize: 1}, nil)
	defer p.Shutdown(context.Background())

	e, err := n.InstrumentExecutor(p, "pool")
	require.NoError(t, err)
	f, err := e.Submit(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, f.Wait(context.Background()))
	assert.Equal(t, int64(1), e.Metrics().Completed.Count())

	q, err := queue.NewBounded[int](1)
	require.NoError(t, err)
	proxy, err := InstrumentQueue[int](n, q, "inbox")
	require.NoError(t, err)
	assert.True(t, proxy.Offer(1))
	assert.Equal(t, 1, q.Len())
}
