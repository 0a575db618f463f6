package instrument

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/monitoringcenter/monitoringcenter/pkg/pool"
	"github.com/monitoringcenter/monitoringcenter/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProxy(t *testing.T) {
	t.Parallel()

	q, err := queue.NewBounded[int](2)
	require.NoError(t, err)
	rejected := metrics.NewMeter()
	proxy := NewQueue[int](q, rejected, nil)
	size, remaining := SizeGauges(proxy)

	assert.Equal(t, 0, size.Value())
	assert.Equal(t, 2, remaining.Value())

	assert.True(t, proxy.Offer(1))
	require.NoError(t, proxy.Put(context.Background(), 2))
	assert.False(t, proxy.Offer(3))
	assert.Equal(t, int64(1), rejected.Count())

	// gauges read the live queue
	assert.Equal(t, 2, size.Value())
	assert.Equal(t, 0, remaining.Value())

	v, err := proxy.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, size.Value())
	assert.Equal(t, 1, q.Len())
}

func TestPoolProxyTimesAcquireOnly(t *testing.T) {
	t.Parallel()

	p, err := pool.New(1, func(context.Context) (string, error) { return "conn", nil }, nil)
	require.NoError(t, err)
	acquire := metrics.NewTimer()
	proxy := NewPool[string](p, acquire, nil)

	c, err := proxy.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "conn", c)
	assert.Equal(t, int64(1), acquire.Count())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = proxy.Acquire(ctx)
	assert.ErrorIs(t, err, errors.ErrPoolExhausted)
	assert.Equal(t, int64(2), acquire.Count(), "failed acquisitions are timed too")

	proxy.Release(c)
	assert.Equal(t, 1, proxy.Stats().Idle)
	assert.Equal(t, int64(2), acquire.Count())
	require.NoError(t, proxy.Close())
}

// fakeDriver is a database/sql driver whose connections do nothing.
type fakeDriver struct {
	mu      sync.Mutex
	opened  int
	failing bool
}

type fakeConn struct{}

func (d *fakeDriver) Open(string) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing {
		return nil, stderrors.New("connection refused")
	}
	d.opened++
	return fakeConn{}, nil
}

func (fakeConn) Prepare(string) (driver.Stmt, error) { return nil, stderrors.New("not supported") }
func (fakeConn) Close() error                        { return nil }
func (fakeConn) Begin() (driver.Tx, error)           { return nil, stderrors.New("not supported") }

func openFakeDB(t *testing.T, d *fakeDriver) *sql.DB {
	t.Helper()
	name := "instrument-fake-" + t.Name()
	sql.Register(name, d)
	db, err := sql.Open(name, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDBProxy(t *testing.T) {
	t.Parallel()

	d := &fakeDriver{}
	db := openFakeDB(t, d)
	acquire := metrics.NewTimer()
	proxy := NewDB(db, acquire, nil)
	gauges := DBStatsGauges(db)

	conn, err := proxy.Conn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), acquire.Count())
	assert.Equal(t, 1, gauges["open"].Value())
	assert.Equal(t, 1, gauges["inUse"].Value())
	assert.Equal(t, 0, gauges["idle"].Value())
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, gauges["idle"].Value())

	// passes through untouched
	proxy.SetMaxOpenConns(3)
	assert.Equal(t, 3, gauges["maxOpen"].Value())
	assert.Equal(t, int64(0), gauges["waitCount"].Value())
}

func TestDBProxyPreservesError(t *testing.T) {
	t.Parallel()

	d := &fakeDriver{failing: true}
	db := openFakeDB(t, d)
	acquire := metrics.NewTimer()
	proxy := NewDB(db, acquire, nil)

	_, err := proxy.Conn(context.Background())
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, int64(1), acquire.Count())
}
