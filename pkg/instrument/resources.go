package instrument

import (
	"context"
	"database/sql"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/monitoringcenter/monitoringcenter/pkg/pool"
	"github.com/monitoringcenter/monitoringcenter/pkg/queue"
	"github.com/sirupsen/logrus"
)

// Sized is a collection whose occupancy can be observed.
type Sized interface {
	Len() int
	Remaining() int
}

// SizeGauges returns gauges reading s on every access.
func SizeGauges(s Sized) (size, remaining metrics.Gauge) {
	return metrics.NewGauge(s.Len), metrics.NewGauge(s.Remaining)
}

// Queue is an instrumented queue.Queue. Offers refused by the delegate mark
// the rejected meter; every other call passes straight through.
type Queue[T any] struct {
	queue.Queue[T]
	rejected metrics.Meter
	rec      recorder
}

// NewQueue wraps delegate.
func NewQueue[T any](delegate queue.Queue[T], rejected metrics.Meter, logger logrus.FieldLogger) *Queue[T] {
	return &Queue[T]{
		Queue:    delegate,
		rejected: rejected,
		rec:      newRecorder(logger, "queue"),
	}
}

func (q *Queue[T]) Offer(v T) bool {
	ok := q.Queue.Offer(v)
	if !ok {
		q.rec.record("rejected", q.rejected.Mark(1))
	}
	return ok
}

// Pool is an instrumented pool.Interface. Only Acquire is timed, whether it
// succeeds or not.
type Pool[C any] struct {
	pool.Interface[C]
	acquire metrics.Timer
	rec     recorder
}

// NewPool wraps delegate.
func NewPool[C any](delegate pool.Interface[C], acquire metrics.Timer, logger logrus.FieldLogger) *Pool[C] {
	return &Pool[C]{
		Interface: delegate,
		acquire:   acquire,
		rec:       newRecorder(logger, "pool"),
	}
}

func (p *Pool[C]) Acquire(ctx context.Context) (C, error) {
	start := time.Now()
	conn, err := p.Interface.Acquire(ctx)
	p.rec.record("acquire", p.acquire.Update(time.Since(start)))
	return conn, err
}

// DB is an instrumented *sql.DB. Conn, the explicit connection acquisition,
// is timed; every other method is the embedded DB's.
type DB struct {
	*sql.DB
	acquire metrics.Timer
	rec     recorder
}

// NewDB wraps db.
func NewDB(db *sql.DB, acquire metrics.Timer, logger logrus.FieldLogger) *DB {
	return &DB{
		DB:      db,
		acquire: acquire,
		rec:     newRecorder(logger, "datasource"),
	}
}

func (d *DB) Conn(ctx context.Context) (*sql.Conn, error) {
	start := time.Now()
	conn, err := d.DB.Conn(ctx)
	d.rec.record("acquire", d.acquire.Update(time.Since(start)))
	return conn, err
}

// DBStatsGauges returns gauges reading db.Stats on every access, keyed by
// relative name.
func DBStatsGauges(db *sql.DB) map[string]metrics.Gauge {
	return map[string]metrics.Gauge{
		"open":         metrics.NewGauge(func() int { return db.Stats().OpenConnections }),
		"inUse":        metrics.NewGauge(func() int { return db.Stats().InUse }),
		"idle":         metrics.NewGauge(func() int { return db.Stats().Idle }),
		"waitCount":    metrics.NewGauge(func() int64 { return db.Stats().WaitCount }),
		"waitDuration": metrics.NewGauge(func() int64 { return db.Stats().WaitDuration.Milliseconds() }),
		"maxOpen":      metrics.NewGauge(func() int { return db.Stats().MaxOpenConnections }),
	}
}
