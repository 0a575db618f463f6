// Package pool provides a bounded pool of reusable connections.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
)

// Stats tracks pool statistics
type Stats struct {
	Active      int       `json:"active"`
	Idle        int       `json:"idle"`
	Total       int       `json:"total"`
	MaxSize     int       `json:"max_size"`
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Timeouts    int64     `json:"timeouts"`
	Errors      int64     `json:"errors"`
	Created     int64     `json:"created"`
	Destroyed   int64     `json:"destroyed"`
	LastCreated time.Time `json:"last_created"`
	LastError   string    `json:"last_error"`
	LastErrorAt time.Time `json:"last_error_at"`
}

// Interface is what callers of a pool depend on.
type Interface[C any] interface {
	Acquire(ctx context.Context) (C, error)
	Release(conn C)
	Discard(conn C)
	Stats() Stats
	Close() error
}

// Pool hands out at most maxSize connections at once, reusing released ones.
type Pool[C any] struct {
	mu          sync.Mutex
	idle        chan C
	freed       chan struct{}
	factory     func(ctx context.Context) (C, error)
	closeFn     func(C) error
	maxSize     int
	currentSize int
	closed      bool

	stats Stats
}

// New creates a pool. closeFn may be nil when connections need no cleanup.
func New[C any](maxSize int, factory func(ctx context.Context) (C, error), closeFn func(C) error) (*Pool[C], error) {
	if maxSize <= 0 {
		maxSize = 8
	}
	if factory == nil {
		return nil, errors.InvalidArgument("connection factory cannot be nil")
	}
	if closeFn == nil {
		closeFn = func(C) error { return nil }
	}

	return &Pool[C]{
		idle:    make(chan C, maxSize),
		freed:   make(chan struct{}, maxSize),
		factory: factory,
		closeFn: closeFn,
		maxSize: maxSize,
		stats:   Stats{MaxSize: maxSize},
	}, nil
}

// Acquire returns an idle connection, creates one while below the size limit,
// or waits for a release or a freed slot until ctx ends.
func (p *Pool[C]) Acquire(ctx context.Context) (C, error) {
	var zero C

	missed := false
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return zero, errors.ErrPoolClosed
		}
		select {
		case conn := <-p.idle:
			if !missed {
				p.stats.Hits++
			}
			p.stats.Active++
			p.mu.Unlock()
			return conn, nil
		default:
		}
		if p.currentSize < p.maxSize {
			p.currentSize++
			p.mu.Unlock()
			return p.create(ctx)
		}
		if !missed {
			p.stats.Misses++
			missed = true
		}
		p.mu.Unlock()

		select {
		case conn, ok := <-p.idle:
			if !ok {
				return zero, errors.ErrPoolClosed
			}
			p.mu.Lock()
			p.stats.Active++
			p.mu.Unlock()
			return conn, nil
		case <-p.freed:
			// A slot was destroyed; retry creation.
		case <-ctx.Done():
			p.mu.Lock()
			p.stats.Timeouts++
			p.mu.Unlock()
			return zero, errors.NewError(errors.ErrCodePoolExhausted, "no connection released before deadline").
				WithDetail("max_size", p.maxSize).
				WithCause(ctx.Err())
		}
	}
}

// signalFreedLocked wakes one waiter, if any, after currentSize shrank.
func (p *Pool[C]) signalFreedLocked() {
	select {
	case p.freed <- struct{}{}:
	default:
	}
}

// create runs the factory for a slot already reserved in currentSize.
func (p *Pool[C]) create(ctx context.Context) (C, error) {
	conn, err := p.factory(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.currentSize--
		p.signalFreedLocked()
		p.stats.Errors++
		p.stats.LastError = err.Error()
		p.stats.LastErrorAt = time.Now()
		var zero C
		return zero, errors.NewError(errors.ErrCodeConnectionFailed, "failed to create connection").WithCause(err)
	}
	p.stats.Created++
	p.stats.Active++
	p.stats.LastCreated = time.Now()
	return conn, nil
}

// Release returns conn to the pool. Connections released after Close are
// closed instead.
func (p *Pool[C]) Release(conn C) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Active--
	if p.closed {
		p.destroyLocked(conn)
		return
	}
	select {
	case p.idle <- conn:
	default:
		p.destroyLocked(conn)
	}
}

// Discard closes a broken connection and frees its slot.
func (p *Pool[C]) Discard(conn C) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Active--
	p.destroyLocked(conn)
}

func (p *Pool[C]) destroyLocked(conn C) {
	p.currentSize--
	p.signalFreedLocked()
	p.stats.Destroyed++
	if err := p.closeFn(conn); err != nil {
		p.stats.Errors++
		p.stats.LastError = err.Error()
		p.stats.LastErrorAt = time.Now()
	}
}

// Stats returns current pool statistics
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := p.stats
	stats.Total = p.currentSize
	stats.Idle = len(p.idle)
	return stats
}

// Warmup pre-fills the pool with up to count idle connections.
func (p *Pool[C]) Warmup(ctx context.Context, count int) error {
	if count <= 0 || count > p.maxSize {
		count = p.maxSize
	}

	var errs []error
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.mu.Lock()
		if p.closed || p.currentSize >= p.maxSize {
			p.mu.Unlock()
			break
		}
		p.currentSize++
		p.mu.Unlock()

		conn, err := p.create(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.Release(conn)
	}

	if len(errs) > 0 {
		return errors.Newf(errors.ErrCodeConnectionFailed, "warmup partially failed: %d errors", len(errs)).
			WithCause(errs[0])
	}
	return nil
}

// Close closes idle connections and rejects further acquisitions. Connections
// still in use are closed when released.
func (p *Pool[C]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.idle)
	for conn := range p.idle {
		p.destroyLocked(conn)
	}
	return nil
}
