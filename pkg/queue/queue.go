// Package queue provides a bounded blocking FIFO queue.
package queue

import (
	"context"
	"sync"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
)

// Queue is a FIFO of elements of type T.
type Queue[T any] interface {
	// Offer adds v without blocking and reports whether it was accepted.
	Offer(v T) bool
	// Put adds v, blocking until there is room, ctx ends or the queue closes.
	Put(ctx context.Context, v T) error
	// Poll removes the head without blocking.
	Poll() (T, bool)
	// Take removes the head, blocking until one is available, ctx ends or
	// the queue is closed and drained.
	Take(ctx context.Context) (T, error)
	// Len is the number of queued elements.
	Len() int
	// Remaining is the number of elements that can be added without blocking.
	Remaining() int
	Cap() int
	Close()
}

// Bounded is a channel-backed Queue with a fixed capacity.
type Bounded[T any] struct {
	items  chan T
	closed chan struct{}
	mu     sync.RWMutex
	once   sync.Once
}

// NewBounded creates a queue holding at most capacity elements.
func NewBounded[T any](capacity int) (*Bounded[T], error) {
	if capacity <= 0 {
		return nil, errors.InvalidArgument("queue capacity must be positive, got %d", capacity)
	}
	return &Bounded[T]{
		items:  make(chan T, capacity),
		closed: make(chan struct{}),
	}, nil
}

func (q *Bounded[T]) isClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

func (q *Bounded[T]) Offer(v T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.isClosed() {
		return false
	}
	select {
	case q.items <- v:
		return true
	default:
		return false
	}
}

func (q *Bounded[T]) Put(ctx context.Context, v T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.isClosed() {
		return errors.ErrQueueClosed
	}
	select {
	case q.items <- v:
		return nil
	case <-q.closed:
		return errors.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Bounded[T]) Poll() (T, bool) {
	select {
	case v, ok := <-q.items:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

func (q *Bounded[T]) Take(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-q.items:
		if !ok {
			return zero, errors.ErrQueueClosed
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (q *Bounded[T]) Len() int       { return len(q.items) }
func (q *Bounded[T]) Cap() int       { return cap(q.items) }
func (q *Bounded[T]) Remaining() int { return cap(q.items) - len(q.items) }

// Close stops the queue accepting elements. Queued elements can still be
// taken; Take then reports ErrQueueClosed.
func (q *Bounded[T]) Close() {
	q.once.Do(func() {
		close(q.closed)
		// Blocked Puts hold the read lock until they observe closed.
		q.mu.Lock()
		close(q.items)
		q.mu.Unlock()
	})
}
