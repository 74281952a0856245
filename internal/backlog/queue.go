// Package backlog provides a bounded FIFO that sits between producers and a sink which
// may be unreachable for long stretches.
package backlog

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DefaultCapacity is the number of pending items a queue holds before it starts
// dropping new ones.
const DefaultCapacity = 1000

var (
	// ErrQueueFull means the item was dropped because the backlog was at capacity.
	// This is the only path on which data is lost.
	ErrQueueFull = errors.New("backlog queue full, item dropped")
	// ErrDeferred means the item could not be written now and waits in the backlog.
	ErrDeferred = errors.New("item deferred to backlog")
)

// WriteFunc delivers a single item to the sink.
type WriteFunc[T any] func(T) error

// Stats is a point-in-time view of a queue.
type Stats struct {
	Name      string `json:"name"`
	Length    int    `json:"length"`
	Capacity  int    `json:"capacity"`
	Delivered uint64 `json:"delivered"`
	Deferred  uint64 `json:"deferred"`
	Dropped   uint64 `json:"dropped"`
}

// Queue is a bounded, order-preserving backlog. All methods are safe for concurrent use;
// writes to the sink happen while the queue lock is held so that delivery order always
// matches enqueue order.
type Queue[T any] struct {
	mu       sync.Mutex
	name     string
	items    []T
	capacity int
	write    WriteFunc[T]
	logger   *zap.SugaredLogger

	delivered uint64
	deferred  uint64
	dropped   uint64
}

// New creates a queue that delivers through write. A non-positive capacity selects
// DefaultCapacity.
func New[T any](name string, capacity int, write WriteFunc[T], logger *zap.SugaredLogger) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{
		name:     name,
		capacity: capacity,
		write:    write,
		logger:   logger,
	}
}

// Submit hands an item to the sink. When nothing is queued the item is written straight
// away; otherwise it goes to the tail and the backlog is drained from the head, stopping
// at the first failure.
//
// A nil return means the item was delivered. An error wrapping ErrDeferred means it is
// waiting in the backlog, and one wrapping ErrQueueFull means it was dropped.
//
// If the immediate write on an empty queue fails, the item is queued without a second
// attempt; it is retried on the next Submit or Drain.
func (q *Queue[T]) Submit(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		err := q.write(item)
		if err == nil {
			q.delivered++
			return nil
		}
		// The sink just failed and the item is the only one pending, so draining
		// now would only repeat the same write.
		q.enqueue(item)
		q.deferred++
		return fmt.Errorf("%w: %w", ErrDeferred, err)
	}

	queued := q.enqueue(item)

	if err := q.drain(); err != nil {
		if !queued {
			return q.drop()
		}
		q.deferred++
		return fmt.Errorf("%w: %w", ErrDeferred, err)
	}

	if queued {
		// Drained everything, including the item we just appended.
		return nil
	}

	// The queue was full when the item arrived but has since been emptied, so the
	// item can go out now without jumping ahead of anything.
	if err := q.write(item); err == nil {
		q.delivered++
		return nil
	}
	if q.enqueue(item) {
		q.deferred++
		return fmt.Errorf("%w: retry after drain failed", ErrDeferred)
	}
	return q.drop()
}

// Drain attempts to deliver the backlog without submitting anything new.
func (q *Queue[T]) Drain() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drain()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns the queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Name:      q.name,
		Length:    len(q.items),
		Capacity:  q.capacity,
		Delivered: q.delivered,
		Deferred:  q.deferred,
		Dropped:   q.dropped,
	}
}

func (q *Queue[T]) enqueue(item T) bool {
	if len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, item)
	return true
}

// drain writes from the head until the queue is empty or a write fails. A failed item
// stays at the head so the relative order of everything behind it is kept.
func (q *Queue[T]) drain() error {
	for len(q.items) > 0 {
		if err := q.write(q.items[0]); err != nil {
			return err
		}
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.delivered++
	}
	q.items = nil
	return nil
}

func (q *Queue[T]) drop() error {
	q.dropped++
	q.logger.Errorw("backlog full, dropping item",
		"queue", q.name,
		"capacity", q.capacity,
		"dropped_total", q.dropped,
	)
	return fmt.Errorf("%s: %w", q.name, ErrQueueFull)
}
