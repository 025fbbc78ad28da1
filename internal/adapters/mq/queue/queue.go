// Package queue buffers frames between the producers (live feed, extraction
// runs) and the render worker.
package queue

import (
	"context"
	"sync"

	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/skeleton"
	"github.com/okian/crease/pkg/metrics"
)

const defaultCapacity = 1024

// Stream names where a frame came from. Frame indices are unique per stream.
type Stream string

const (
	StreamLive   Stream = "live"
	StreamRefine Stream = "refine"
	StreamSingle Stream = "single"
)

// Item is one frame waiting to be rendered.
type Item struct {
	Stream Stream
	Record model.FrameRecord
	// Source is the pixel size the record's normalized landmarks refer to.
	Source skeleton.Size
	// Reset marks the start of a new pass on Stream. It carries no record.
	Reset bool
	// Ack, when set, is closed by the consumer once every earlier item has
	// been handled. It carries no record.
	Ack chan struct{}
}

// Queue is a bounded FIFO with non-blocking enqueue and channel-based dequeue.
type Queue interface {
	Enqueue(ctx context.Context, it Item) error
	Dequeue(ctx context.Context) <-chan Item
	Len() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue over a buffered channel.
type InMemoryQueue struct {
	items    chan Item
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan Item, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds it without blocking. It fails with ErrStopped after Close and
// ErrFull when the buffer is at capacity.
func (q *InMemoryQueue) Enqueue(ctx context.Context, it Item) error { //nolint:gocritic // hugeParam: items travel by value over the channel
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return ErrStopped
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return err
	}

	select {
	case q.items <- it:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.items))
		return nil
	default:
		metrics.RecordQueueRejected("full")
		metrics.RecordErrorByComponent("queue", "full")
		return ErrFull
	}
}

// Dequeue returns a channel of items in enqueue order. It is closed after Close
// once the buffer drains, or when ctx ends.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		for it := range q.items {
			select {
			case out <- it:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.items))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the number of buffered items.
func (q *InMemoryQueue) Len() int {
	return len(q.items)
}

// Close stops intake. Buffered items are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
