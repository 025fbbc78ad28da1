// Package dedupe tracks delivered frame indices so a frame replayed after a
// reconnect is rendered at most once.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen frame indices.
type Deduper interface {
	// SeenAndRecord reports whether idx was already seen and records it if not.
	SeenAndRecord(ctx context.Context, idx int) bool

	// Unrecord forgets idx so it can be delivered again, e.g. after a sink failure.
	Unrecord(ctx context.Context, idx int)

	// Reset forgets everything.
	Reset()

	Size() int
}

// frameDeduper is a bounded set with oldest-first eviction kept in a ring.
type frameDeduper struct {
	mu      sync.Mutex
	seen    map[int]struct{}
	ring    []int
	head    int
	maxSize int // <= 0 means unbounded
}

// NewFrameDeduper creates a deduper.
func NewFrameDeduper(opts ...Option) Deduper {
	d := &frameDeduper{
		maxSize: 10_000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[int]struct{})
	if d.maxSize > 0 {
		d.ring = make([]int, 0, d.maxSize)
	}
	return d
}

func (d *frameDeduper) SeenAndRecord(_ context.Context, idx int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[idx]; ok {
		return true
	}

	if d.maxSize > 0 {
		if len(d.ring) < d.maxSize {
			d.ring = append(d.ring, idx)
		} else {
			delete(d.seen, d.ring[d.head])
			d.ring[d.head] = idx
			d.head = (d.head + 1) % d.maxSize
		}
	}
	d.seen[idx] = struct{}{}
	return false
}

// Unrecord leaves the ring slot in place; evicting a stale slot later is a no-op delete.
func (d *frameDeduper) Unrecord(_ context.Context, idx int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, idx)
}

func (d *frameDeduper) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[int]struct{})
	d.ring = d.ring[:0]
	d.head = 0
}

func (d *frameDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
