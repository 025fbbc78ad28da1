// Package worker drains the frame queue in order, drops frames already
// delivered, normalizes the rest into display-space skeletons and hands them
// to a sink.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okian/crease/internal/adapters/mq/queue"
	"github.com/okian/crease/internal/domain/dedupe"
	"github.com/okian/crease/internal/domain/skeleton"
	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/metrics"
)

// Queue defines how the worker receives frames.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Item
}

// Sink receives render-ready frames.
type Sink interface {
	Publish(ctx context.Context, stream string, f skeleton.Frame) error
}

// Stats are the worker's running totals.
type Stats struct {
	Published  int64 `json:"published"`
	Duplicates int64 `json:"duplicates"`
	SinkErrors int64 `json:"sinkErrors"`
}

// Worker is a single consumer; one goroutine keeps delivery in enqueue order.
type Worker struct {
	queue     Queue
	sink      Sink
	display   skeleton.Size
	newDedupe func() dedupe.Deduper

	mu       sync.Mutex
	dedupers map[queue.Stream]dedupe.Deduper

	published  atomic.Int64
	duplicates atomic.Int64
	sinkErrors atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// New creates a worker rendering into a display of the given size.
func New(q Queue, sink Sink, display skeleton.Size, opts ...Option) *Worker {
	w := &Worker{
		queue:     q,
		sink:      sink,
		display:   display,
		newDedupe: func() dedupe.Deduper { return dedupe.NewFrameDeduper() },
		dedupers:  make(map[queue.Stream]dedupe.Deduper),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("render-worker")
	}
	return w
}

// Run consumes until ctx ends, Shutdown is called, or the queue closes and drains.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case it, ok := <-items:
			if !ok {
				return
			}
			if err := w.process(ctx, it); err != nil {
				w.logger.Error(ctx, "frame not delivered", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the loop and waits for it to exit.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

// ResetStream forgets delivered indices for s, e.g. before a new refinement pass.
func (w *Worker) ResetStream(s queue.Stream) {
	w.deduper(s).Reset()
}

// Stats returns running totals.
func (w *Worker) Stats() Stats {
	return Stats{
		Published:  w.published.Load(),
		Duplicates: w.duplicates.Load(),
		SinkErrors: w.sinkErrors.Load(),
	}
}

func (w *Worker) deduper(s queue.Stream) dedupe.Deduper {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.dedupers[s]
	if !ok {
		d = w.newDedupe()
		w.dedupers[s] = d
	}
	return d
}

func (w *Worker) process(ctx context.Context, it queue.Item) error { //nolint:gocritic // hugeParam: items travel by value over the channel
	if it.Ack != nil {
		close(it.Ack)
		return nil
	}
	d := w.deduper(it.Stream)
	if it.Reset {
		d.Reset()
		return nil
	}
	idx := it.Record.FrameIndex
	if d.SeenAndRecord(ctx, idx) {
		w.duplicates.Add(1)
		metrics.RecordFrameDuplicate()
		w.logger.Debug(ctx, "dropping duplicate frame",
			logger.String("stream", string(it.Stream)),
			logger.Int("frame", idx))
		return nil
	}

	frame := skeleton.Normalize(it.Record, it.Source, w.display)
	if err := w.sink.Publish(ctx, string(it.Stream), frame); err != nil {
		d.Unrecord(ctx, idx)
		w.sinkErrors.Add(1)
		metrics.RecordSinkError()
		metrics.RecordErrorByComponent("worker", "sink")
		return fmt.Errorf("publish %s frame %d: %w", it.Stream, idx, err)
	}
	w.published.Add(1)
	metrics.RecordFramePublished()
	return nil
}
