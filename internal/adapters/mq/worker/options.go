package worker

import (
	"github.com/okian/crease/internal/domain/dedupe"
	"github.com/okian/crease/pkg/logger"
)

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithDedupeSize bounds how many frame indices are remembered per stream.
func WithDedupeSize(n int) Option {
	return func(w *Worker) {
		w.newDedupe = func() dedupe.Deduper { return dedupe.NewFrameDeduper(dedupe.WithMaxSize(n)) }
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}
