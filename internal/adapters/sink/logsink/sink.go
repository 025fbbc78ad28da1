// Package logsink writes frame summaries to the log. It stands in for a
// renderer when no broker is configured.
package logsink

import (
	"context"

	"github.com/okian/crease/internal/domain/skeleton"
	"github.com/okian/crease/pkg/logger"
)

// Sink logs one line per frame.
type Sink struct {
	logger logger.Logger
}

// New creates a sink logging through l, or the global logger when l is nil.
func New(l logger.Logger) *Sink {
	if l == nil {
		l = logger.Get().Named("render")
	}
	return &Sink{logger: l}
}

// Publish logs a summary of f.
func (s *Sink) Publish(ctx context.Context, stream string, f skeleton.Frame) error { //nolint:gocritic // hugeParam: frames are values
	joints, bones := 0, 0
	for _, p := range f.People {
		joints += len(p.Joints)
		bones += len(p.Bones)
	}
	s.logger.Info(ctx, "frame",
		logger.String("stream", stream),
		logger.Int("frame", f.FrameIndex),
		logger.Float64("timestamp", f.Timestamp),
		logger.Int("people", len(f.People)),
		logger.Int("joints", joints),
		logger.Int("bones", bones))
	return nil
}

// Close is a no-op.
func (s *Sink) Close() error { return nil }
