// Package sampler drives a seekable video to exact timestamps and yields the
// pixels there, one frame at a time and in order.
package sampler

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"time"

	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/metrics"
)

const (
	defaultSeekTimeout = 500 * time.Millisecond
	defaultYieldEvery  = 5
	// endMargin keeps clamped positions strictly inside the video.
	endMargin = time.Millisecond
)

// ProgressFunc receives the percentage and the raw (frame, total) counts after each frame.
type ProgressFunc func(percent, frame, total int)

// FrameFunc handles the frame sampled for index i at position ts.
type FrameFunc func(ctx context.Context, i int, ts time.Duration, img image.Image) error

// Sampler walks a Source.
type Sampler struct {
	src         Source
	seekTimeout time.Duration
	yieldEvery  int
	yield       func()
	after       func(time.Duration) <-chan time.Time
	logger      logger.Logger
}

// New creates a sampler over src.
func New(src Source, opts ...Option) *Sampler {
	s := &Sampler{
		src:         src,
		seekTimeout: defaultSeekTimeout,
		yieldEvery:  defaultYieldEvery,
		yield:       runtime.Gosched,
		after:       time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("sampler")
	}
	return s
}

// Prepare awaits source readiness and returns its duration.
func (s *Sampler) Prepare(ctx context.Context) (time.Duration, error) {
	if err := s.src.Ready(ctx); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	d := s.src.Duration()
	if d <= 0 {
		return 0, ErrEmptySource
	}
	return d, nil
}

// Clamp bounds t to [0, duration-margin].
func (s *Sampler) Clamp(t time.Duration) time.Duration {
	limit := s.src.Duration() - endMargin
	if limit < 0 {
		limit = 0
	}
	switch {
	case t < 0:
		return 0
	case t > limit:
		return limit
	}
	return t
}

// SeekTo positions the source at the clamped t and waits for it to settle. A seek
// that does not settle within the timeout is abandoned and sampling continues.
func (s *Sampler) SeekTo(ctx context.Context, t time.Duration) (time.Duration, error) {
	pos := s.Clamp(t)
	settled := s.src.Seek(pos)
	select {
	case <-settled:
	case <-s.after(s.seekTimeout):
		metrics.RecordSeekTimeout()
		s.logger.Debug(ctx, "seek did not settle, continuing",
			logger.Duration("position", pos),
			logger.Duration("timeout", s.seekTimeout))
	case <-ctx.Done():
		return pos, ctx.Err()
	}
	return pos, nil
}

// Sample seeks to t and returns the frame there.
func (s *Sampler) Sample(ctx context.Context, t time.Duration) (time.Duration, image.Image, error) {
	pos, err := s.SeekTo(ctx, t)
	if err != nil {
		return pos, nil, err
	}
	img, err := s.src.Frame()
	if err != nil {
		return pos, nil, fmt.Errorf("read frame at %s: %w", pos, err)
	}
	return pos, img, nil
}

// Walk samples every frame of plan in order, calling fn and then progress for each.
// Progress carries the index of the frame just handled, so it runs 0..total-1.
// Frame i+1 is not sampled before fn returns for frame i.
func (s *Sampler) Walk(ctx context.Context, plan Plan, fn FrameFunc, progress ProgressFunc) error {
	for i := 0; i < plan.Total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		pos, img, err := s.Sample(ctx, plan.Timestamp(i))
		if err != nil {
			return err
		}
		if err := fn(ctx, i, pos, img); err != nil {
			return err
		}
		if progress != nil {
			progress(Percent(i, plan.Total), i, plan.Total)
		}
		if s.yieldEvery > 0 && (i+1)%s.yieldEvery == 0 {
			s.yield()
		}
	}
	return nil
}
