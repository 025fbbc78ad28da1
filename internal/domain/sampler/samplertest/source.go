// Package samplertest provides an in-memory video source for tests.
package samplertest

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"
)

// Source is a synthetic video whose frames are solid images shaded by position.
type Source struct {
	Dur  time.Duration
	Size image.Point
	// Hang makes every seek leave its settle channel open.
	Hang     bool
	ReadyErr error
	FrameErr error

	mu    sync.Mutex
	pos   time.Duration
	seeks []time.Duration
}

// New returns a source of the given length and frame size.
func New(d time.Duration, w, h int) *Source {
	return &Source{Dur: d, Size: image.Pt(w, h)}
}

func (s *Source) Ready(ctx context.Context) error {
	if s.ReadyErr != nil {
		return s.ReadyErr
	}
	return ctx.Err()
}

func (s *Source) Duration() time.Duration { return s.Dur }

func (s *Source) FrameSize() image.Point { return s.Size }

func (s *Source) Seek(t time.Duration) <-chan struct{} {
	s.mu.Lock()
	s.pos = t
	s.seeks = append(s.seeks, t)
	s.mu.Unlock()

	done := make(chan struct{})
	if !s.Hang {
		close(done)
	}
	return done
}

func (s *Source) Frame() (image.Image, error) {
	if s.FrameErr != nil {
		return nil, s.FrameErr
	}
	s.mu.Lock()
	shade := uint8(s.pos / time.Millisecond % 256)
	s.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, s.Size.X, s.Size.Y))
	fill := color.RGBA{R: shade, G: shade, B: shade, A: 255}
	for y := 0; y < s.Size.Y; y++ {
		for x := 0; x < s.Size.X; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	return img, nil
}

// Seeks returns every requested position in order.
func (s *Source) Seeks() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.seeks))
	copy(out, s.seeks)
	return out
}
