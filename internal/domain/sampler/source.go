package sampler

import (
	"context"
	"image"
	"time"
)

// Source is a seekable video. Implementations are driven by one goroutine at a time.
type Source interface {
	// Ready blocks until metadata and the first frame are available.
	Ready(ctx context.Context) error
	// Duration is the playable length. Valid after Ready.
	Duration() time.Duration
	// FrameSize is the decoded frame size in pixels. Valid after Ready.
	FrameSize() image.Point
	// Seek moves the playback position to t. The returned channel is closed once
	// the seek has settled; a source may never close it for degenerate seeks.
	Seek(t time.Duration) <-chan struct{}
	// Frame returns the pixels at the current position.
	Frame() (image.Image, error)
}
