// Package gocvsource decodes local video files with OpenCV.
package gocvsource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/okian/crease/internal/domain/sampler"
	"github.com/okian/crease/internal/domain/validation"
)

const sniffBytes = 512

// Source is a seekable OpenCV capture. It satisfies sampler.Source.
type Source struct {
	mu   sync.Mutex
	cap  *gocv.VideoCapture
	mat  gocv.Mat
	next gocv.Mat
	have bool

	duration time.Duration
	size     image.Point
}

// Open opens path for decoding.
func Open(path string) (*Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Source{
		cap:      vc,
		mat:      gocv.NewMat(),
		next:     gocv.NewMat(),
		duration: durationOf(vc.Get(gocv.VideoCaptureFrameCount), vc.Get(gocv.VideoCaptureFPS)),
		size: image.Pt(
			int(vc.Get(gocv.VideoCaptureFrameWidth)),
			int(vc.Get(gocv.VideoCaptureFrameHeight)),
		),
	}, nil
}

// Ready reads the first frame so geometry and pixels are known.
func (s *Source) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cap.IsOpened() {
		return fmt.Errorf("%w: capture is not open", sampler.ErrNotReady)
	}
	if !s.have {
		if ok := s.cap.Read(&s.mat); !ok || s.mat.Empty() {
			return fmt.Errorf("%w: first frame could not be decoded", sampler.ErrNotReady)
		}
		s.have = true
		s.size = image.Pt(s.mat.Cols(), s.mat.Rows())
	}
	return nil
}

// Duration reports frame count over frame rate.
func (s *Source) Duration() time.Duration { return s.duration }

// FrameSize reports the decoded frame size.
func (s *Source) FrameSize() image.Point { return s.size }

// Seek positions the capture and decodes the frame there. A failed decode
// keeps the previous frame current and never settles.
func (s *Source) Seek(t time.Duration) <-chan struct{} {
	settled := make(chan struct{})
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cap.Set(gocv.VideoCapturePosMsec, float64(t.Milliseconds()))
		if ok := s.cap.Read(&s.next); !ok || s.next.Empty() {
			return
		}
		s.mat, s.next = s.next, s.mat
		s.have = true
		close(settled)
	}()
	return settled
}

// Frame converts the current frame to an image.
func (s *Source) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.have {
		return nil, ErrNoFrame
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Close releases the capture.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.mat.Close()
	_ = s.next.Close()
	return s.cap.Close()
}

// Probe gathers what validation needs without decoding the whole file.
func Probe(path string) (validation.Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return validation.Meta{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return validation.Meta{}, fmt.Errorf("stat %s: %w", path, err)
	}
	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return validation.Meta{}, fmt.Errorf("read %s: %w", path, err)
	}

	meta := validation.Meta{
		Name:     path,
		Size:     info.Size(),
		MIMEType: validation.DetectMIME(path, head[:n]),
	}

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		// unreadable by OpenCV; duration stays zero and validation rejects it
		return meta, nil
	}
	defer func() { _ = vc.Close() }()
	meta.Duration = durationOf(vc.Get(gocv.VideoCaptureFrameCount), vc.Get(gocv.VideoCaptureFPS))
	return meta, nil
}

func durationOf(frames, fps float64) time.Duration {
	if frames <= 0 || fps <= 0 {
		return 0
	}
	return time.Duration(frames / fps * float64(time.Second))
}
