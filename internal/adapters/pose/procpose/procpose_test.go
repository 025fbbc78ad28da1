package procpose

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"
	"time"
)

// fakeWorker answers every request on the other end of a pipe pair.
func fakeWorker(t *testing.T, answer func(request) response) (*Estimator, func()) {
	t.Helper()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer respW.Close()
		for {
			var req request
			if err := readFrame(reqR, &req); err != nil {
				return
			}
			if err := writeFrame(respW, answer(req)); err != nil {
				return
			}
		}
	}()

	stop := func() error {
		_ = reqW.Close()
		<-done
		return nil
	}
	est := newEstimator(reqW, respR, stop, time.Second, time.Second)
	return est, func() { _ = est.Close() }
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	vis := 0.75
	in := response{Landmarks: []wireLandmark{{X: 0.1, Y: 0.2, Z: 0.3, Visibility: &vis}}}
	if err := writeFrame(&buf, in); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	if got := buf.Bytes()[:4]; got[0] != 0 || got[1] != 0 {
		t.Fatalf("unexpected length prefix %v", got)
	}
	var out response
	if err := readFrame(&buf, &out); err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if len(out.Landmarks) != 1 || out.Landmarks[0].Y != 0.2 || *out.Landmarks[0].Visibility != 0.75 {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestReadFrameRejectsOversized(t *testing.T) {
	r := bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff})
	var out response
	if err := readFrame(r, &out); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestNewRequestPacksSubImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	src.Set(3, 4, color.RGBA{R: 200, A: 255})
	sub := src.SubImage(image.Rect(3, 4, 5, 7))

	req := newRequest(sub)
	if req.Width != 2 || req.Height != 3 || req.Format != "rgba" {
		t.Fatalf("unexpected geometry %dx%d %s", req.Width, req.Height, req.Format)
	}
	if len(req.FrameData) != 2*3*4 {
		t.Fatalf("expected tightly packed pixels, got %d bytes", len(req.FrameData))
	}
	if req.FrameData[0] != 200 {
		t.Fatalf("expected crop origin pixel first, got %v", req.FrameData[:4])
	}
}

func TestEstimate(t *testing.T) {
	est, closeFn := fakeWorker(t, func(req request) response {
		return response{Landmarks: []wireLandmark{
			{X: float64(req.Width) / 100, Y: float64(req.Height) / 100},
		}}
	})
	defer closeFn()

	lms, err := est.Estimate(context.Background(), image.NewRGBA(image.Rect(0, 0, 20, 40)))
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if len(lms) != 1 || lms[0].X != 0.2 || lms[0].Y != 0.4 || lms[0].Visibility != nil {
		t.Fatalf("unexpected landmarks %+v", lms)
	}

	// a second call reuses the same stream
	if _, err := est.Estimate(context.Background(), image.NewRGBA(image.Rect(0, 0, 5, 5))); err != nil {
		t.Fatalf("second Estimate: %v", err)
	}
}

func TestEstimateWorkerError(t *testing.T) {
	est, closeFn := fakeWorker(t, func(request) response {
		return response{Error: "model not loaded"}
	})
	defer closeFn()

	_, err := est.Estimate(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if !errors.Is(err, ErrWorker) {
		t.Fatalf("expected ErrWorker, got %v", err)
	}
}

func TestEstimateSilentWorker(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go func() { _, _ = io.Copy(io.Discard, reqR) }()

	stop := func() error {
		_ = reqW.Close()
		_ = respW.Close()
		return nil
	}
	est := newEstimator(reqW, respR, stop, time.Second, 50*time.Millisecond)
	defer func() { _ = est.Close() }()

	start := time.Now()
	_, err := est.Estimate(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if err == nil {
		t.Fatal("expected a read timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Estimate blocked for %s", elapsed)
	}

	// the stream may be mid-frame now, so later calls fail fast
	if _, again := est.Estimate(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4))); !errors.Is(again, err) {
		t.Fatalf("expected the same broken error, got %v", again)
	}
}

func TestEstimateCancelledWhileWaiting(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go func() { _, _ = io.Copy(io.Discard, reqR) }()
	est := newEstimator(reqW, respR, func() error {
		_ = reqW.Close()
		_ = respW.Close()
		return nil
	}, time.Second, time.Minute)
	defer func() { _ = est.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := est.Estimate(ctx, image.NewRGBA(image.Rect(0, 0, 4, 4))); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	est, _ := fakeWorker(t, func(request) response { return response{} })

	if err := est.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := est.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := est.Estimate(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1))); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestAcquireEmptyCommand(t *testing.T) {
	p := &Provider{}
	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrNoCommand) {
		t.Fatalf("expected ErrNoCommand, got %v", err)
	}
}
