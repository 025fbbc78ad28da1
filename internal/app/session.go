// Package service holds the per-video session: it owns the telemetry channel,
// the frame pipeline and the extraction engine for one video identifier.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/crease/internal/adapters/mq/queue"
	"github.com/okian/crease/internal/adapters/mq/worker"
	"github.com/okian/crease/internal/adapters/ws/channel"
	"github.com/okian/crease/internal/domain/extraction"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/sampler"
	"github.com/okian/crease/internal/domain/skeleton"
	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/metrics"
)

const (
	enqueueRetry    = 5 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// Sink receives render-ready frames and is closed with the session.
type Sink interface {
	worker.Sink
	Close() error
}

// Callbacks surface channel outcomes and extraction progress to the caller.
// All are optional and may be called from any goroutine.
type Callbacks struct {
	OnAnalysis func(data json.RawMessage)
	OnComplete func(data json.RawMessage)
	OnError    func(message string)
	OnFailed   func(err error)
	OnState    func(s channel.Status)
	OnProgress func(stream queue.Stream, percent, frame, total int)
	// OnLiveDropped reports a live frame refused by a full or closed render
	// queue. Live frames never wait, so the rendered live stream is lossy
	// under backpressure; dropped is the running total for the session.
	OnLiveDropped func(frameIndex int, dropped int64)
}

// Session is caller-owned and bound to one video identifier. To follow a
// different video, close it and create another.
type Session struct {
	id      string
	videoID string

	apiBase     string
	live        bool
	channelOpts []channel.Option
	engineOpts  []extraction.Option
	provider    extraction.Provider
	sink        Sink
	queueSize   int
	display     skeleton.Size
	liveSource  skeleton.Size
	callbacks   Callbacks

	channel *channel.Channel
	queue   *queue.InMemoryQueue
	worker  *worker.Worker
	engine  *extraction.Engine

	mu       sync.Mutex
	started  bool
	closed   bool
	cancel   context.CancelFunc
	complete bool
	progress map[queue.Stream]int

	liveFrames   atomic.Int64
	liveRejected atomic.Int64
	decodeErrors atomic.Int64

	logger logger.Logger
}

// New creates a session for videoID. Nothing connects until Start.
func New(videoID string, opts ...Option) (*Session, error) {
	if videoID == "" {
		return nil, ErrNoVideoID
	}
	s := &Session{
		id:         uuid.NewString(),
		videoID:    videoID,
		apiBase:    "ws://localhost:8000",
		live:       true,
		queueSize:  1024,
		display:    skeleton.Size{W: 1280, H: 720},
		liveSource: skeleton.Size{W: 1280, H: 720},
		progress:   make(map[queue.Stream]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("session")
	}
	if s.sink == nil {
		return nil, fmt.Errorf("session %s: no sink configured", s.id)
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.worker = worker.New(s.queue, s.sink, s.display, worker.WithLogger(s.logger.Named("render-worker")))
	s.engine = extraction.New(s.provider, append([]extraction.Option{
		extraction.WithLogger(s.logger.Named("extraction")),
	}, s.engineOpts...)...)
	s.channel = channel.New(s.apiBase, s.handlers(), append([]channel.Option{
		channel.WithLogger(s.logger.Named("channel")),
	}, s.channelOpts...)...)
	return s, nil
}

// ID is the session's unique identifier.
func (s *Session) ID() string { return s.id }

// VideoID is the video this session follows.
func (s *Session) VideoID() string { return s.videoID }

// Channel exposes the telemetry channel for manual reconnects.
func (s *Session) Channel() *channel.Channel { return s.channel }

// Start runs the render worker and, when live, connects the telemetry channel.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.worker.Run(runCtx)

	if s.live {
		s.channel.SetTarget(s.videoID, true)
	}
	s.started = true

	s.logger.Info(ctx, "session started",
		logger.String("session_id", s.id),
		logger.String("video_id", s.videoID),
		logger.Bool("live", s.live))
	return nil
}

// Close tears down the channel, the pipeline and the sink. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	s.channel.Close()
	_ = s.queue.Close()

	var errs []error
	if started {
		shutdownCtx, done := context.WithTimeout(ctx, shutdownTimeout)
		defer done()
		// The closed queue ends Run once its buffer is delivered; Shutdown only
		// cuts that short when the deadline passes.
		select {
		case <-s.worker.Done():
		case <-shutdownCtx.Done():
		}
		if err := s.worker.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if err := s.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close sink: %w", err))
	}

	s.logger.Info(ctx, "session closed",
		logger.String("session_id", s.id),
		logger.Int("published", int(s.worker.Stats().Published)))
	return errors.Join(errs...)
}

// Refine runs the multi-person pass over src using one detection element per
// sampled frame. Refined frames travel on their own stream.
func (s *Session) Refine(ctx context.Context, src sampler.Source, dets []model.DetectionFrame) ([]model.FrameRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.enqueueWait(ctx, queue.Item{Stream: queue.StreamRefine, Reset: true}); err != nil {
		return nil, fmt.Errorf("refine %s: %w", s.videoID, err)
	}
	recs, err := s.engine.ExtractPersons(ctx, src, dets, s.hooks(ctx, queue.StreamRefine, src))
	if err != nil {
		return nil, fmt.Errorf("refine %s: %w", s.videoID, err)
	}
	return recs, nil
}

// Extract runs the single-person pass over src at the configured sample rate.
func (s *Session) Extract(ctx context.Context, src sampler.Source) ([]model.FrameRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.enqueueWait(ctx, queue.Item{Stream: queue.StreamSingle, Reset: true}); err != nil {
		return nil, fmt.Errorf("extract %s: %w", s.videoID, err)
	}
	recs, err := s.engine.ExtractSingle(ctx, src, s.hooks(ctx, queue.StreamSingle, src))
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", s.videoID, err)
	}
	return recs, nil
}

// Drain waits until every frame queued before the call has been handed to the
// sink, including one the worker is still publishing.
func (s *Session) Drain(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	ack := make(chan struct{})
	if err := s.enqueueWait(ctx, queue.Item{Ack: ack}); err != nil {
		return fmt.Errorf("drain %s: %w", s.videoID, err)
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.worker.Done():
		select {
		case <-ack:
			return nil
		default:
			return ErrClosed
		}
	}
}

func (s *Session) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrClosed
	case !s.started:
		return ErrNotStarted
	}
	return nil
}

func (s *Session) hooks(ctx context.Context, stream queue.Stream, src sampler.Source) extraction.Hooks {
	var size skeleton.Size
	return extraction.Hooks{
		OnFrame: func(rec model.FrameRecord) {
			if size.W == 0 {
				fs := src.FrameSize()
				size = skeleton.Size{W: float64(fs.X), H: float64(fs.Y)}
			}
			_ = s.enqueueWait(ctx, queue.Item{Stream: stream, Record: rec, Source: size})
		},
		OnProgress: func(percent, frame, total int) {
			s.mu.Lock()
			s.progress[stream] = percent
			s.mu.Unlock()
			if s.callbacks.OnProgress != nil {
				s.callbacks.OnProgress(stream, percent, frame, total)
			}
		},
	}
}

// enqueueWait retries while the queue is full so extraction runs never lose frames.
func (s *Session) enqueueWait(ctx context.Context, it queue.Item) error { //nolint:gocritic // hugeParam: items travel by value
	for {
		err := s.queue.Enqueue(ctx, it)
		if !errors.Is(err, queue.ErrFull) {
			if err != nil {
				s.logger.Warn(ctx, "frame not queued",
					logger.String("stream", string(it.Stream)),
					logger.Int("frame_index", it.Record.FrameIndex),
					logger.Error(err))
			}
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(enqueueRetry):
		}
	}
}

func (s *Session) handlers() channel.Handlers {
	ctx := context.Background()
	return channel.Handlers{
		OnKeypoints: func(data json.RawMessage) {
			rec, err := model.DecodeFrame(data)
			if err != nil {
				s.decodeErrors.Add(1)
				metrics.RecordDecodeFailure()
				s.logger.Warn(ctx, "dropping keypoints payload", logger.Error(err))
				return
			}
			s.liveFrames.Add(1)
			// Live frames never wait; the read loop must keep up with the socket.
			if err := s.queue.Enqueue(ctx, queue.Item{Stream: queue.StreamLive, Record: rec, Source: s.liveSource}); err != nil {
				dropped := s.liveRejected.Add(1)
				s.logger.Warn(ctx, "live frame dropped",
					logger.Int("frame_index", rec.FrameIndex),
					logger.Error(err))
				if s.callbacks.OnLiveDropped != nil {
					s.callbacks.OnLiveDropped(rec.FrameIndex, dropped)
				}
			}
		},
		OnAnalysis: func(data json.RawMessage) {
			if s.callbacks.OnAnalysis != nil {
				s.callbacks.OnAnalysis(data)
			}
		},
		OnComplete: func(data json.RawMessage) {
			s.mu.Lock()
			s.complete = true
			s.mu.Unlock()
			s.logger.Info(ctx, "server reported completion", logger.String("video_id", s.videoID))
			if s.callbacks.OnComplete != nil {
				s.callbacks.OnComplete(data)
			}
		},
		OnError: func(message string) {
			s.logger.Warn(ctx, "server reported an error", logger.String("message", message))
			if s.callbacks.OnError != nil {
				s.callbacks.OnError(message)
			}
		},
		OnFailed: func(err error) {
			if s.callbacks.OnFailed != nil {
				s.callbacks.OnFailed(err)
			}
		},
		OnState: func(st channel.Status) {
			if s.callbacks.OnState != nil {
				s.callbacks.OnState(st)
			}
		},
	}
}
