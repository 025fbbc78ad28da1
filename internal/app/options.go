package service

import (
	"github.com/okian/crease/internal/adapters/ws/channel"
	"github.com/okian/crease/internal/domain/extraction"
	"github.com/okian/crease/internal/domain/skeleton"
	"github.com/okian/crease/pkg/logger"
)

// Option applies a configuration option to the Session.
type Option func(*Session)

// WithAPIBase sets the ws:// or wss:// base of the analysis server.
func WithAPIBase(base string) Option {
	return func(s *Session) {
		if base != "" {
			s.apiBase = base
		}
	}
}

// WithLive connects the telemetry channel on Start. On by default.
func WithLive(enabled bool) Option {
	return func(s *Session) {
		s.live = enabled
	}
}

// WithChannelOptions passes options through to the telemetry channel.
func WithChannelOptions(opts ...channel.Option) Option {
	return func(s *Session) {
		s.channelOpts = append(s.channelOpts, opts...)
	}
}

// WithEngineOptions passes options through to the extraction engine.
func WithEngineOptions(opts ...extraction.Option) Option {
	return func(s *Session) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithProvider sets where extraction runs get their estimator.
func WithProvider(p extraction.Provider) Option {
	return func(s *Session) {
		s.provider = p
	}
}

// WithSink sets where render-ready frames go.
func WithSink(sink Sink) Option {
	return func(s *Session) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithQueueSize sets the frame queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Session) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDisplay sets the render surface size.
func WithDisplay(size skeleton.Size) Option {
	return func(s *Session) {
		if size.W > 0 && size.H > 0 {
			s.display = size
		}
	}
}

// WithSourceSize sets the pixel size live landmarks refer to.
func WithSourceSize(size skeleton.Size) Option {
	return func(s *Session) {
		if size.W > 0 && size.H > 0 {
			s.liveSource = size
		}
	}
}

// WithCallbacks sets the caller's notification hooks.
func WithCallbacks(cb Callbacks) Option {
	return func(s *Session) {
		s.callbacks = cb
	}
}

// WithLogger sets a custom logger for the session.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}
