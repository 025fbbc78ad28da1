package extraction

import (
	"github.com/okian/crease/internal/domain/sampler"
	"github.com/okian/crease/pkg/logger"
)

// Option configures an Engine.
type Option func(*Engine)

// WithSampleRate sets the single-person sampling rate.
func WithSampleRate(rate float64) Option {
	return func(e *Engine) {
		if rate > 0 {
			e.sampleRate = rate
		}
	}
}

// WithSurface replaces the crop buffer allocator.
func WithSurface(fn SurfaceFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.surface = fn
		}
	}
}

// WithSamplerOptions passes options to every sampler the engine creates.
func WithSamplerOptions(opts ...sampler.Option) Option {
	return func(e *Engine) {
		e.samplerOpts = append(e.samplerOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}
