package sampler

import (
	"time"

	"github.com/okian/crease/pkg/logger"
)

// Option configures a Sampler.
type Option func(*Sampler)

// WithSeekTimeout bounds how long a seek may take to settle.
func WithSeekTimeout(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.seekTimeout = d
		}
	}
}

// WithYieldEvery sets how many frames run between scheduler yields. 0 disables yielding.
func WithYieldEvery(n int) Option {
	return func(s *Sampler) {
		if n >= 0 {
			s.yieldEvery = n
		}
	}
}

// WithYield replaces runtime.Gosched as the yield hook.
func WithYield(fn func()) Option {
	return func(s *Sampler) {
		if fn != nil {
			s.yield = fn
		}
	}
}

// WithClock replaces time.After for seek timeouts.
func WithClock(after func(time.Duration) <-chan time.Time) Option {
	return func(s *Sampler) {
		if after != nil {
			s.after = after
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Sampler) {
		s.logger = l
	}
}
