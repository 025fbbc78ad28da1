package extraction

import (
	"context"
	"image"

	"github.com/okian/crease/internal/domain/model"
)

// Estimator is a pose model instance. It is not reentrant: the engine calls it
// from one goroutine, one crop at a time.
type Estimator interface {
	// Estimate returns landmarks normalized to img's bounds. An empty result means
	// no person was found.
	Estimate(ctx context.Context, img image.Image) ([]model.Landmark, error)
	// Close releases the model.
	Close() error
}

// Provider acquires an Estimator for one extraction run.
type Provider interface {
	Acquire(ctx context.Context) (Estimator, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Estimator, error)

// Acquire calls f.
func (f ProviderFunc) Acquire(ctx context.Context) (Estimator, error) { return f(ctx) }
