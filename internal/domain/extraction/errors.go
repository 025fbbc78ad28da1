package extraction

import "errors"

var (
	// ErrSurface means a crop buffer could not be allocated. It aborts the run.
	ErrSurface = errors.New("rendering surface unavailable")
	// ErrNoDetections is returned for a multi-person run with an empty sequence.
	ErrNoDetections = errors.New("no detection frames")
	// ErrNoProvider is returned when the engine has no estimator provider.
	ErrNoProvider = errors.New("no pose estimator provider")
)
