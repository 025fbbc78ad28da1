package sampler

import "errors"

var (
	// ErrNotReady is returned when the source never became ready.
	ErrNotReady = errors.New("video source not ready")
	// ErrEmptySource is returned for sources with no playable duration.
	ErrEmptySource = errors.New("video source has no duration")
)
