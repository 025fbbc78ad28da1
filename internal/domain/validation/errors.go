package validation

import "errors"

// Sentinel error kinds for rejected videos.
var (
	ErrTooLarge           = errors.New("video too large")
	ErrUnsupportedType    = errors.New("unsupported file type")
	ErrDurationOutOfRange = errors.New("video duration out of range")
)
