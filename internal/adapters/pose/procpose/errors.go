package procpose

import "errors"

var (
	ErrNoCommand     = errors.New("pose command is empty")
	ErrFrameTooLarge = errors.New("worker frame exceeds limit")
	ErrWorker        = errors.New("pose worker error")
	ErrClosed        = errors.New("pose worker closed")
)
