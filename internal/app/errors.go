package service

import "errors"

var (
	ErrNoVideoID  = errors.New("video identifier is required")
	ErrClosed     = errors.New("session is closed")
	ErrNotStarted = errors.New("session is not started")
)
