package api

import "errors"

var (
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrNoStats          = errors.New("no session is running")
)
