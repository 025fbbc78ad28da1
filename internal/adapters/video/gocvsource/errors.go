package gocvsource

import "errors"

// ErrNoFrame is returned by Frame before any frame has been decoded.
var ErrNoFrame = errors.New("no decoded frame at current position")
