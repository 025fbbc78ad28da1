package model

import "errors"

var (
	// ErrInvalidFrame is returned when a keypoints payload cannot be decoded.
	ErrInvalidFrame = errors.New("invalid frame record")
	// ErrInvalidBBox is returned for boxes without positive extent.
	ErrInvalidBBox = errors.New("invalid bounding box")
)
