// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
)

// Landmark is one estimated body joint. X and Y are normalized to [0,1] against
// the reference frame (or a person crop before remapping); Z is relative depth.
type Landmark struct {
	X          float64  `json:"x" yaml:"x"`
	Y          float64  `json:"y" yaml:"y"`
	Z          float64  `json:"z" yaml:"z"`
	Visibility *float64 `json:"visibility,omitempty" yaml:"visibility,omitempty"`
}

// Score returns the landmark visibility, or 1 when the estimator did not report one.
func (l Landmark) Score() float64 {
	if l.Visibility == nil {
		return 1
	}
	return *l.Visibility
}

// BBox is a person bounding box in pixels: [x1, y1, x2, y2].
type BBox [4]float64

// Valid reports whether the box has positive extent on both axes.
func (b BBox) Valid() bool { return b[2] > b[0] && b[3] > b[1] }

// Width returns x2-x1.
func (b BBox) Width() float64 { return b[2] - b[0] }

// Height returns y2-y1.
func (b BBox) Height() float64 { return b[3] - b[1] }

// PersonDetection is one person within a frame. Landmarks is nil when no estimate
// was produced; Confidence is derived from that (1 or 0), not model-reported.
type PersonDetection struct {
	PersonID   int        `json:"personId" yaml:"personId"`
	BBox       *BBox      `json:"bbox,omitempty" yaml:"bbox,omitempty"`
	Landmarks  []Landmark `json:"landmarks,omitempty" yaml:"landmarks,omitempty"`
	Confidence float64    `json:"confidence" yaml:"confidence"`
}

// HasLandmarks reports whether an estimate is present.
func (p PersonDetection) HasLandmarks() bool { return len(p.Landmarks) > 0 }

// FrameRecord is the per-frame result set. FrameIndex increases in emission order and
// Timestamp is in source-video seconds.
type FrameRecord struct {
	FrameIndex int               `json:"frameIndex" yaml:"frameIndex"`
	Timestamp  float64           `json:"timestamp" yaml:"timestamp"`
	Persons    []PersonDetection `json:"persons" yaml:"persons"`
}

// DecodeFrame parses a keypoints message payload.
func DecodeFrame(data []byte) (FrameRecord, error) {
	var fr FrameRecord
	if len(data) == 0 {
		return fr, fmt.Errorf("%w: empty payload", ErrInvalidFrame)
	}
	if err := json.Unmarshal(data, &fr); err != nil {
		return fr, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	if fr.FrameIndex < 0 || fr.Timestamp < 0 {
		return fr, fmt.Errorf("%w: negative frame index or timestamp", ErrInvalidFrame)
	}
	for i, p := range fr.Persons {
		if p.BBox != nil && !p.BBox.Valid() {
			return fr, fmt.Errorf("%w: person %d: %v", ErrInvalidBBox, i, *p.BBox)
		}
	}
	return fr, nil
}
