package model

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DetectionFrame is one element of an upstream detection sequence. Only the person
// boxes are required; the index and timestamp are informational.
type DetectionFrame struct {
	FrameIndex *int              `json:"frameIndex,omitempty" yaml:"frameIndex,omitempty"`
	Timestamp  *float64          `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Persons    []PersonDetection `json:"persons" yaml:"persons"`
}

// DetectionFromRecord turns a received frame into a detection hint.
func DetectionFromRecord(fr FrameRecord) DetectionFrame {
	idx, ts := fr.FrameIndex, fr.Timestamp
	return DetectionFrame{FrameIndex: &idx, Timestamp: &ts, Persons: fr.Persons}
}

// LoadDetections reads a detection sequence. YAML is a superset of JSON so both
// encodings are accepted. Every present bbox must have positive extent.
func LoadDetections(r io.Reader) ([]DetectionFrame, error) {
	var frames []DetectionFrame
	if err := yaml.NewDecoder(r).Decode(&frames); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode detections: %w", err)
	}
	for i, f := range frames {
		for j, p := range f.Persons {
			if p.BBox != nil && !p.BBox.Valid() {
				return nil, fmt.Errorf("%w: frame %d person %d: %v", ErrInvalidBBox, i, j, *p.BBox)
			}
		}
	}
	return frames, nil
}

// LoadDetectionsFile opens path and calls LoadDetections.
func LoadDetectionsFile(path string) ([]DetectionFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open detections: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadDetections(f)
}
