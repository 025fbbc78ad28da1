// Package validation checks submitted videos before any upload or processing.
package validation

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// Meta describes a candidate video.
type Meta struct {
	Name     string
	Size     int64
	MIMEType string
	Duration time.Duration
}

// Limits bounds acceptable videos.
type Limits struct {
	MaxBytes    int64
	MinDuration time.Duration
	MaxDuration time.Duration
}

// DefaultLimits returns 50MB and a 10-60s duration window.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:    50 << 20,
		MinDuration: 10 * time.Second,
		MaxDuration: 60 * time.Second,
	}
}

// Validate returns nil or a human-readable rejection wrapping one of the package sentinels.
// Checks run in order: size, type, duration.
func (l Limits) Validate(m Meta) error {
	if m.Size > l.MaxBytes {
		return fmt.Errorf("%w: %s is %.1fMB, the limit is %dMB",
			ErrTooLarge, displayName(m), float64(m.Size)/(1<<20), l.MaxBytes>>20)
	}
	if !strings.HasPrefix(strings.ToLower(m.MIMEType), "video/") {
		mt := m.MIMEType
		if mt == "" {
			mt = "unknown"
		}
		return fmt.Errorf("%w: %s has type %s, expected a video", ErrUnsupportedType, displayName(m), mt)
	}
	if m.Duration < l.MinDuration || m.Duration > l.MaxDuration {
		return fmt.Errorf("%w: %s runs %s, it must be between %s and %s",
			ErrDurationOutOfRange, displayName(m), m.Duration.Round(100*time.Millisecond), l.MinDuration, l.MaxDuration)
	}
	return nil
}

// Validate checks m against DefaultLimits.
func Validate(m Meta) error { return DefaultLimits().Validate(m) }

// DetectMIME guesses a MIME type from the file extension, falling back to content sniffing of head.
func DetectMIME(name string, head []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return http.DetectContentType(head)
}

func displayName(m Meta) string {
	if m.Name == "" {
		return "video"
	}
	return filepath.Base(m.Name)
}
