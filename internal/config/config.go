// Package config defines client configuration and its loading rules.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load(ctx) layers an optional YAML file and CREASE_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Pose backends understood by the client.
const (
	PoseBackendHTTP    = "http"
	PoseBackendProcess = "process"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// APIBase is the websocket base of the analysis server; the channel dials
	// <api_base>/videos/ws/<videoId>.
	APIBase string `koanf:"api_base"`
	// UploadBase is the HTTP base used for video uploads.
	UploadBase string `koanf:"upload_base"`

	HandshakeTimeoutMS   int `koanf:"handshake_timeout_ms"`
	ReconnectMaxAttempts int `koanf:"reconnect_max_attempts"`
	ReconnectBaseDelayMS int `koanf:"reconnect_base_delay_ms"`

	// SeekTimeoutMS bounds how long the sampler waits for a seek to settle.
	SeekTimeoutMS int `koanf:"seek_timeout_ms"`
	// SampleRate is the single-person sampling rate in frames per second.
	SampleRate float64 `koanf:"sample_rate"`
	// YieldEvery is how many frames are processed between scheduler yields.
	YieldEvery int `koanf:"yield_every"`

	MaxUploadMB  int     `koanf:"max_upload_mb"`
	MinDurationS float64 `koanf:"min_duration_s"`
	MaxDurationS float64 `koanf:"max_duration_s"`

	// PoseBackend is "http" (PoseURL) or "process" (PoseCommand).
	PoseBackend string `koanf:"pose_backend"`
	PoseURL     string `koanf:"pose_url"`
	PoseCommand string `koanf:"pose_command"`

	// MQTTBroker enables the MQTT skeleton sink when non-empty, e.g. "localhost:1883".
	MQTTBroker string `koanf:"mqtt_broker"`
	MQTTTopic  string `koanf:"mqtt_topic"`

	// MetricsAddr is the listen address of the /healthz and /stats surface.
	MetricsAddr string `koanf:"metrics_addr"`

	FrameQueueSize int `koanf:"frame_queue_size"`

	DisplayWidth  int `koanf:"display_width"`
	DisplayHeight int `koanf:"display_height"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		APIBase:              "ws://localhost:8000",
		UploadBase:           "http://localhost:8000",
		HandshakeTimeoutMS:   10_000,
		ReconnectMaxAttempts: 5,
		ReconnectBaseDelayMS: 1000,
		SeekTimeoutMS:        500,
		SampleRate:           25,
		YieldEvery:           5,
		MaxUploadMB:          50,
		MinDurationS:         10,
		MaxDurationS:         60,
		PoseBackend:          PoseBackendHTTP,
		PoseURL:              "http://localhost:5000/pose",
		PoseCommand:          "",
		MQTTBroker:           "",
		MQTTTopic:            "crease/skeleton",
		MetricsAddr:          ":9090",
		FrameQueueSize:       1024,
		DisplayWidth:         1280,
		DisplayHeight:        720,
	}
}

// Validate checks invariants the rest of the client relies on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.APIBase) == "":
		return fmt.Errorf("%w: api_base must not be empty", ErrInvalidConfig)
	case !strings.HasPrefix(c.APIBase, "ws://") && !strings.HasPrefix(c.APIBase, "wss://"):
		return fmt.Errorf("%w: api_base must use ws:// or wss://", ErrInvalidConfig)
	case c.ReconnectMaxAttempts < 0:
		return fmt.Errorf("%w: reconnect_max_attempts must not be negative", ErrInvalidConfig)
	case c.ReconnectBaseDelayMS <= 0:
		return fmt.Errorf("%w: reconnect_base_delay_ms must be positive", ErrInvalidConfig)
	case c.SeekTimeoutMS <= 0:
		return fmt.Errorf("%w: seek_timeout_ms must be positive", ErrInvalidConfig)
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample_rate must be positive", ErrInvalidConfig)
	case c.YieldEvery <= 0:
		return fmt.Errorf("%w: yield_every must be positive", ErrInvalidConfig)
	case c.MinDurationS > c.MaxDurationS:
		return fmt.Errorf("%w: min_duration_s exceeds max_duration_s", ErrInvalidConfig)
	case c.FrameQueueSize <= 0:
		return fmt.Errorf("%w: frame_queue_size must be positive", ErrInvalidConfig)
	case c.DisplayWidth <= 0 || c.DisplayHeight <= 0:
		return fmt.Errorf("%w: display size must be positive", ErrInvalidConfig)
	}

	switch c.PoseBackend {
	case PoseBackendHTTP:
		if c.PoseURL == "" {
			return fmt.Errorf("%w: pose_url is required for the http backend", ErrInvalidConfig)
		}
	case PoseBackendProcess:
		if c.PoseCommand == "" {
			return fmt.Errorf("%w: pose_command is required for the process backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown pose_backend %q", ErrInvalidConfig, c.PoseBackend)
	}
	return nil
}

// HandshakeTimeout returns the dial handshake timeout.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMS) * time.Millisecond
}

// ReconnectBaseDelay returns the first backoff step.
func (c *Config) ReconnectBaseDelay() time.Duration {
	return time.Duration(c.ReconnectBaseDelayMS) * time.Millisecond
}

// SeekTimeout returns the seek-settle timeout.
func (c *Config) SeekTimeout() time.Duration {
	return time.Duration(c.SeekTimeoutMS) * time.Millisecond
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
