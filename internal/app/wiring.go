package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/crease/internal/adapters/pose/httppose"
	"github.com/okian/crease/internal/adapters/pose/procpose"
	"github.com/okian/crease/internal/adapters/sink/logsink"
	"github.com/okian/crease/internal/adapters/sink/mqttsink"
	"github.com/okian/crease/internal/adapters/ws/channel"
	"github.com/okian/crease/internal/config"
	"github.com/okian/crease/internal/domain/extraction"
	"github.com/okian/crease/internal/domain/sampler"
	"github.com/okian/crease/internal/domain/skeleton"
	"github.com/okian/crease/pkg/logger"
)

// ProviderFromConfig selects the pose backend named by cfg.
func ProviderFromConfig(cfg *config.Config, l logger.Logger) (extraction.Provider, error) {
	switch cfg.PoseBackend {
	case config.PoseBackendHTTP:
		return httppose.NewProvider(cfg.PoseURL), nil
	case config.PoseBackendProcess:
		return procpose.NewProvider(cfg.PoseCommand, procpose.WithLogger(l.Named("procpose"))), nil
	default:
		return nil, fmt.Errorf("%w: unknown pose_backend %q", config.ErrInvalidConfig, cfg.PoseBackend)
	}
}

// SinkFromConfig connects the MQTT sink when a broker is configured and falls back to the log sink otherwise.
func SinkFromConfig(ctx context.Context, cfg *config.Config, videoID string, l logger.Logger) (Sink, error) {
	if cfg.MQTTBroker == "" {
		return logsink.New(l.Named("render")), nil
	}
	clientID := "crease-" + uuid.NewString()[:8]
	sink := mqttsink.New(cfg.MQTTBroker, clientID, cfg.MQTTTopic, videoID, mqttsink.WithLogger(l.Named("mqtt-sink")))
	if err := sink.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect sink: %w", err)
	}
	return sink, nil
}

// OptionsFromConfig maps cfg onto session options.
func OptionsFromConfig(cfg *config.Config) []Option {
	return []Option{
		WithAPIBase(cfg.APIBase),
		WithQueueSize(cfg.FrameQueueSize),
		WithDisplay(skeleton.Size{W: float64(cfg.DisplayWidth), H: float64(cfg.DisplayHeight)}),
		WithChannelOptions(
			channel.WithMaxAttempts(cfg.ReconnectMaxAttempts),
			channel.WithBaseDelay(cfg.ReconnectBaseDelay()),
			channel.WithHandshakeTimeout(cfg.HandshakeTimeout()),
		),
		WithEngineOptions(
			extraction.WithSampleRate(cfg.SampleRate),
			extraction.WithSamplerOptions(
				sampler.WithSeekTimeout(cfg.SeekTimeout()),
				sampler.WithYieldEvery(cfg.YieldEvery),
			),
		),
	}
}
