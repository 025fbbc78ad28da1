// Package mqttsink publishes render-ready skeleton frames to an MQTT broker so
// any overlay renderer can subscribe to them.
package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/crease/internal/domain/skeleton"
	"github.com/okian/crease/pkg/logger"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	disconnectWait = 250 // ms
)

// ErrNotConnected is returned while the broker connection is down.
var ErrNotConnected = errors.New("mqtt not connected")

// Sink publishes frames to <topic>/<videoId>/<stream>.
type Sink struct {
	client  mqtt.Client
	topic   string
	videoID string
	qos     byte

	connected atomic.Bool
	published atomic.Int64
	errors    atomic.Int64

	logger logger.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithQoS sets the publish QoS (0, 1 or 2).
func WithQoS(qos byte) Option {
	return func(s *Sink) {
		if qos <= 2 {
			s.qos = qos
		}
	}
}

// WithClient replaces the paho client, mostly for tests.
func WithClient(c mqtt.Client) Option {
	return func(s *Sink) { s.client = c }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Sink) { s.logger = l }
}

// New creates a sink for broker (host:port) publishing under topic for videoID.
func New(broker, clientID, topic, videoID string, opts ...Option) *Sink {
	s := &Sink{topic: topic, videoID: videoID}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("mqtt-sink")
	}
	if s.client == nil {
		s.client = mqtt.NewClient(s.clientOptions(broker, clientID))
	}
	return s
}

func (s *Sink) clientOptions(broker, clientID string) *mqtt.ClientOptions {
	ctx := context.Background()
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		s.connected.Store(true)
		s.logger.Info(ctx, "mqtt connection established", logger.String("broker", broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.connected.Store(false)
		s.logger.Warn(ctx, "mqtt connection lost, will auto-reconnect", logger.Error(err))
	}
	return opts
}

// Connect dials the broker.
func (s *Sink) Connect(ctx context.Context) error {
	s.logger.Info(ctx, "connecting to mqtt broker")
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.New("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	s.connected.Store(true)
	return nil
}

// Topic returns the topic frames of stream are published to.
func (s *Sink) Topic(stream string) string {
	return fmt.Sprintf("%s/%s/%s", s.topic, s.videoID, stream)
}

// Publish sends f as JSON.
func (s *Sink) Publish(ctx context.Context, stream string, f skeleton.Frame) error { //nolint:gocritic // hugeParam: frames are values
	if !s.connected.Load() {
		s.errors.Add(1)
		return ErrNotConnected
	}
	payload, err := json.Marshal(f)
	if err != nil {
		s.errors.Add(1)
		return fmt.Errorf("marshal frame: %w", err)
	}

	topic := s.Topic(stream)
	token := s.client.Publish(topic, s.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		s.errors.Add(1)
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		s.errors.Add(1)
		return fmt.Errorf("publish failed: %w", err)
	}
	s.published.Add(1)
	s.logger.Debug(ctx, "frame published",
		logger.String("topic", topic),
		logger.Int("frame", f.FrameIndex),
		logger.Int("bytes", len(payload)))
	return nil
}

// Published returns the number of frames delivered to the broker.
func (s *Sink) Published() int64 { return s.published.Load() }

// Errors returns the number of failed publishes.
func (s *Sink) Errors() int64 { return s.errors.Load() }

// Close disconnects with a short grace period.
func (s *Sink) Close() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(disconnectWait)
	}
	s.connected.Store(false)
	return nil
}
