// Package channel maintains the live analysis feed for one video: at most one
// websocket to <base>/videos/ws/<videoId>, automatic recovery from abnormal
// closures with exponential backoff, and in-order dispatch of typed messages.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/metrics"
)

const (
	defaultMaxAttempts      = 5
	defaultBaseDelay        = time.Second
	defaultHandshakeTimeout = 10 * time.Second
	closeWriteTimeout       = time.Second
)

// Channel owns one live connection. All methods are safe for concurrent use.
type Channel struct {
	base             string
	handlers         Handlers
	dialer           Dialer
	schedule         Scheduler
	maxAttempts      int
	baseDelay        time.Duration
	handshakeTimeout time.Duration
	logger           logger.Logger

	mu       sync.Mutex
	videoID  string
	enabled  bool
	state    State
	attempts int
	lastErr  error
	// gen identifies the live connection attempt. Bumping it detaches every
	// goroutine and timer belonging to an older attempt.
	gen        uint64
	conn       Conn
	timer      Timer
	cancelDial context.CancelFunc
}

// New creates a disconnected channel for the given ws:// or wss:// base.
func New(base string, handlers Handlers, opts ...Option) *Channel {
	c := &Channel{
		base:             strings.TrimRight(base, "/"),
		handlers:         handlers,
		schedule:         afterFunc,
		maxAttempts:      defaultMaxAttempts,
		baseDelay:        defaultBaseDelay,
		handshakeTimeout: defaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = NewWebsocketDialer(c.handshakeTimeout)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("channel")
	}
	return c
}

// URL returns the feed address for videoID.
func (c *Channel) URL(videoID string) string {
	return c.base + "/videos/ws/" + url.PathEscape(videoID)
}

// SetTarget applies a (videoID, enabled) pair. Re-applying the current pair is a
// no-op. Any change first disconnects; an enabled, non-empty target then starts
// a fresh connection.
func (c *Channel) SetTarget(videoID string, enabled bool) {
	c.mu.Lock()
	if videoID == c.videoID && enabled == c.enabled {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.Disconnect()

	c.mu.Lock()
	if videoID != c.videoID {
		c.lastErr = nil
	}
	c.videoID = videoID
	c.enabled = enabled
	var notify *Status
	if enabled && videoID != "" && c.state == StateDisconnected {
		notify = c.connectLocked()
	}
	c.mu.Unlock()
	c.notify(notify)
}

// Disconnect cancels any pending reconnect, detaches the live connection and
// closes it with a normal closure. Calling it again has no further effect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	c.attempts = 0
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	var closing *Status
	if conn != nil {
		closing = c.setStateLocked(StateClosing)
	}
	c.mu.Unlock()
	c.notify(closing)

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		_ = conn.Close()
	}

	c.mu.Lock()
	var done *Status
	if c.gen == gen {
		done = c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()
	c.notify(done)
}

// Reconnect clears the attempt counter and error and forces a fresh connection.
func (c *Channel) Reconnect() error {
	c.mu.Lock()
	if !c.enabled || c.videoID == "" {
		c.mu.Unlock()
		return ErrDisabled
	}
	c.mu.Unlock()

	c.Disconnect()

	c.mu.Lock()
	c.attempts = 0
	c.lastErr = nil
	var notify *Status
	if c.enabled && c.videoID != "" && c.state == StateDisconnected {
		notify = c.connectLocked()
	}
	c.mu.Unlock()
	c.notify(notify)
	return nil
}

// Close tears the channel down for good.
func (c *Channel) Close() {
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
	c.Disconnect()
}

// Status returns a snapshot.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Channel) statusLocked() Status {
	s := Status{VideoID: c.videoID, State: c.state, Attempts: c.attempts}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

func (c *Channel) setStateLocked(s State) *Status {
	if c.state == s {
		return nil
	}
	c.state = s
	metrics.SetChannelState(int(s))
	st := c.statusLocked()
	return &st
}

func (c *Channel) notify(s *Status) {
	if s != nil && c.handlers.OnState != nil {
		c.handlers.OnState(*s)
	}
}

// connectLocked starts a dial for the current target. c.mu must be held.
func (c *Channel) connectLocked() *Status {
	c.gen++
	gen := c.gen
	c.timer = nil
	target := c.URL(c.videoID)

	ctx, cancel := context.WithTimeout(context.Background(), c.handshakeTimeout)
	c.cancelDial = cancel
	st := c.setStateLocked(StateConnecting)

	go c.run(ctx, cancel, gen, target)
	return st
}

func (c *Channel) run(ctx context.Context, cancel context.CancelFunc, gen uint64, target string) {
	metrics.RecordConnectAttempt()
	c.logger.Debug(ctx, "dialing", logger.String("url", target))

	conn, err := c.dialer.DialContext(ctx, target)
	cancel()
	if err != nil {
		c.closed(gen, websocket.CloseAbnormalClosure, fmt.Errorf("dial %s: %w", target, err))
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.cancelDial = nil
	c.attempts = 0
	c.lastErr = nil
	st := c.setStateLocked(StateOpen)
	c.mu.Unlock()
	c.notify(st)
	c.logger.Info(context.Background(), "socket open", logger.String("url", target))

	c.read(gen, conn)
}

func (c *Channel) read(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.closed(gen, closeCode(err), err)
			return
		}
		if !c.current(gen) {
			return
		}
		c.dispatch(data)
	}
}

func (c *Channel) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

// closed handles the end of connection gen. Events from detached attempts are ignored.
func (c *Channel) closed(gen uint64, code int, cause error) {
	ctx := context.Background()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.cancelDial = nil
	st := c.setStateLocked(StateDisconnected)

	videoID := c.videoID

	if code == websocket.CloseNormalClosure {
		c.mu.Unlock()
		c.notify(st)
		c.logger.Info(ctx, "socket closed normally", logger.String("video_id", videoID))
		return
	}

	c.lastErr = cause
	if !c.enabled || c.videoID == "" {
		c.mu.Unlock()
		c.notify(st)
		return
	}

	if c.attempts >= c.maxAttempts {
		c.lastErr = ErrReconnectExhausted
		attempts := c.attempts
		c.mu.Unlock()
		c.notify(st)
		metrics.RecordReconnectExhausted()
		metrics.RecordErrorByComponent("channel", "reconnect_exhausted")
		c.logger.Error(ctx, "giving up on feed",
			logger.String("video_id", videoID),
			logger.Int("attempts", attempts),
			logger.Int("close_code", code),
			logger.Error(cause))
		if c.handlers.OnFailed != nil {
			c.handlers.OnFailed(ErrReconnectExhausted)
		}
		return
	}

	c.attempts++
	delay := c.baseDelay << (c.attempts - 1)
	attempt := c.attempts
	c.timer = c.schedule(delay, func() { c.retry(gen) })
	c.mu.Unlock()
	c.notify(st)

	metrics.RecordReconnectScheduled(strconv.Itoa(attempt))
	c.logger.Warn(ctx, "socket closed abnormally, reconnecting",
		logger.Int("close_code", code),
		logger.Int("attempt", attempt),
		logger.Duration("delay", delay),
		logger.Error(cause))
}

func (c *Channel) retry(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || !c.enabled || c.videoID == "" || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	st := c.connectLocked()
	c.mu.Unlock()
	c.notify(st)
}

func (c *Channel) dispatch(data []byte) {
	ctx := context.Background()

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.RecordDecodeFailure()
		c.logger.Warn(ctx, "dropping malformed message", logger.Int("bytes", len(data)), logger.Error(err))
		return
	}
	metrics.RecordMessage(msg.Type.label())

	h := c.handlers
	switch msg.Type {
	case TypeKeypoints:
		if h.OnKeypoints != nil {
			h.OnKeypoints(msg.Data)
		}
	case TypeBedrockAnalysis:
		if h.OnAnalysis != nil {
			h.OnAnalysis(msg.Data)
		}
	case TypeComplete:
		c.logger.Info(ctx, "analysis complete")
		if h.OnComplete != nil {
			h.OnComplete(msg.Data)
		}
	case TypeError:
		text := msg.Message
		if text == "" {
			text = DefaultErrorMessage
		}
		c.logger.Warn(ctx, "server reported error", logger.String("message", text))
		if h.OnError != nil {
			h.OnError(text)
		}
	default:
		c.logger.Warn(ctx, "dropping unknown message type", logger.String("type", string(msg.Type)))
	}
}
