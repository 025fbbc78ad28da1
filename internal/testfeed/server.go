// Package testfeed is a local stand-in for the analysis server's websocket
// feed. It streams synthetic keypoints so the client can be run end to end.
package testfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/crease/pkg/logger"
)

const writeTimeout = 5 * time.Second

type message struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type analysis struct {
	RunID   string  `json:"runId"`
	VideoID string  `json:"videoId"`
	Frames  int     `json:"frames"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
}

type completion struct {
	VideoID string `json:"videoId"`
	Frames  int    `json:"frames"`
}

// Server serves /videos/ws/{id}.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	logger   logger.Logger

	mu          sync.Mutex
	connections map[string]int
}

// NewServer creates a feed server.
func NewServer(cfg Config, l logger.Logger) *Server {
	if l == nil {
		l = logger.Get().Named("testfeed")
	}
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:      l,
		connections: make(map[string]int),
	}
}

// Register attaches the feed route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /videos/ws/{id}", s.handleFeed)
}

// Connections reports how many sockets were opened for videoID.
func (s *Server) Connections(videoID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections[videoID]
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("id")
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "upgrade failed", logger.Error(err))
		return
	}
	defer func() { _ = ws.Close() }()

	s.mu.Lock()
	s.connections[videoID]++
	attempt := s.connections[videoID]
	s.mu.Unlock()

	ctx := r.Context()
	s.logger.Info(ctx, "feed connected",
		logger.String("video_id", videoID),
		logger.Int("attempt", attempt))

	// drain client frames so close handshakes are answered
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.stream(ctx, ws, videoID, attempt); err != nil {
		if errors.Is(err, errDropped) {
			s.logger.Info(ctx, "dropping feed abnormally",
				logger.String("video_id", videoID),
				logger.Int("attempt", attempt))
			return
		}
		s.logger.Warn(ctx, "feed ended early", logger.String("video_id", videoID), logger.Error(err))
		return
	}

	deadline := time.Now().Add(writeTimeout)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "analysis complete"), deadline)
	// give the client a moment to answer the close
	time.Sleep(50 * time.Millisecond)
}

var errDropped = errors.New("connection dropped on purpose")

func (s *Server) stream(ctx context.Context, ws *websocket.Conn, videoID string, attempt int) error {
	var tick <-chan time.Time
	if iv := s.cfg.interval(); iv > 0 {
		ticker := time.NewTicker(iv)
		defer ticker.Stop()
		tick = ticker.C
	}

	drop := s.cfg.DropAt > 0 && attempt <= s.cfg.Drops
	for i := 0; i < s.cfg.Frames; i++ {
		if drop && i == s.cfg.DropAt {
			// close the TCP connection without a close frame: the client sees 1006
			_ = ws.UnderlyingConn().Close()
			return errDropped
		}
		if err := write(ws, message{Type: "keypoints", Data: s.cfg.Frame(i)}); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
	}

	if s.cfg.Analysis {
		a := analysis{
			RunID:   uuid.NewString(),
			VideoID: videoID,
			Frames:  s.cfg.Frames,
			Summary: "synthetic feed: steady stance, symmetric arm swing",
			Score:   0.5 + 0.5*getRandomFloat(),
		}
		if err := write(ws, message{Type: "bedrock_analysis", Data: a}); err != nil {
			return fmt.Errorf("analysis: %w", err)
		}
	}
	return write(ws, message{Type: "complete", Data: completion{VideoID: videoID, Frames: s.cfg.Frames}})
}

func write(ws *websocket.Conn, m message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(websocket.TextMessage, payload)
}
