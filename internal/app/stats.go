package service

import (
	"github.com/okian/crease/internal/adapters/mq/queue"
	"github.com/okian/crease/internal/adapters/mq/worker"
)

// ChannelStats is the JSON view of the telemetry channel.
type ChannelStats struct {
	State     string `json:"state"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"lastError,omitempty"`
}

// Stats is a point-in-time snapshot of a session.
type Stats struct {
	SessionID    string                   `json:"sessionId"`
	VideoID      string                   `json:"videoId"`
	Started      bool                     `json:"started"`
	Closed       bool                     `json:"closed"`
	Complete     bool                     `json:"complete"`
	Channel      ChannelStats             `json:"channel"`
	QueueDepth   int                      `json:"queueDepth"`
	LiveFrames   int64                    `json:"liveFrames"`
	LiveRejected int64                    `json:"liveRejected"`
	DecodeErrors int64                    `json:"decodeErrors"`
	Progress     map[queue.Stream]int `json:"progress"`
	Render       worker.Stats             `json:"render"`
}

// Stats returns a snapshot safe to encode while the session runs.
func (s *Session) Stats() Stats {
	st := s.channel.Status()
	ch := ChannelStats{State: st.State.String(), Attempts: st.Attempts, LastError: st.LastError}

	s.mu.Lock()
	progress := make(map[queue.Stream]int, len(s.progress))
	for k, v := range s.progress {
		progress[k] = v
	}
	out := Stats{
		SessionID: s.id,
		VideoID:   s.videoID,
		Started:   s.started,
		Closed:    s.closed,
		Complete:  s.complete,
		Progress:  progress,
	}
	s.mu.Unlock()

	out.Channel = ch
	out.QueueDepth = s.queue.Len()
	out.LiveFrames = s.liveFrames.Load()
	out.LiveRejected = s.liveRejected.Load()
	out.DecodeErrors = s.decodeErrors.Load()
	out.Render = s.worker.Stats()
	return out
}
