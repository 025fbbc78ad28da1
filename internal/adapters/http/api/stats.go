package api

import (
	"net/http"
)

// StatsProvider reports a JSON-encodable snapshot, or nil when there is nothing to report.
type StatsProvider interface {
	Stats() any
}

// StatsProviderFunc adapts a function to StatsProvider.
type StatsProviderFunc func() any

// Stats calls f.
func (f StatsProviderFunc) Stats() any { return f() }

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	stats := h.statsProvider.Stats()
	if stats == nil {
		writeError(w, http.StatusServiceUnavailable, "no_session", ErrNoStats)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
