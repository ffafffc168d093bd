package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports how the server is configured.
type StatusHandler struct {
	Mode      string
	Source    string
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, source string) *StatusHandler {
	return &StatusHandler{Mode: mode, Source: source, StartedAt: time.Now().UTC()}
}

// GetStatus responds with mode, source kind and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"source":         h.Source,
		"started_at":     h.StartedAt.Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
