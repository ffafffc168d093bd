package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// EventHistory returns recent payloads of a channel, newest first.
type EventHistory interface {
	History(ctx context.Context, channel string, count int64) ([][]byte, error)
}

// EventHandler serves the event history endpoint.
type EventHandler struct {
	history  EventHistory
	channels map[string]bool
	logger   *slog.Logger
}

// NewEventHandler creates an EventHandler exposing the given channels.
func NewEventHandler(history EventHistory, channels []string, logger *slog.Logger) *EventHandler {
	allowed := make(map[string]bool, len(channels))
	for _, c := range channels {
		allowed[c] = true
	}
	return &EventHandler{history: history, channels: allowed, logger: logger}
}

// ListEvents returns recent events of one channel.
// GET /api/events?channel=analysis:completed&limit=20
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channel := q.Get("channel")
	if !h.channels[channel] {
		writeError(w, http.StatusBadRequest, "unknown channel "+strconv.Quote(channel))
		return
	}

	limit := int64(20)
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = min(n, 200)
		}
	}

	payloads, err := h.history.History(r.Context(), channel, limit)
	if err != nil {
		writeDomainError(w, r, h.logger, "event history failed", err)
		return
	}
	events := make([]json.RawMessage, 0, len(payloads))
	for _, p := range payloads {
		if json.Valid(p) {
			events = append(events, json.RawMessage(p))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channel": channel, "events": events})
}
