package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/1etu/easyupoo/internal/prefs"
	"github.com/1etu/easyupoo/pkg/logging/logging"
)

// EventsHandler streams settings-change events to listening contexts over
// server-sent events, so an open product page learns about preference
// updates and cache toggles without polling.
type EventsHandler struct {
	Prefs *prefs.Service

	// KeepAlive is the interval between comment heartbeats that hold idle
	// connections open through proxies. Zero means the 30s default.
	KeepAlive time.Duration
}

func NewEventsHandler(s *prefs.Service) *EventsHandler {
	return &EventsHandler{Prefs: s}
}

// Stream handles GET /v1/events. The connection stays open until the client
// disconnects; delivery is best-effort, matching the broadcast contract.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported",
			"response writer does not support streaming")
		return
	}

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}

	events, cancel := h.Prefs.Subscribe(8)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger.Debug("event stream opened")

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("event stream closed")
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error("event marshal failed", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
