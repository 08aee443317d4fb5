package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/cardigan/pkg/models"
)

const eventBacklogLimit = 100

// eventsStreamHandler handles GET /api/v1/events/stream: a Server-Sent
// Events feed of the live job event bus (spec §4.8 "SSE stream"), grounded
// on itsneelabh-gomind's sse_handler.go flusher/event-framing pattern,
// adapted from raw net/http to echo v5's c.Response(). The stream first
// replays a recent backlog so a client connecting mid-run still sees
// context, then switches to live broadcast events.
func (s *Server) eventsStreamHandler(c *echo.Context) error {
	resp := c.Response()
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)

	limit := eventBacklogLimit
	if v := c.QueryParam("backlog"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			limit = n
		}
	}
	if limit > 0 {
		backlog, err := s.store.ListRecentEvents(c.Request().Context(), limit)
		if err == nil {
			for _, evt := range backlog {
				writeSSEEvent(resp, "backlog", sessionEventPayload(evt))
			}
			resp.Flush()
		}
	}

	ch, unsubscribe := s.broadcaster.Subscribe()
	defer unsubscribe()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			writeSSEEvent(resp, string(evt.EventType), evt)
			resp.Flush()
		}
	}
}

func sessionEventPayload(evt models.SessionEvent) models.EventWithData {
	data := map[string]any{}
	if evt.DataJSON != "" {
		_ = json.Unmarshal([]byte(evt.DataJSON), &data)
	}
	return models.EventWithData{SessionEvent: evt, Data: data}
}

func writeSSEEvent(w http.ResponseWriter, event string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, body)
}
