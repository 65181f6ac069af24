package http

import (
	"net/http"
	"strconv"
	"time"

	"devicelab/internal/api/envelope"
)

const keepAliveInterval = 25 * time.Second

// StreamHandler serves board events as server-sent events.
type StreamHandler struct {
	broker *Broker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *Broker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /BenchTest/Stream?boardId=.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		envelope.WriteError(w, http.StatusServiceUnavailable, envelope.CodeInternalError, "stream not ready")
		return
	}
	boardID, ok := optionalBoardID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		envelope.WriteError(w, http.StatusInternalServerError, envelope.CodeInternalError, "stream unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe(boardID)
	defer h.broker.Unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	notify := r.Context().Done()
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: board\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

// optionalBoardID parses ?boardId=, defaulting to 0 for all boards.
func optionalBoardID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("boardId")
	if raw == "" {
		return 0, true
	}
	boardID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || boardID < 0 {
		envelope.WriteCode(w, envelope.CodeInvalidRequest, "boardId must be a non-negative integer")
		return 0, false
	}
	return boardID, true
}
