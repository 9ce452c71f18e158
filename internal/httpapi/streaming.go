package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/autoshop-ai/orchestrator/internal/streaming"
)

// StreamingHandler serves SSE and WebSocket endpoints for progress events.
type StreamingHandler struct {
	mgr    *streaming.Manager
	logger *zap.Logger
}

// NewStreamingHandler creates the handler.
func NewStreamingHandler(mgr *streaming.Manager, logger *zap.Logger) *StreamingHandler {
	return &StreamingHandler{mgr: mgr, logger: logger}
}

// RegisterRoutes registers streaming routes on the provided mux.
func (h *StreamingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/stream/sse", h.handleSSE)
	h.RegisterWebSocket(mux)
}

// statusFilter parses the optional comma-separated ?statuses= parameter.
func statusFilter(r *http.Request) map[string]struct{} {
	filter := map[string]struct{}{}
	if s := r.URL.Query().Get("statuses"); s != "" {
		for _, t := range strings.Split(s, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter[t] = struct{}{}
			}
		}
	}
	return filter
}

func filtered(filter map[string]struct{}, evt streaming.Event) bool {
	if len(filter) == 0 {
		return false
	}
	_, ok := filter[evt.Status]
	return !ok
}

// handleSSE streams progress events for a request via Server-Sent Events.
// GET /stream/sse?request_id=<id>
func (h *StreamingHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		http.Error(w, `{"error":"request_id required"}`, http.StatusBadRequest)
		return
	}
	filter := statusFilter(r)

	// Last-Event-ID header or query param to replay from.
	var lastID uint64
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			lastID = n
		}
	}
	if q := r.URL.Query().Get("last_event_id"); q != "" && lastID == 0 {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			lastID = n
		}
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := h.mgr.Subscribe(requestID, 256)
	defer h.mgr.Unsubscribe(requestID, ch)

	fmt.Fprintf(w, ": connected to research %s\n\n", requestID)
	flusher.Flush()

	// Replay backlog since lastID (best-effort within ring capacity).
	if lastID > 0 {
		for _, ev := range h.mgr.ReplaySince(requestID, lastID) {
			if filtered(filter, ev) {
				continue
			}
			writeSSE(w, ev)
		}
		flusher.Flush()
	}

	hb := time.NewTicker(15 * time.Second)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("request_id", requestID))
			return
		case evt := <-ch:
			if filtered(filter, evt) {
				continue
			}
			writeSSE(w, evt)
			flusher.Flush()
		case <-hb.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev streaming.Event) {
	if ev.Seq > 0 {
		fmt.Fprintf(w, "id: %d\n", ev.Seq)
	}
	if ev.Status != "" {
		fmt.Fprintf(w, "event: %s\n", ev.Status)
	}
	fmt.Fprintf(w, "data: %s\n\n", ev.Marshal())
}
