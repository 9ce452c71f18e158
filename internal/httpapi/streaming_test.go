package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/autoshop-ai/orchestrator/internal/health"
	"github.com/autoshop-ai/orchestrator/internal/server"
	"github.com/autoshop-ai/orchestrator/internal/store"
	"github.com/autoshop-ai/orchestrator/internal/streaming"
)

// safeRecorder guards the response body against concurrent reads while the
// handler goroutine is still streaming.
type safeRecorder struct {
	mu  sync.Mutex
	rec *httptest.ResponseRecorder
}

func newSafeRecorder() *safeRecorder {
	return &safeRecorder{rec: httptest.NewRecorder()}
}

func (s *safeRecorder) Header() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Header()
}

func (s *safeRecorder) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Write(b)
}

func (s *safeRecorder) WriteHeader(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.WriteHeader(code)
}

func (s *safeRecorder) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.Flush()
}

func (s *safeRecorder) Body() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Body.String()
}

// TestRegisterRoutes_WiresFullAPIOnce composes the full route set on one mux
// the way the binary does. RegisterRoutes already covers the WebSocket route,
// so registering everything once must not hit a duplicate pattern and both
// streaming endpoints must dispatch.
func TestRegisterRoutes_WiresFullAPIOnce(t *testing.T) {
	logger := zaptest.NewLogger(t)
	svc := server.NewService(noopStarter{}, store.NewMemoryStore(), logger)
	mux := http.NewServeMux()

	require.NotPanics(t, func() {
		NewResearchHandler(svc, logger).RegisterRoutes(mux)
		NewStreamingHandler(streaming.NewManager(8), logger).RegisterRoutes(mux)
		health.NewHandler(logger).RegisterRoutes(mux)
	})

	for _, path := range []string{"/stream/sse", "/stream/ws"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestSSE_RequiresRequestID(t *testing.T) {
	h := NewStreamingHandler(streaming.NewManager(8), zaptest.NewLogger(t))
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/sse", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSSE_StreamsPublishedEvents(t *testing.T) {
	mgr := streaming.NewManager(8)
	h := NewStreamingHandler(mgr, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream/sse?request_id=req-1", nil).WithContext(ctx)
	rec := newSafeRecorder()

	done := make(chan struct{})
	go func() {
		h.handleSSE(rec, req)
		close(done)
	}()

	// Wait for the subscription before publishing.
	require.Eventually(t, func() bool {
		mgr.Publish("req-1", streaming.Event{Status: streaming.StatusStarting, AgentID: streaming.AgentMain, Message: "Starting deep research"})
		return strings.Contains(rec.Body(), "Starting deep research")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	body := rec.Body()
	assert.Contains(t, body, ": connected to research req-1")
	assert.Contains(t, body, "event: starting")
	assert.Contains(t, body, `"agent_id":"main"`)
}

func TestSSE_ReplaysFromLastEventID(t *testing.T) {
	mgr := streaming.NewManager(8)
	for _, msg := range []string{"one", "two", "three"} {
		mgr.Publish("req-1", streaming.Event{Status: streaming.StatusInProgress, AgentID: streaming.AgentDecomposer, Message: msg})
	}
	h := NewStreamingHandler(mgr, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream/sse?request_id=req-1", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	rec := newSafeRecorder()

	done := make(chan struct{})
	go func() {
		h.handleSSE(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(rec.Body(), "three")
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	body := rec.Body()
	assert.NotContains(t, body, `"message":"one"`)
	assert.Contains(t, body, `"message":"two"`)
	assert.Contains(t, body, `"message":"three"`)
	assert.Contains(t, body, "id: 2")
}

func TestSSE_StatusFilter(t *testing.T) {
	mgr := streaming.NewManager(8)
	mgr.Publish("req-1", streaming.Event{Status: streaming.StatusStarting, AgentID: streaming.AgentMain, Message: "skipped"})
	mgr.Publish("req-1", streaming.Event{Status: streaming.StatusComplete, AgentID: streaming.AgentMain, Message: "kept"})
	h := NewStreamingHandler(mgr, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet,
		"/stream/sse?request_id=req-1&statuses=complete,error&last_event_id=0", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "0")
	rec := newSafeRecorder()

	done := make(chan struct{})
	go func() {
		h.handleSSE(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mgr.Publish("req-1", streaming.Event{Status: streaming.StatusComplete, AgentID: streaming.AgentMain, Message: "kept-live"})
		return strings.Contains(rec.Body(), "kept-live")
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	body := rec.Body()
	assert.NotContains(t, body, "skipped")
}

func TestStatusFilterParsing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stream/sse?statuses=complete,%20error,,", nil)
	f := statusFilter(req)
	assert.Len(t, f, 2)

	assert.False(t, filtered(f, streaming.Event{Status: streaming.StatusComplete}))
	assert.False(t, filtered(f, streaming.Event{Status: streaming.StatusError}))
	assert.True(t, filtered(f, streaming.Event{Status: streaming.StatusStarting}))

	// No filter means everything passes.
	assert.False(t, filtered(nil, streaming.Event{Status: streaming.StatusStarting}))
}

func TestWriteSSE(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSE(rec, streaming.Event{Seq: 7, Status: streaming.StatusComplete, AgentID: streaming.AgentSynthesis, SessionID: "req-1"})

	body := rec.Body.String()
	assert.Contains(t, body, "id: 7\n")
	assert.Contains(t, body, "event: complete\n")
	assert.Contains(t, body, "data: {")
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}
