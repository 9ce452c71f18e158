package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/autoshop-ai/orchestrator/internal/models"
)

// Event statuses mirror the workflow stage lifecycle.
const (
	StatusStarting   = "starting"
	StatusInProgress = "in_progress"
	StatusComplete   = "complete"
	StatusError      = "error"
)

// Agent identifiers used in progress events.
const (
	AgentDecomposer = "decomposer"
	AgentSynthesis  = "synthesis"
	AgentMain       = "main"
)

// SpecialistAgentID returns the progress agent id for a category specialist.
func SpecialistAgentID(c models.Category) string {
	return string(c) + "_specialist"
}

// Progress carries step counters for a stage.
type Progress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Event is a best-effort progress notification for one workflow stage. Events
// are ephemeral; observers (UI, logs) consume them but correctness never
// depends on delivery.
type Event struct {
	Status    string    `json:"status"`
	AgentID   string    `json:"agent_id"`
	Message   string    `json:"message,omitempty"`
	Progress  *Progress `json:"progress,omitempty"`
	// SubQuestions carries the decomposition output so stream observers can
	// render the research plan without polling the request record.
	SubQuestions []string  `json:"sub_questions,omitempty"`
	SessionID    string    `json:"session_id"`
	Timestamp    time.Time `json:"timestamp"`
	Seq          uint64    `json:"seq"`
}

// Marshal returns JSON for event payloads in SSE frames or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Publisher is the optional progress sink injected into the workflow stages.
type Publisher interface {
	Publish(requestID string, evt Event)
}

// Manager provides in-memory pub/sub for progress events, keyed by research
// request id, with a per-request ring buffer for replay and Last-Event-ID
// support. An optional Redis Streams mirror can be attached.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
	mirror      *redisMirror
}

const defaultCapacity = 256

// NewManager creates a manager with the given ring capacity per request.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for a request id; caller must drain and
// call Unsubscribe.
func (m *Manager) Subscribe(requestID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[requestID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[requestID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(requestID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[requestID]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(m.subscribers, requestID)
		}
	}
}

// Publish sends an event to all subscribers of requestID (non-blocking) and
// mirrors it to Redis when a mirror is attached. Slow subscribers drop events.
// Channel sends happen under the lock so Unsubscribe cannot close a channel
// mid-delivery; the sends never block, so the lock is held only briefly.
func (m *Manager) Publish(requestID string, evt Event) {
	if evt.SessionID == "" {
		evt.SessionID = requestID
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	m.mu.Lock()
	rg := m.history[requestID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[requestID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	rg.push(evt)
	for ch := range m.subscribers[requestID] {
		select {
		case ch <- evt:
		default:
			// drop for slow subscriber
		}
	}
	mirror := m.mirror
	m.mu.Unlock()

	if mirror != nil {
		mirror.publish(requestID, evt)
	}
}

// ReplaySince returns events with Seq > since, best-effort within ring capacity.
func (m *Manager) ReplaySince(requestID string, since uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[requestID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// ring is a fixed-capacity ring buffer of events.
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
