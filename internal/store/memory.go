package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/autoshop-ai/orchestrator/internal/models"
)

// MemoryStore is an in-process Store used in dev mode and tests. It applies
// the same monotonic-transition rules as the Postgres implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*models.ResearchRequest
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*models.ResearchRequest)}
}

func (s *MemoryStore) Create(_ context.Context, req *models.ResearchRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneRequest(req)
	s.requests[req.ID] = cp
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*models.ResearchRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRequest(req), nil
}

func (s *MemoryStore) List(_ context.Context, status models.RequestStatus) ([]*models.ResearchRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ResearchRequest, 0, len(s.requests))
	for _, req := range s.requests {
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) MarkStarted(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	if req.Status != models.StatusPending {
		return nil
	}
	req.Status = models.StatusInProgress
	t := at
	req.StartedAt = &t
	return nil
}

func (s *MemoryStore) SetSubQuestions(_ context.Context, id string, subs []models.SubQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	if len(req.SubQuestions) > 0 {
		return nil
	}
	req.SubQuestions = append([]models.SubQuestion(nil), subs...)
	return nil
}

func (s *MemoryStore) SaveSubQuestionFindings(_ context.Context, id, subQuestionID, findings string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	for i := range req.SubQuestions {
		if req.SubQuestions[i].ID == subQuestionID {
			req.SubQuestions[i].Completed = true
			req.SubQuestions[i].Findings = findings
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) SaveCategoryFindings(_ context.Context, id string, category models.Category, findings string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	if req.CategoryFindings == nil {
		req.CategoryFindings = make(map[models.Category]string, 4)
	}
	req.CategoryFindings[category] = findings
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, id, finalReport string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	if req.Status.Terminal() {
		return nil
	}
	req.Status = models.StatusCompleted
	req.FinalReport = finalReport
	t := at
	req.CompletedAt = &t
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, id, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	if req.Status.Terminal() {
		return nil
	}
	req.Status = models.StatusFailed
	req.Error = errMsg
	t := at
	req.CompletedAt = &t
	return nil
}

func cloneRequest(req *models.ResearchRequest) *models.ResearchRequest {
	cp := *req
	cp.SubQuestions = append([]models.SubQuestion(nil), req.SubQuestions...)
	if req.CategoryFindings != nil {
		cp.CategoryFindings = make(map[models.Category]string, len(req.CategoryFindings))
		for k, v := range req.CategoryFindings {
			cp.CategoryFindings[k] = v
		}
	}
	if req.StartedAt != nil {
		t := *req.StartedAt
		cp.StartedAt = &t
	}
	if req.CompletedAt != nil {
		t := *req.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
