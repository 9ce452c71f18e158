package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoshop-ai/orchestrator/internal/metrics"
	"github.com/autoshop-ai/orchestrator/internal/models"
	"github.com/autoshop-ai/orchestrator/internal/store"
	"github.com/autoshop-ai/orchestrator/internal/workflows"
)

var (
	// ErrEmptyQuestion rejects submissions without a question.
	ErrEmptyQuestion = errors.New("question must not be empty")
	// ErrInvalidStatus rejects unknown status filters.
	ErrInvalidStatus = errors.New("invalid status filter")
)

// WorkflowStarter launches the research workflow for a submitted request.
// The production implementation starts a Temporal workflow; tests stub it.
type WorkflowStarter interface {
	StartResearch(ctx context.Context, workflowID string, input workflows.ResearchInput) error
}

// Service is the caller-facing orchestration surface: submit, poll, list.
type Service struct {
	starter WorkflowStarter
	store   store.Store
	logger  *zap.Logger
}

// NewService creates the orchestrator service.
func NewService(starter WorkflowStarter, st store.Store, logger *zap.Logger) *Service {
	return &Service{starter: starter, store: st, logger: logger}
}

// SubmitResearch creates a pending request record and starts asynchronous
// processing, returning the request id immediately. The initial persist is
// fire-and-forget: a store failure is logged but does not block processing.
func (s *Service) SubmitResearch(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	id := uuid.New().String()
	rec := &models.ResearchRequest{
		ID:               id,
		OriginalQuestion: question,
		Status:           models.StatusPending,
		CreatedAt:        time.Now(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		metrics.StoreErrors.WithLabelValues("create").Inc()
		s.logger.Error("Failed to persist pending research request",
			zap.String("request_id", id),
			zap.Error(err),
		)
	}

	input := workflows.ResearchInput{RequestID: id, Question: question}
	if err := s.starter.StartResearch(ctx, "research-"+id, input); err != nil {
		return "", fmt.Errorf("start research workflow: %w", err)
	}

	metrics.ResearchSubmitted.Inc()
	s.logger.Info("Research request submitted",
		zap.String("request_id", id),
		zap.String("question", question),
	)
	return id, nil
}

// GetResearch returns one research request by id.
func (s *Service) GetResearch(ctx context.Context, id string) (*models.ResearchRequest, error) {
	return s.store.GetByID(ctx, id)
}

// ListResearch returns requests, optionally filtered by status.
func (s *Service) ListResearch(ctx context.Context, statusFilter string) ([]*models.ResearchRequest, error) {
	status := models.RequestStatus(statusFilter)
	if statusFilter != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, statusFilter)
	}
	return s.store.List(ctx, status)
}
