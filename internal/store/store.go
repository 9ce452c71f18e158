package store

import (
	"context"
	"errors"
	"time"

	"github.com/autoshop-ai/orchestrator/internal/models"
)

// ErrNotFound is returned when a research request id is unknown.
var ErrNotFound = errors.New("research request not found")

// Store is the research request repository. All writes except Create are
// best-effort from the workflow's point of view: callers log failures and
// continue. Complete and Fail are compare-and-set terminal transitions; once a
// request is terminal, neither overwrites the outcome.
type Store interface {
	Create(ctx context.Context, req *models.ResearchRequest) error
	GetByID(ctx context.Context, id string) (*models.ResearchRequest, error)
	// List returns requests, newest first. An empty status means all.
	List(ctx context.Context, status models.RequestStatus) ([]*models.ResearchRequest, error)

	MarkStarted(ctx context.Context, id string, at time.Time) error
	SetSubQuestions(ctx context.Context, id string, subs []models.SubQuestion) error
	SaveSubQuestionFindings(ctx context.Context, id, subQuestionID, findings string) error
	SaveCategoryFindings(ctx context.Context, id string, category models.Category, findings string) error

	Complete(ctx context.Context, id, finalReport string, at time.Time) error
	Fail(ctx context.Context, id, errMsg string, at time.Time) error
}
