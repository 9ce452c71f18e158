package activities

import (
	"go.uber.org/zap"

	"github.com/autoshop-ai/orchestrator/internal/reasoning"
	"github.com/autoshop-ai/orchestrator/internal/store"
	"github.com/autoshop-ai/orchestrator/internal/streaming"
)

// Activities holds the injected dependencies shared by all workflow activities.
// The progress publisher is optional; a nil publisher disables event emission
// without affecting workflow outcome.
type Activities struct {
	reasoning reasoning.Client
	store     store.Store
	events    streaming.Publisher
	prompts   *Prompts
	logger    *zap.Logger
}

// NewActivities creates an activities instance with dependencies.
func NewActivities(client reasoning.Client, st store.Store, events streaming.Publisher, prompts *Prompts, logger *zap.Logger) *Activities {
	if prompts == nil {
		prompts = NewPrompts()
	}
	return &Activities{
		reasoning: client,
		store:     st,
		events:    events,
		prompts:   prompts,
		logger:    logger,
	}
}
