package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/autoshop-ai/orchestrator/internal/metrics"
	"github.com/autoshop-ai/orchestrator/internal/streaming"
)

// ResearchSubQuestion investigates one sub-question with the owning category's
// instruction template. One reasoning call per invocation; failures propagate
// to the workflow, which fails the entire request.
func (a *Activities) ResearchSubQuestion(ctx context.Context, in SpecialistInput) (SpecialistResult, error) {
	logger := activity.GetLogger(ctx)
	agentID := streaming.SpecialistAgentID(in.Category)
	logger.Info("Researching sub-question",
		"request_id", in.RequestID,
		"category", string(in.Category),
		"sub_question_id", in.SubQuestion.ID,
	)

	template := a.prompts.Category(in.Category)
	if template == "" {
		return SpecialistResult{}, fmt.Errorf("no prompt template for category %q", in.Category)
	}

	start := time.Now()
	text, err := a.reasoning.Invoke(ctx, template, map[string]string{
		"original_question": in.OriginalQuestion,
		"question":          in.SubQuestion.Question,
	})
	metrics.ReasoningCalls.WithLabelValues(agentID).Inc()
	metrics.ReasoningLatency.WithLabelValues(agentID).Observe(time.Since(start).Seconds())
	if err != nil {
		return SpecialistResult{}, fmt.Errorf("%s research failed for sub-question %q: %w",
			in.Category, in.SubQuestion.ID, err)
	}

	metrics.SubQuestionsResearched.WithLabelValues(string(in.Category)).Inc()
	return SpecialistResult{Findings: text}, nil
}
