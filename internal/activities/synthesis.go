package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/autoshop-ai/orchestrator/internal/metrics"
	"github.com/autoshop-ai/orchestrator/internal/models"
)

// SynthesizeReport merges all category findings and the original question into
// one integrated report. It runs exactly once per request, after every
// specialist has returned. A category without findings gets a fixed
// placeholder so the template always binds all four variables.
func (a *Activities) SynthesizeReport(ctx context.Context, in SynthesisInput) (SynthesisResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Synthesizing final report",
		"request_id", in.RequestID,
		"categories", len(in.CategoryFindings),
	)

	vars := map[string]string{"question": in.Question}
	for _, c := range models.Categories() {
		findings := in.CategoryFindings[c]
		if findings == "" {
			findings = noFindingsPlaceholder
		}
		vars[string(c)] = findings
	}

	start := time.Now()
	report, err := a.reasoning.Invoke(ctx, a.prompts.Synthesis(), vars)
	metrics.ReasoningCalls.WithLabelValues("synthesis").Inc()
	metrics.ReasoningLatency.WithLabelValues("synthesis").Observe(time.Since(start).Seconds())
	if err != nil {
		return SynthesisResult{}, fmt.Errorf("synthesis failed: %w", err)
	}
	return SynthesisResult{Report: report}, nil
}
