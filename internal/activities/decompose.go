package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/autoshop-ai/orchestrator/internal/metrics"
	"github.com/autoshop-ai/orchestrator/internal/models"
)

// DecomposeQuestion asks the reasoning service to split the original question
// into categorized sub-questions. Any reasoning failure or undecodable output
// is fatal to the whole request; the caller never proceeds without a valid
// decomposition.
func (a *Activities) DecomposeQuestion(ctx context.Context, in DecompositionInput) (DecompositionResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Decomposing research question",
		"request_id", in.RequestID,
		"question", truncate(in.Question, 120),
	)

	start := time.Now()
	raw, err := a.reasoning.Invoke(ctx, a.prompts.Decomposition(), map[string]string{
		"question": in.Question,
	})
	metrics.ReasoningCalls.WithLabelValues("decomposer").Inc()
	metrics.ReasoningLatency.WithLabelValues("decomposer").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DecompositionErrors.Inc()
		return DecompositionResult{}, fmt.Errorf("decomposition failed: %w", err)
	}

	subs, err := parseSubQuestions(raw)
	if err != nil {
		metrics.DecompositionErrors.Inc()
		return DecompositionResult{}, fmt.Errorf("decomposition failed: %w", err)
	}

	logger.Info("Decomposition produced sub-questions",
		"request_id", in.RequestID,
		"count", len(subs),
	)
	return DecompositionResult{SubQuestions: subs}, nil
}

type rawSubQuestion struct {
	Question string `json:"question"`
	Category string `json:"category"`
}

// parseSubQuestions decodes the generated JSON array. The first attempt is a
// strict decode of the raw text; if that fails, one repair pass strips code
// fences and extracts the outermost JSON array before a final decode.
func parseSubQuestions(raw string) ([]models.SubQuestion, error) {
	items, err := decodeSubQuestionArray(raw)
	if err != nil {
		repaired := extractJSONArray(stripCodeFences(raw))
		if repaired == "" {
			return nil, fmt.Errorf("no JSON array found in response: %w", err)
		}
		items, err = decodeSubQuestionArray(repaired)
		if err != nil {
			return nil, fmt.Errorf("undecodable decomposition output: %w", err)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("decomposition returned no sub-questions")
	}

	subs := make([]models.SubQuestion, 0, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.Question) == "" {
			return nil, fmt.Errorf("sub-question %d has empty question text", i+1)
		}
		cat := models.Category(item.Category)
		if !cat.Valid() {
			return nil, fmt.Errorf("sub-question %d has unknown category %q", i+1, item.Category)
		}
		subs = append(subs, models.SubQuestion{
			ID:       uuid.New().String(),
			Question: strings.TrimSpace(item.Question),
			Category: cat,
		})
	}
	return subs, nil
}

func decodeSubQuestionArray(s string) ([]rawSubQuestion, error) {
	var items []rawSubQuestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// stripCodeFences removes markdown code fences the reasoning service sometimes
// wraps JSON in.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// extractJSONArray returns the outermost [...] slice of s, or "".
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
