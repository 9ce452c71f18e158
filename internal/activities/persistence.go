package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/autoshop-ai/orchestrator/internal/metrics"
	"github.com/autoshop-ai/orchestrator/internal/models"
)

// Persistence activities write request state transitions to the injected
// store. The workflow invokes them best-effort: store failures are surfaced as
// errors here so they land in logs and metrics, but the workflow ignores the
// error and continues.

// MarkRequestStarted records the pending -> in_progress transition.
func (a *Activities) MarkRequestStarted(ctx context.Context, in MarkStartedInput) error {
	if err := a.store.MarkStarted(ctx, in.RequestID, in.At); err != nil {
		metrics.StoreErrors.WithLabelValues("mark_started").Inc()
		a.logger.Error("Failed to persist request start",
			zap.String("request_id", in.RequestID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// SaveSubQuestions records the decomposition output, once per request.
func (a *Activities) SaveSubQuestions(ctx context.Context, in SaveSubQuestionsInput) error {
	if err := a.store.SetSubQuestions(ctx, in.RequestID, in.SubQuestions); err != nil {
		metrics.StoreErrors.WithLabelValues("set_sub_questions").Inc()
		a.logger.Error("Failed to persist sub-questions",
			zap.String("request_id", in.RequestID),
			zap.Int("count", len(in.SubQuestions)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// SaveSubQuestionFindings marks one sub-question complete with its findings.
func (a *Activities) SaveSubQuestionFindings(ctx context.Context, in SaveSubQuestionFindingsInput) error {
	if err := a.store.SaveSubQuestionFindings(ctx, in.RequestID, in.SubQuestionID, in.Findings); err != nil {
		metrics.StoreErrors.WithLabelValues("save_sub_question").Inc()
		a.logger.Error("Failed to persist sub-question findings",
			zap.String("request_id", in.RequestID),
			zap.String("sub_question_id", in.SubQuestionID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// SaveCategoryFindings records a category's aggregated findings.
func (a *Activities) SaveCategoryFindings(ctx context.Context, in SaveCategoryFindingsInput) error {
	if err := a.store.SaveCategoryFindings(ctx, in.RequestID, in.Category, in.Findings); err != nil {
		metrics.StoreErrors.WithLabelValues("save_category_findings").Inc()
		a.logger.Error("Failed to persist category findings",
			zap.String("request_id", in.RequestID),
			zap.String("category", string(in.Category)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// CompleteRequest writes the successful terminal state (compare-and-set).
func (a *Activities) CompleteRequest(ctx context.Context, in CompleteRequestInput) error {
	if err := a.store.Complete(ctx, in.RequestID, in.FinalReport, in.At); err != nil {
		metrics.StoreErrors.WithLabelValues("complete").Inc()
		a.logger.Error("Failed to persist completed request",
			zap.String("request_id", in.RequestID),
			zap.Error(err),
		)
		return err
	}
	metrics.ResearchCompleted.WithLabelValues(string(models.StatusCompleted)).Inc()
	return nil
}

// FailRequest writes the failed terminal state (compare-and-set).
func (a *Activities) FailRequest(ctx context.Context, in FailRequestInput) error {
	if err := a.store.Fail(ctx, in.RequestID, in.Error, in.At); err != nil {
		metrics.StoreErrors.WithLabelValues("fail").Inc()
		a.logger.Error("Failed to persist failed request",
			zap.String("request_id", in.RequestID),
			zap.Error(err),
		)
		return err
	}
	metrics.ResearchCompleted.WithLabelValues(string(models.StatusFailed)).Inc()
	return nil
}
