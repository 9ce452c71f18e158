package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/autoshop-ai/orchestrator/internal/activities"
	"github.com/autoshop-ai/orchestrator/internal/models"
	"github.com/autoshop-ai/orchestrator/internal/streaming"
)

// ResearchInput starts one research run.
type ResearchInput struct {
	RequestID string `json:"request_id"`
	Question  string `json:"question"`
}

// ResearchResult is the workflow output on success.
type ResearchResult struct {
	RequestID        string `json:"request_id"`
	FinalReport      string `json:"final_report"`
	SubQuestionCount int    `json:"sub_question_count"`
}

// specialistOutcome travels from each category branch to the fan-in join.
type specialistOutcome struct {
	Category models.Category
	Findings string
	Err      error
}

// ResearchWorkflow owns the research task graph: decompose the question, fan
// out one specialist branch per category, join all four at a barrier, then
// synthesize. Any decomposition, specialist, or synthesis error fails the
// entire request; partial findings are discarded. Persistence and progress
// events are best-effort side effects and never change the outcome.
func ResearchWorkflow(ctx workflow.Context, input ResearchInput) (ResearchResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting research workflow",
		"request_id", input.RequestID,
		"question", input.Question,
	)

	// Reasoning activities run with a single attempt: the core performs no
	// retries on the reasoning service.
	reasoningCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	// Persistence and progress emission share short best-effort options.
	sideCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	emit := func(c workflow.Context, status, agentID, message string, current, total int) {
		_ = workflow.ExecuteActivity(c, "EmitProgress", activities.EmitProgressInput{
			RequestID: input.RequestID,
			Status:    status,
			AgentID:   agentID,
			Message:   message,
			Current:   current,
			Total:     total,
		}).Get(c, nil)
	}

	emit(sideCtx, streaming.StatusStarting, streaming.AgentMain, "Starting deep research", 0, 0)
	_ = workflow.ExecuteActivity(sideCtx, "MarkRequestStarted", activities.MarkStartedInput{
		RequestID: input.RequestID,
		At:        workflow.Now(ctx),
	}).Get(ctx, nil)

	// Phase 1: decomposition gates everything downstream.
	emit(sideCtx, streaming.StatusStarting, streaming.AgentDecomposer,
		"Breaking the question into research sub-questions...", 0, 0)
	emit(sideCtx, streaming.StatusInProgress, streaming.AgentDecomposer, "Analyzing question", 0, 1)

	var decomposition activities.DecompositionResult
	if err := workflow.ExecuteActivity(reasoningCtx, "DecomposeQuestion", activities.DecompositionInput{
		RequestID: input.RequestID,
		Question:  input.Question,
	}).Get(ctx, &decomposition); err != nil {
		return ResearchResult{}, failRun(ctx, sideCtx, input.RequestID, fmt.Errorf("decomposition failed: %w", err))
	}

	_ = workflow.ExecuteActivity(sideCtx, "SaveSubQuestions", activities.SaveSubQuestionsInput{
		RequestID:    input.RequestID,
		SubQuestions: decomposition.SubQuestions,
	}).Get(ctx, nil)

	questions := make([]string, len(decomposition.SubQuestions))
	for i, sq := range decomposition.SubQuestions {
		questions[i] = sq.Question
	}
	_ = workflow.ExecuteActivity(sideCtx, "EmitProgress", activities.EmitProgressInput{
		RequestID:    input.RequestID,
		Status:       streaming.StatusInProgress,
		AgentID:      streaming.AgentDecomposer,
		Message:      fmt.Sprintf("Identified %d research sub-questions", len(questions)),
		Current:      1,
		Total:        1,
		SubQuestions: questions,
	}).Get(ctx, nil)

	logger.Info("Decomposition complete",
		"request_id", input.RequestID,
		"sub_questions", len(decomposition.SubQuestions),
	)

	// Phase 2: fan out the four category specialists. Branches run
	// concurrently with each other; each processes its own sub-questions
	// strictly in order so progress percentages stay monotonic.
	byCategory := models.SubQuestionsByCategory(decomposition.SubQuestions)
	results := workflow.NewChannel(ctx)

	for _, category := range models.Categories() {
		category := category
		subs := byCategory[category]

		workflow.Go(ctx, func(gCtx workflow.Context) {
			results.Send(gCtx, runSpecialist(gCtx, input, category, subs))
		})
	}

	// Barrier join: synthesis must not start until every branch has reported.
	outcomes := make(map[models.Category]specialistOutcome, 4)
	for i := 0; i < len(models.Categories()); i++ {
		var out specialistOutcome
		results.Receive(ctx, &out)
		outcomes[out.Category] = out
	}

	findings := make(map[models.Category]string, 4)
	for _, category := range models.Categories() {
		out := outcomes[category]
		if out.Err != nil {
			return ResearchResult{}, failRun(ctx, sideCtx, input.RequestID, out.Err)
		}
		findings[category] = out.Findings
	}

	// Phase 3: synthesis, exactly once, after the barrier.
	emit(sideCtx, streaming.StatusStarting, streaming.AgentSynthesis,
		"Compiling research findings into a final report...", 0, 0)

	var synthesis activities.SynthesisResult
	if err := workflow.ExecuteActivity(reasoningCtx, "SynthesizeReport", activities.SynthesisInput{
		RequestID:        input.RequestID,
		Question:         input.Question,
		CategoryFindings: findings,
	}).Get(ctx, &synthesis); err != nil {
		return ResearchResult{}, failRun(ctx, sideCtx, input.RequestID, fmt.Errorf("synthesis failed: %w", err))
	}
	emit(sideCtx, streaming.StatusComplete, streaming.AgentSynthesis, "Final report ready", 1, 1)

	_ = workflow.ExecuteActivity(sideCtx, "CompleteRequest", activities.CompleteRequestInput{
		RequestID:   input.RequestID,
		FinalReport: synthesis.Report,
		At:          workflow.Now(ctx),
	}).Get(ctx, nil)
	emit(sideCtx, streaming.StatusComplete, streaming.AgentMain, "Research complete", 1, 1)

	logger.Info("Research workflow completed",
		"request_id", input.RequestID,
		"report_len", len(synthesis.Report),
	)
	return ResearchResult{
		RequestID:        input.RequestID,
		FinalReport:      synthesis.Report,
		SubQuestionCount: len(decomposition.SubQuestions),
	}, nil
}

// runSpecialist executes one category branch: sequential research over the
// category's sub-questions with per-step progress events. An empty category
// short-circuits to the sentinel without any reasoning call.
func runSpecialist(ctx workflow.Context, input ResearchInput, category models.Category, subs []models.SubQuestion) specialistOutcome {
	logger := workflow.GetLogger(ctx)
	agentID := streaming.SpecialistAgentID(category)

	reasoningCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	sideCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	if len(subs) == 0 {
		logger.Info("No sub-questions for category",
			"request_id", input.RequestID,
			"category", string(category),
		)
		// Persist the sentinel so the stored record names every category.
		_ = workflow.ExecuteActivity(sideCtx, "SaveCategoryFindings", activities.SaveCategoryFindingsInput{
			RequestID: input.RequestID,
			Category:  category,
			Findings:  models.NoResearchSentinel,
		}).Get(ctx, nil)
		return specialistOutcome{Category: category, Findings: models.NoResearchSentinel}
	}

	emit := func(status, message string, current int) {
		_ = workflow.ExecuteActivity(sideCtx, "EmitProgress", activities.EmitProgressInput{
			RequestID: input.RequestID,
			Status:    status,
			AgentID:   agentID,
			Message:   message,
			Current:   current,
			Total:     len(subs),
		}).Get(ctx, nil)
	}

	var buf strings.Builder
	for i, sq := range subs {
		emit(streaming.StatusStarting, "Researching: "+sq.Question, i)

		var res activities.SpecialistResult
		err := workflow.ExecuteActivity(reasoningCtx, "ResearchSubQuestion", activities.SpecialistInput{
			RequestID:        input.RequestID,
			Category:         category,
			SubQuestion:      sq,
			OriginalQuestion: input.Question,
		}).Get(ctx, &res)
		if err != nil {
			return specialistOutcome{Category: category, Err: err}
		}

		fmt.Fprintf(&buf, "### %s\n\n%s\n\n", sq.Question, res.Findings)

		_ = workflow.ExecuteActivity(sideCtx, "SaveSubQuestionFindings", activities.SaveSubQuestionFindingsInput{
			RequestID:     input.RequestID,
			SubQuestionID: sq.ID,
			Findings:      res.Findings,
		}).Get(ctx, nil)
		emit(streaming.StatusComplete, "Completed: "+sq.Question, i+1)
	}

	findings := buf.String()
	_ = workflow.ExecuteActivity(sideCtx, "SaveCategoryFindings", activities.SaveCategoryFindingsInput{
		RequestID: input.RequestID,
		Category:  category,
		Findings:  findings,
	}).Get(ctx, nil)

	return specialistOutcome{Category: category, Findings: findings}
}

// failRun writes the failed terminal state, emits the final error event, and
// returns the error that fails the workflow run. The store write is a
// compare-and-set, so a request already terminal keeps its outcome.
func failRun(ctx workflow.Context, sideCtx workflow.Context, requestID string, err error) error {
	logger := workflow.GetLogger(ctx)
	logger.Error("Research workflow failed",
		"request_id", requestID,
		"error", err,
	)

	_ = workflow.ExecuteActivity(sideCtx, "FailRequest", activities.FailRequestInput{
		RequestID: requestID,
		Error:     err.Error(),
		At:        workflow.Now(ctx),
	}).Get(ctx, nil)
	_ = workflow.ExecuteActivity(sideCtx, "EmitProgress", activities.EmitProgressInput{
		RequestID: requestID,
		Status:    streaming.StatusError,
		AgentID:   streaming.AgentMain,
		Message:   err.Error(),
	}).Get(ctx, nil)

	return err
}
