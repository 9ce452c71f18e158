package server

import (
	"context"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/autoshop-ai/orchestrator/internal/metrics"
	"github.com/autoshop-ai/orchestrator/internal/workflows"
)

// TemporalStarter starts research workflows on a Temporal task queue.
type TemporalStarter struct {
	client    client.Client
	taskQueue string
	logger    *zap.Logger
}

// NewTemporalStarter wraps a Temporal client.
func NewTemporalStarter(c client.Client, taskQueue string, logger *zap.Logger) *TemporalStarter {
	return &TemporalStarter{client: c, taskQueue: taskQueue, logger: logger}
}

// StartResearch launches the workflow without waiting for it to finish.
func (t *TemporalStarter) StartResearch(ctx context.Context, workflowID string, input workflows.ResearchInput) error {
	opts := client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: t.taskQueue,
	}
	run, err := t.client.ExecuteWorkflow(ctx, opts, workflows.ResearchWorkflow, input)
	if err != nil {
		return err
	}

	t.logger.Info("Research workflow started",
		zap.String("workflow_id", workflowID),
		zap.String("run_id", run.GetRunID()),
		zap.String("request_id", input.RequestID),
	)
	go t.watch(input.RequestID, run)
	return nil
}

// watch observes the run to its terminal state for logs and duration metrics.
// Outcome persistence happens inside the workflow; this is telemetry only.
func (t *TemporalStarter) watch(requestID string, run client.WorkflowRun) {
	start := time.Now()
	var result workflows.ResearchResult
	err := run.Get(context.Background(), &result)
	metrics.ResearchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		t.logger.Warn("Research workflow finished with error",
			zap.String("request_id", requestID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	t.logger.Info("Research workflow finished",
		zap.String("request_id", requestID),
		zap.Int("sub_questions", result.SubQuestionCount),
		zap.Duration("elapsed", time.Since(start)),
	)
}
