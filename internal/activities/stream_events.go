package activities

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/autoshop-ai/orchestrator/internal/metrics"
	"github.com/autoshop-ai/orchestrator/internal/streaming"
)

// EmitProgress publishes one progress event to the optional notification
// channel. It never returns an error: absence or failure of the channel must
// not affect workflow outcome.
func (a *Activities) EmitProgress(ctx context.Context, in EmitProgressInput) error {
	logger := activity.GetLogger(ctx)
	logger.Debug("Progress event",
		"request_id", in.RequestID,
		"status", in.Status,
		"agent_id", in.AgentID,
		"message", in.Message,
	)

	if a.events == nil {
		return nil
	}

	evt := streaming.Event{
		Status:       in.Status,
		AgentID:      in.AgentID,
		Message:      in.Message,
		SubQuestions: in.SubQuestions,
		SessionID:    in.RequestID,
		Timestamp:    time.Now(),
	}
	if in.Total > 0 {
		evt.Progress = &streaming.Progress{
			Current:    in.Current,
			Total:      in.Total,
			Percentage: float64(in.Current) / float64(in.Total) * 100,
		}
	}
	a.events.Publish(in.RequestID, evt)
	metrics.ProgressEventsEmitted.WithLabelValues(in.Status).Inc()
	return nil
}
