package streaming

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/autoshop-ai/orchestrator/internal/metrics"
)

// redisMirror writes a copy of every published event to a Redis Stream so
// external consumers (other processes, the UI backend) can tail progress
// without holding an in-process subscription. Failures are counted and
// swallowed; the mirror is strictly best-effort.
type redisMirror struct {
	client  *redis.Client
	logger  *zap.Logger
	maxLen  int64
	timeout time.Duration
}

// AttachRedis enables the Redis Streams mirror on the manager. maxLen bounds
// stream growth via approximate trimming; zero uses a default of 1024.
func (m *Manager) AttachRedis(client *redis.Client, maxLen int64, logger *zap.Logger) {
	if maxLen <= 0 {
		maxLen = 1024
	}
	m.mu.Lock()
	m.mirror = &redisMirror{
		client:  client,
		logger:  logger,
		maxLen:  maxLen,
		timeout: 5 * time.Second,
	}
	m.mu.Unlock()
}

// StreamKey returns the Redis Stream key events for requestID are mirrored to.
func StreamKey(requestID string) string {
	return "research:events:" + requestID
}

func (r *redisMirror) publish(requestID string, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(requestID),
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event": string(evt.Marshal()),
			"seq":   evt.Seq,
		},
	}).Err()
	if err != nil {
		metrics.ProgressEventsDropped.Inc()
		r.logger.Debug("Redis event mirror publish failed",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}
