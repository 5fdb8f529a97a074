package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/juliezen/integrationhub/pkg/logger"
)

// RedisQueue implements Queue over a Redis list: LPUSH to enqueue, BRPOP to
// dequeue, the reliable FIFO pattern ported from
// orchestration/redis_task_queue.go.
type RedisQueue struct {
	client        *redis.Client
	key           string
	retryAttempts int
	retryDelay    time.Duration
	logger        logger.Logger
}

// RedisQueueConfig configures a RedisQueue.
type RedisQueueConfig struct {
	Key           string
	RetryAttempts int
	RetryDelay    time.Duration
	Logger        logger.Logger
}

func DefaultRedisQueueConfig() RedisQueueConfig {
	return RedisQueueConfig{
		Key:           "integrationhub:messages:queue",
		RetryAttempts: 3,
		RetryDelay:    100 * time.Millisecond,
	}
}

func NewRedisQueue(client *redis.Client, cfg RedisQueueConfig) *RedisQueue {
	if cfg.Key == "" {
		cfg.Key = "integrationhub:messages:queue"
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefaultLogger()
	}
	return &RedisQueue{
		client:        client,
		key:           cfg.Key,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		logger:        cfg.Logger.WithField("component", "queue.redis"),
	}
}

// Enqueue pushes messageID onto the queue, retrying transient Redis errors.
func (q *RedisQueue) Enqueue(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("queue.Enqueue: empty message id")
	}
	var lastErr error
	for attempt := 0; attempt < q.retryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(q.retryDelay)
		}
		if err := q.client.LPush(ctx, q.key, messageID).Err(); err != nil {
			lastErr = err
			q.logger.Warn("enqueue attempt failed", "message_id", messageID, "attempt", attempt+1, "err", err)
			continue
		}
		q.logger.Debug("message enqueued", "message_id", messageID)
		return nil
	}
	return fmt.Errorf("queue.Enqueue: %w", lastErr)
}

// Dequeue blocks (via BRPOP) until a message is available or ctx is done.
func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	result, err := q.client.BRPop(ctx, 0, q.key).Result()
	if err != nil {
		return "", fmt.Errorf("queue.Dequeue: %w", err)
	}
	// BRPop returns [key, value].
	if len(result) != 2 {
		return "", fmt.Errorf("queue.Dequeue: unexpected BRPOP result shape")
	}
	return result[1], nil
}
