// Package queue implements the durable queue feeding the message processor
// worker pool (C5), grounded on orchestration/redis_task_queue.go's reliable
// LPUSH/BRPOP pattern.
package queue

import "context"

// Queue is the contract the worker pool drains. MessageID values are
// IntegrationMessage IDs; the queue itself is content-agnostic.
type Queue interface {
	Enqueue(ctx context.Context, messageID string) error
	Dequeue(ctx context.Context) (string, error)
}
