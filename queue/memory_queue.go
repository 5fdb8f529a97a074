package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process Queue used in tests, standing in for
// RedisQueue the way core/mock_discovery.go stands in for
// core/redis_discovery.go in the teacher's test suite.
type MemoryQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []string
}

func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *MemoryQueue) Enqueue(ctx context.Context, messageID string) error {
	q.mu.Lock()
	q.items = append(q.items, messageID)
	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
		close(done)
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		q.cond.Wait()
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, nil
}
