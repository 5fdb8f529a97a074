package processor

import (
	"context"
	"sync"
	"time"

	"github.com/juliezen/integrationhub/pkg/logger"
	"github.com/juliezen/integrationhub/queue"
	"github.com/juliezen/integrationhub/store/postgres"
)

// Pool runs N goroutines, each blocking on queue.Dequeue and handing the
// result to a Processor, the Go translation of the original's Celery
// worker concurrency (multiple worker processes consuming the same queue).
type Pool struct {
	processor *Processor
	queue     queue.Queue
	workers   int
	logger    logger.Logger
}

func NewPool(p *Processor, q queue.Queue, workers int, log logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Pool{processor: p, queue: q, workers: workers, logger: log.WithField("component", "processor.pool")}
}

// Run blocks until ctx is done, running p.workers goroutines that drain the
// queue continuously.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		messageID, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue failed", "worker", id, "err", err)
			continue
		}
		if err := p.processor.Process(ctx, messageID); err != nil {
			p.logger.Warn("message processing returned error", "worker", id, "message_id", messageID, "err", err)
		}
	}
}

// RetryScanner periodically polls the store for messages whose
// NextRetryAt has elapsed and re-enqueues them, the piece that turns a
// successor row's scheduled retry into an actual dequeue-able item.
type RetryScanner struct {
	store    postgres.Store
	queue    queue.Queue
	interval time.Duration
	batch    int
	logger   logger.Logger
}

func NewRetryScanner(store postgres.Store, q queue.Queue, interval time.Duration, batch int, log logger.Logger) *RetryScanner {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &RetryScanner{store: store, queue: q, interval: interval, batch: batch, logger: log.WithField("component", "processor.retryscanner")}
}

func (s *RetryScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *RetryScanner) scanOnce(ctx context.Context) {
	due, err := s.store.DueForRetry(ctx, time.Now(), s.batch)
	if err != nil {
		s.logger.Error("retry scan failed", "err", err)
		return
	}
	for _, msg := range due {
		if err := s.queue.Enqueue(ctx, msg.ID); err != nil {
			s.logger.Error("failed to re-enqueue due message", "message_id", msg.ID, "err", err)
		}
	}
}
