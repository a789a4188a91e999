package task

import (
	"context"
	"log/slog"
	"sync"
)

// WorkerPool manages a pool of worker goroutines that process tasks
// from a task queue. It handles graceful shutdown and worker lifecycle.
type WorkerPool struct {
	queue       <-chan *Record
	workerCount int
	process     func(ctx context.Context, rec *Record, workerID int)
	wg          sync.WaitGroup
	logger      *slog.Logger
}

// NewWorkerPool creates a worker pool that passes every task read from
// queue to process. A worker count below one is raised to one.
func NewWorkerPool(
	queue <-chan *Record,
	workerCount int,
	process func(ctx context.Context, rec *Record, workerID int),
	logger *slog.Logger,
) *WorkerPool {
	if workerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", workerCount,
			"default_count", 1)
		workerCount = 1
	}

	return &WorkerPool{
		queue:       queue,
		workerCount: workerCount,
		process:     process,
		logger:      logger,
	}
}

// Start launches the workers. They stop when ctx is cancelled or the queue
// is closed.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Wait blocks until every worker has returned.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case rec, ok := <-p.queue:
			if !ok {
				p.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			p.process(ctx, rec, id)
		}
	}
}
