package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Errors returned by Enqueue.
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// TaskQueue is the buffered hand-off between the poller that claims due
// tasks and the workers that execute them.
type TaskQueue struct {
	mu     sync.Mutex
	tasks  chan *Record
	logger *slog.Logger
	closed bool
}

// NewTaskQueue creates a queue holding at most size claimed tasks.
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	return &TaskQueue{
		tasks:  make(chan *Record, size),
		logger: logger,
	}
}

// Enqueue hands rec to the workers without blocking. It fails with
// ErrQueueFull when every slot is taken and ErrQueueClosed after Close.
func (q *TaskQueue) Enqueue(rec *Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- rec:
		q.logger.Debug("task enqueued",
			slog.String("task_id", rec.ID.String()),
			slog.String("task_type", rec.Type),
			slog.Int("queued", len(q.tasks)))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.tasks))
	}
}

// Free returns how many more tasks fit into the queue.
func (q *TaskQueue) Free() int {
	return cap(q.tasks) - len(q.tasks)
}

// Close stops further Enqueue calls and lets the workers drain what is
// left. Calling it twice is safe.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.tasks)
		q.logger.Info("task queue closed")
	}
}

// GetChannel returns the channel the workers read from.
func (q *TaskQueue) GetChannel() <-chan *Record {
	return q.tasks
}
