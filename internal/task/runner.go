package task

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
)

// RunnerConfig holds configuration for the task runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize bounds how many claimed tasks wait for a free worker
	QueueSize int

	// PollInterval defines how often the store is checked for due tasks
	PollInterval time.Duration

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and reset
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks
	StuckTaskCheckInterval time.Duration

	// MaxAttempts is the number of executions before a failing task is
	// marked failed for good
	MaxAttempts int

	// BaseBackoff is the delay before the first retry. Later retries back
	// off exponentially up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		PollInterval:           5 * time.Second,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
		MaxAttempts:            5,
		BaseBackoff:            10 * time.Second,
		MaxBackoff:             30 * time.Minute,
	}
}

// Runner is the Scheduler backed by a TaskStore. It polls the store for due
// tasks and executes them on a worker pool.
type Runner struct {
	store      TaskStore
	queue      *TaskQueue
	pool       *WorkerPool
	config     RunnerConfig
	logger     *slog.Logger
	now        func() time.Time
	errHandler func(rec *Record, err error)

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	wake       chan struct{}
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

var _ TxScheduler = (*Runner)(nil)

// NewRunner creates a new Runner. Zero config values fall back to
// DefaultRunnerConfig.
func NewRunner(store TaskStore, config RunnerConfig, logger *slog.Logger) *Runner {
	config = withDefaults(config)
	logger = logger.With(slog.String("component", "task_runner"))

	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		store:      store,
		queue:      NewTaskQueue(config.QueueSize, logger),
		config:     config,
		logger:     logger,
		now:        time.Now,
		handlers:   make(map[string]HandlerFunc),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancelFunc: cancel,
		errHandler: func(rec *Record, err error) {
			logger.Error("task failed permanently",
				"task_id", rec.ID,
				"task_type", rec.Type,
				"attempts", rec.Attempts,
				"error", err)
		},
	}
	r.pool = NewWorkerPool(r.queue.GetChannel(), config.WorkerCount, r.processTask, logger)
	return r
}

func withDefaults(c RunnerConfig) RunnerConfig {
	d := DefaultRunnerConfig()
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.StuckTaskAge <= 0 {
		c.StuckTaskAge = d.StuckTaskAge
	}
	if c.StuckTaskCheckInterval <= 0 {
		c.StuckTaskCheckInterval = d.StuckTaskCheckInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = c.BaseBackoff
	}
	return c
}

// SetErrorHandler sets the function called when a task fails for the last time
func (r *Runner) SetErrorHandler(handler func(rec *Record, err error)) {
	r.errHandler = handler
}

// Register sets the handler for a task type. It must be called before Start.
func (r *Runner) Register(taskType string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = handler
}

func (r *Runner) handler(taskType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	return h, ok
}

// Schedule persists a pending task that becomes due at runAt.
func (r *Runner) Schedule(ctx context.Context, runAt time.Time, taskType string, payload []byte) (Handle, error) {
	rec, err := r.schedule(ctx, r.store, runAt, taskType, payload)
	if err != nil {
		return "", err
	}
	if !rec.RunAt.After(r.now().UTC()) {
		r.Wake()
	}
	return rec.Handle(), nil
}

func (r *Runner) schedule(ctx context.Context, st TaskStore, runAt time.Time, taskType string, payload []byte) (*Record, error) {
	if taskType == "" || runAt.IsZero() {
		return nil, fmt.Errorf("%w: task type and run time are required", ErrInvalidTask)
	}

	now := r.now().UTC()
	rec := &Record{
		ID:        uuid.New(),
		Type:      taskType,
		Payload:   payload,
		Status:    TaskStatusPending,
		RunAt:     runAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := st.SaveTask(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	logger.FromContextOrDefault(ctx, r.logger).Debug("task scheduled",
		"task_id", rec.ID,
		"task_type", rec.Type,
		"run_at", rec.RunAt)
	return rec, nil
}

// Cancel marks the task pending behind h as cancelled. Failures are logged,
// never returned.
func (r *Runner) Cancel(ctx context.Context, h Handle) {
	r.cancel(ctx, r.store, h)
}

func (r *Runner) cancel(ctx context.Context, st TaskStore, h Handle) {
	if h.IsZero() {
		return
	}
	log := logger.FromContextOrDefault(ctx, r.logger)

	id, err := ParseHandle(h)
	if err != nil {
		log.Warn("ignoring cancel of malformed task handle", "handle", h.String())
		return
	}

	cancelled, err := st.CancelTask(ctx, id)
	if err != nil {
		log.Error("failed to cancel task", "task_id", id, "error", err)
		return
	}
	log.Debug("task cancel requested", "task_id", id, "cancelled", cancelled)
}

// WithTx returns a Scheduler whose task writes join tx. A nil tx returns r.
func (r *Runner) WithTx(tx *sql.Tx) Scheduler {
	if tx == nil {
		return r
	}
	return &txScheduler{runner: r, store: r.store.WithTx(tx)}
}

// Wake makes the poller claim due tasks without waiting for the next tick.
func (r *Runner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// txScheduler schedules and cancels through a transaction-bound TaskStore.
type txScheduler struct {
	runner *Runner
	store  TaskStore
}

func (s *txScheduler) Schedule(ctx context.Context, runAt time.Time, taskType string, payload []byte) (Handle, error) {
	rec, err := s.runner.schedule(ctx, s.store, runAt, taskType, payload)
	if err != nil {
		return "", err
	}
	return rec.Handle(), nil
}

func (s *txScheduler) Cancel(ctx context.Context, h Handle) {
	s.runner.cancel(ctx, s.store, h)
}

// Start recovers tasks interrupted by a previous shutdown and begins
// processing.
func (r *Runner) Start() error {
	var err error
	r.startOnce.Do(func() {
		if err = r.Recover(); err != nil {
			err = fmt.Errorf("failed to recover tasks: %w", err)
			return
		}

		r.pool.Start(r.ctx)

		r.wg.Add(2)
		go r.poller()
		go r.stuckTaskMonitor()
	})
	return err
}

// Stop gracefully shuts down the runner. Tasks claimed but not yet started
// are returned to pending.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.cancelFunc()
		r.wg.Wait()
		r.pool.Wait()
		r.queue.Close()

		ctx := context.Background()
		for rec := range r.queue.GetChannel() {
			if err := r.store.RetryTask(ctx, rec.ID, rec.RunAt, "released on shutdown"); err != nil {
				r.logger.Error("failed to release claimed task", "task_id", rec.ID, "error", err)
			}
		}
		r.logger.Info("task runner stopped")
	})
}

// Recover resets tasks left in processing state for longer than
// StuckTaskAge. Younger ones may belong to another runner sharing the store.
func (r *Runner) Recover() error {
	n, err := r.store.ResetStuckTasks(r.ctx, r.config.StuckTaskAge)
	if err != nil {
		return err
	}
	r.logger.Info("recovered unfinished tasks", "reset_count", n)
	return nil
}

// poller claims due tasks on every tick and whenever a due task is scheduled.
func (r *Runner) poller() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.claimDue()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		case <-r.wake:
		}
		r.claimDue()
	}
}

func (r *Runner) claimDue() {
	free := r.queue.Free()
	if free == 0 {
		return
	}

	recs, err := r.store.ClaimDueTasks(r.ctx, r.now().UTC(), free)
	if err != nil {
		if r.ctx.Err() == nil {
			r.logger.Error("failed to claim due tasks", "error", err)
		}
		return
	}

	for _, rec := range recs {
		if err := r.queue.Enqueue(rec); err != nil {
			r.logger.Error("failed to enqueue claimed task", "task_id", rec.ID, "error", err)
			if err := r.store.RetryTask(context.Background(), rec.ID, rec.RunAt, err.Error()); err != nil {
				r.logger.Error("failed to release claimed task", "task_id", rec.ID, "error", err)
			}
		}
	}
}

// processTask handles execution of a single task
func (r *Runner) processTask(ctx context.Context, rec *Record, workerID int) {
	log := r.logger.With(
		"task_id", rec.ID,
		"task_type", rec.Type,
		"worker_id", workerID,
		"attempt", rec.Attempts,
	)
	// Status updates must land even when shutdown cancels ctx mid-task.
	storeCtx := context.WithoutCancel(ctx)

	handler, ok := r.handler(rec.Type)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownTaskType, rec.Type)
		log.Error("no handler registered")
		if updateErr := r.store.UpdateTaskStatus(storeCtx, rec.ID, TaskStatusFailed, err.Error()); updateErr != nil {
			log.Error("failed to update task status to failed", "error", updateErr)
		}
		r.errHandler(rec, err)
		return
	}

	log.Info("processing task")

	err := r.execute(logger.WithLogger(ctx, log), handler, rec)
	if err == nil {
		log.Info("task completed successfully")
		if updateErr := r.store.UpdateTaskStatus(storeCtx, rec.ID, TaskStatusCompleted, ""); updateErr != nil {
			log.Error("failed to update task status to completed", "error", updateErr)
		}
		return
	}

	if ctx.Err() != nil {
		log.Warn("task interrupted by shutdown", "error", err)
		if retryErr := r.store.RetryTask(storeCtx, rec.ID, r.now().UTC(), "interrupted by shutdown"); retryErr != nil {
			log.Error("failed to release interrupted task", "error", retryErr)
		}
		return
	}

	if rec.Attempts >= r.config.MaxAttempts {
		if updateErr := r.store.UpdateTaskStatus(storeCtx, rec.ID, TaskStatusFailed, err.Error()); updateErr != nil {
			log.Error("failed to update task status to failed", "error", updateErr)
		}
		r.errHandler(rec, err)
		return
	}

	runAt := r.now().UTC().Add(r.backoff(rec.Attempts))
	log.Warn("task execution failed, retrying", "error", err, "retry_at", runAt)
	if retryErr := r.store.RetryTask(storeCtx, rec.ID, runAt, err.Error()); retryErr != nil {
		log.Error("failed to schedule task retry", "error", retryErr)
	}
}

func (r *Runner) execute(ctx context.Context, handler HandlerFunc, rec *Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return handler(ctx, rec)
}

// backoff returns the delay before retrying a task that failed its n-th attempt.
func (r *Runner) backoff(attempt int) time.Duration {
	b := retry.WithCappedDuration(r.config.MaxBackoff, retry.NewExponential(r.config.BaseBackoff))
	delay := r.config.BaseBackoff
	for i := 0; i < attempt; i++ {
		delay, _ = b.Next()
	}
	return delay
}

// stuckTaskMonitor periodically checks for tasks that have been in "processing"
// state for too long and resets them
func (r *Runner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			n, err := r.store.ResetStuckTasks(r.ctx, r.config.StuckTaskAge)
			if err != nil {
				if r.ctx.Err() == nil {
					r.logger.Error("failed to reset stuck tasks", "error", err)
				}
				continue
			}
			if n > 0 {
				r.logger.Info("reset stuck tasks", "count", n)
				r.Wake()
			}
		}
	}
}
