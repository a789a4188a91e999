package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func testRunnerConfig() RunnerConfig {
	cfg := DefaultRunnerConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.BaseBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.MaxAttempts = 3
	return cfg
}

func TestRunner_Schedule(t *testing.T) {
	t.Parallel()

	t.Run("persists pending task", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryTaskStore()
		runner := NewRunner(store, testRunnerConfig(), setupTestLogger())
		runAt := time.Date(2030, 10, 10, 12, 30, 0, 0, time.UTC)

		h, err := runner.Schedule(context.Background(), runAt, TaskTypeIssueDeadline, []byte(`{}`))

		require.NoError(t, err)
		require.False(t, h.IsZero())
		id, err := ParseHandle(h)
		require.NoError(t, err)
		rec, err := store.GetTask(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, TaskStatusPending, rec.Status)
		assert.True(t, rec.RunAt.Equal(runAt))
		assert.Equal(t, TaskTypeIssueDeadline, rec.Type)
	})

	t.Run("store error", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryTaskStore()
		store.SaveFn = func(ctx context.Context, rec *Record) error {
			return errors.New("mock store error")
		}
		runner := NewRunner(store, testRunnerConfig(), setupTestLogger())

		h, err := runner.Schedule(context.Background(), time.Now(), TaskTypeIssueDeadline, nil)

		require.Error(t, err)
		assert.True(t, h.IsZero())
		assert.Contains(t, err.Error(), "failed to save task")
	})

	t.Run("rejects missing run time", func(t *testing.T) {
		t.Parallel()
		runner := NewRunner(NewMemoryTaskStore(), testRunnerConfig(), setupTestLogger())

		_, err := runner.Schedule(context.Background(), time.Time{}, TaskTypeIssueDeadline, nil)

		assert.ErrorIs(t, err, ErrInvalidTask)
	})
}

func TestRunner_Cancel(t *testing.T) {
	t.Parallel()

	store := NewMemoryTaskStore()
	runner := NewRunner(store, testRunnerConfig(), setupTestLogger())
	ctx := context.Background()

	h, err := runner.Schedule(ctx, time.Now().Add(time.Hour), TaskTypeIssueDeadline, nil)
	require.NoError(t, err)

	runner.Cancel(ctx, h)
	// Repeated, zero, malformed and unknown handles are all no-ops.
	runner.Cancel(ctx, h)
	runner.Cancel(ctx, "")
	runner.Cancel(ctx, "not-a-uuid")
	runner.Cancel(ctx, Handle(uuid.NewString()))

	id, _ := ParseHandle(h)
	rec, err := store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCancelled, rec.Status)
}

func TestRunner_ExecutesDueTasks(t *testing.T) {
	t.Parallel()

	store := NewMemoryTaskStore()
	runner := NewRunner(store, testRunnerConfig(), setupTestLogger())

	got := make(chan string, 1)
	runner.Register(TaskTypeSendNotification, func(ctx context.Context, rec *Record) error {
		got <- string(rec.Payload)
		return nil
	})
	require.NoError(t, runner.Start())
	defer runner.Stop()

	h, err := runner.Schedule(context.Background(), time.Now(), TaskTypeSendNotification, []byte("hello"))
	require.NoError(t, err)

	select {
	case payload := <-got:
		assert.Equal(t, "hello", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not executed")
	}

	id, _ := ParseHandle(h)
	assert.Eventually(t, func() bool {
		rec, err := store.GetTask(context.Background(), id)
		return err == nil && rec.Status == TaskStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunner_DoesNotRunFutureOrCancelledTasks(t *testing.T) {
	t.Parallel()

	store := NewMemoryTaskStore()
	runner := NewRunner(store, testRunnerConfig(), setupTestLogger())

	var calls atomic.Int32
	runner.Register(TaskTypeIssueDeadline, func(ctx context.Context, rec *Record) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, runner.Start())
	defer runner.Stop()

	ctx := context.Background()
	_, err := runner.Schedule(ctx, time.Now().Add(time.Hour), TaskTypeIssueDeadline, nil)
	require.NoError(t, err)
	cancelled, err := runner.Schedule(ctx, time.Now().Add(50*time.Millisecond), TaskTypeIssueDeadline, nil)
	require.NoError(t, err)
	runner.Cancel(ctx, cancelled)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestRunner_RetriesThenFails(t *testing.T) {
	t.Parallel()

	store := NewMemoryTaskStore()
	runner := NewRunner(store, testRunnerConfig(), setupTestLogger())

	var calls atomic.Int32
	runner.Register(TaskTypeSendNotification, func(ctx context.Context, rec *Record) error {
		calls.Add(1)
		return errors.New("smtp unavailable")
	})

	failed := make(chan *Record, 1)
	runner.SetErrorHandler(func(rec *Record, err error) {
		failed <- rec
	})
	require.NoError(t, runner.Start())
	defer runner.Stop()

	_, err := runner.Schedule(context.Background(), time.Now(), TaskTypeSendNotification, nil)
	require.NoError(t, err)

	select {
	case rec := <-failed:
		assert.Equal(t, 3, rec.Attempts)
	case <-time.After(3 * time.Second):
		t.Fatal("task never failed permanently")
	}
	assert.Equal(t, int32(3), calls.Load())

	assert.Eventually(t, func() bool {
		return len(store.TasksByStatus(TaskStatusFailed)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRunner_RetrySucceeds(t *testing.T) {
	t.Parallel()

	store := NewMemoryTaskStore()
	runner := NewRunner(store, testRunnerConfig(), setupTestLogger())

	var calls atomic.Int32
	runner.Register(TaskTypeSendNotification, func(ctx context.Context, rec *Record) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, runner.Start())
	defer runner.Stop()

	_, err := runner.Schedule(context.Background(), time.Now(), TaskTypeSendNotification, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(store.TasksByStatus(TaskStatusCompleted)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunner_UnknownTaskTypeFails(t *testing.T) {
	t.Parallel()

	store := NewMemoryTaskStore()
	runner := NewRunner(store, testRunnerConfig(), setupTestLogger())

	failed := make(chan error, 1)
	runner.SetErrorHandler(func(rec *Record, err error) { failed <- err })
	require.NoError(t, runner.Start())
	defer runner.Stop()

	_, err := runner.Schedule(context.Background(), time.Now(), "mystery", nil)
	require.NoError(t, err)

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, ErrUnknownTaskType)
	case <-time.After(2 * time.Second):
		t.Fatal("unknown task type was not reported")
	}
}

func TestRunner_PanicIsRecovered(t *testing.T) {
	t.Parallel()

	store := NewMemoryTaskStore()
	cfg := testRunnerConfig()
	cfg.MaxAttempts = 1
	runner := NewRunner(store, cfg, setupTestLogger())

	runner.Register(TaskTypeSendNotification, func(ctx context.Context, rec *Record) error {
		panic("boom")
	})
	failed := make(chan error, 1)
	runner.SetErrorHandler(func(rec *Record, err error) { failed <- err })
	require.NoError(t, runner.Start())
	defer runner.Stop()

	_, err := runner.Schedule(context.Background(), time.Now(), TaskTypeSendNotification, nil)
	require.NoError(t, err)

	select {
	case err := <-failed:
		assert.Contains(t, err.Error(), "boom")
	case <-time.After(2 * time.Second):
		t.Fatal("panicking task was not reported")
	}
}

func TestRunner_RecoverResetsProcessingTasks(t *testing.T) {
	t.Parallel()

	store := NewMemoryTaskStore()
	ctx := context.Background()
	rec := &Record{ID: uuid.New(), Type: TaskTypeSendNotification, Status: TaskStatusPending, RunAt: time.Now()}
	require.NoError(t, store.SaveTask(ctx, rec))

	// Claimed an hour ago by a runner that never finished it.
	store.now = func() time.Time { return time.Now().Add(-time.Hour) }
	claimed, err := store.ClaimDueTasks(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	store.now = time.Now

	runner := NewRunner(store, testRunnerConfig(), setupTestLogger())
	done := make(chan struct{})
	runner.Register(TaskTypeSendNotification, func(ctx context.Context, rec *Record) error {
		close(done)
		return nil
	})
	require.NoError(t, runner.Start())
	defer runner.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("interrupted task was not resumed")
	}
}

func TestRunner_StartLeavesOtherRunnersTasksAlone(t *testing.T) {
	t.Parallel()

	store := NewMemoryTaskStore()
	var executions atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	handler := func(ctx context.Context, rec *Record) error {
		executions.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}

	first := NewRunner(store, testRunnerConfig(), setupTestLogger())
	first.Register(TaskTypeSendNotification, handler)
	require.NoError(t, first.Start())
	defer first.Stop()

	_, err := first.Schedule(context.Background(), time.Now(), TaskTypeSendNotification, nil)
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not started")
	}

	second := NewRunner(store, testRunnerConfig(), setupTestLogger())
	second.Register(TaskTypeSendNotification, handler)
	require.NoError(t, second.Start())
	defer second.Stop()

	// Give the second runner a few polls to pick up anything it recovered.
	time.Sleep(100 * time.Millisecond)
	close(release)

	require.Eventually(t, func() bool {
		return len(store.TasksByStatus(TaskStatusCompleted)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), executions.Load())
}

func TestRunner_WithTx(t *testing.T) {
	t.Parallel()

	store := NewMemoryTaskStore()
	runner := NewRunner(store, testRunnerConfig(), setupTestLogger())
	ctx := context.Background()

	assert.Same(t, runner, runner.WithTx(nil))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	scheduler := runner.WithTx(tx)
	h, err := scheduler.Schedule(ctx, time.Now().Add(-time.Minute), TaskTypeIssueDeadline, nil)
	require.NoError(t, err)
	assert.Empty(t, runner.wake, "a task written in a transaction must not wake the poller")

	scheduler.Cancel(ctx, h)
	id, _ := ParseHandle(h)
	rec, err := store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCancelled, rec.Status)

	runner.Wake()
	runner.Wake()
	assert.Len(t, runner.wake, 1)
}

func TestRunner_Backoff(t *testing.T) {
	t.Parallel()

	cfg := testRunnerConfig()
	cfg.BaseBackoff = time.Second
	cfg.MaxBackoff = 5 * time.Second
	runner := NewRunner(NewMemoryTaskStore(), cfg, setupTestLogger())

	assert.Equal(t, time.Second, runner.backoff(1))
	assert.Equal(t, 2*time.Second, runner.backoff(2))
	assert.Equal(t, 4*time.Second, runner.backoff(3))
	assert.Equal(t, 5*time.Second, runner.backoff(4))
}
