package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
	"github.com/stxlabs/tracker-api/internal/store"
	"github.com/stxlabs/tracker-api/internal/task"
)

// PostgresTaskStore implements the task.TaskStore interface using PostgreSQL.
// Several runner processes may share one tasks table.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgresTaskStore
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ task.TaskStore = (*PostgresTaskStore)(nil)

// WithTx returns a PostgresTaskStore that runs its statements on tx.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) task.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

// SaveTask persists a task to the database
func (s *PostgresTaskStore) SaveTask(ctx context.Context, rec *task.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, type, payload, status, run_at, attempts, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.ID,
		rec.Type,
		nullPayload(rec.Payload),
		string(rec.Status),
		rec.RunAt,
		rec.Attempts,
		rec.LastError,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save task",
			"task_id", rec.ID,
			"task_type", rec.Type,
			"error", err)
		return fmt.Errorf("failed to save task to database: %w", MapError(err))
	}
	return nil
}

const taskColumns = `id, type, payload, status, run_at, attempts, error_message, created_at, updated_at`

func scanTask(row interface{ Scan(dest ...any) error }) (*task.Record, error) {
	var rec task.Record
	var status string
	if err := row.Scan(
		&rec.ID,
		&rec.Type,
		&rec.Payload,
		&status,
		&rec.RunAt,
		&rec.Attempts,
		&rec.LastError,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = task.TaskStatus(status)
	return &rec, nil
}

// GetTask retrieves a task by ID.
func (s *PostgresTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*task.Record, error) {
	rec, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, task.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}
	return rec, nil
}

// CancelTask moves a pending task to cancelled.
func (s *PostgresTaskStore) CancelTask(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, string(task.TaskStatusCancelled), time.Now().UTC(), id, string(task.TaskStatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to cancel task: %w", MapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ClaimDueTasks claims due pending tasks. SKIP LOCKED keeps concurrent
// pollers from claiming the same row.
func (s *PostgresTaskStore) ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]*task.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE tasks
		SET status = $1, attempts = attempts + 1, updated_at = $2
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status = $3 AND run_at <= $2
			ORDER BY run_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		string(task.TaskStatusProcessing), now, string(task.TaskStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var claimed []*task.Record
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		claimed = append(claimed, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claimed tasks: %w", err)
	}
	return claimed, nil
}

// UpdateTaskStatus updates the status of a task in the database
func (s *PostgresTaskStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status task.TaskStatus, errorMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`, string(status), errorMsg, time.Now().UTC(), id)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update task status",
			"task_id", id,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update task status: %w", MapError(err))
	}
	return CheckRowsAffected(result, task.ErrTaskNotFound)
}

// RetryTask moves a task back to pending with a new run time.
func (s *PostgresTaskStore) RetryTask(ctx context.Context, id uuid.UUID, runAt time.Time, errorMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1, run_at = $2, error_message = $3, updated_at = $4
		WHERE id = $5
	`, string(task.TaskStatusPending), runAt.UTC(), errorMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to reschedule task: %w", MapError(err))
	}
	return CheckRowsAffected(result, task.ErrTaskNotFound)
}

// ResetStuckTasks moves tasks stuck in processing back to pending.
func (s *PostgresTaskStore) ResetStuckTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1, error_message = 'reset after being stuck in processing state', updated_at = $2
		WHERE status = $3 AND updated_at <= $4
	`, string(task.TaskStatusPending), now, string(task.TaskStatusProcessing), now.Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck tasks: %w", MapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// nullPayload stores an empty payload as NULL; the column is JSONB.
func nullPayload(p []byte) any {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}
