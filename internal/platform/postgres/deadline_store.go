package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
	"github.com/stxlabs/tracker-api/internal/store"
	"github.com/stxlabs/tracker-api/internal/task"
)

// PostgresDeadlineStore implements store.DeadlineStore on the
// issue_deadline_tasks table. Row locks provide the per-issue exclusion.
type PostgresDeadlineStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresDeadlineStore creates a new PostgresDeadlineStore.
func NewPostgresDeadlineStore(db *sql.DB, logger *slog.Logger) *PostgresDeadlineStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDeadlineStore{
		db:     db,
		logger: logger.With(slog.String("component", "deadline_store")),
	}
}

var _ store.DeadlineStore = (*PostgresDeadlineStore)(nil)

// Swap implements store.DeadlineStore.Swap
func (s *PostgresDeadlineStore) Swap(ctx context.Context, issueID uuid.UUID, fn store.SwapFunc) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	var fnErr error

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO issue_deadline_tasks (issue_id) VALUES ($1)
			ON CONFLICT (issue_id) DO NOTHING
		`, issueID)
		if err != nil {
			if IsForeignKeyViolation(err) {
				return store.ErrIssueNotFound
			}
			return store.NewStoreError("deadline_task", "swap", "failed to create registry entry", MapError(err))
		}

		var current sql.NullString
		err = tx.QueryRowContext(ctx, `
			SELECT task_handle FROM issue_deadline_tasks WHERE issue_id = $1 FOR UPDATE
		`, issueID).Scan(&current)
		if err != nil {
			// The issue was deleted between the insert and the lock.
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrIssueNotFound
			}
			return store.NewStoreError("deadline_task", "swap", "failed to lock registry entry", MapError(err))
		}

		next, err := fn(ctx, tx, task.Handle(current.String))
		fnErr = err

		_, err = tx.ExecContext(ctx, `
			UPDATE issue_deadline_tasks SET task_handle = $1, updated_at = NOW() WHERE issue_id = $2
		`, nullHandle(next), issueID)
		if err != nil {
			return store.NewStoreError("deadline_task", "swap", "failed to store task handle", MapError(err))
		}
		return nil
	})
	if err != nil {
		log.Error("deadline registry swap failed",
			slog.String("issue_id", issueID.String()),
			slog.String("error", err.Error()))
		return err
	}
	return fnErr
}

// Get implements store.DeadlineStore.Get
func (s *PostgresDeadlineStore) Get(ctx context.Context, issueID uuid.UUID) (task.Handle, error) {
	var h sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT task_handle FROM issue_deadline_tasks WHERE issue_id = $1`, issueID).Scan(&h)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", store.NewStoreError("deadline_task", "get", "failed to query registry", MapError(err))
	}
	return task.Handle(h.String), nil
}

// ClearIf implements store.DeadlineStore.ClearIf
func (s *PostgresDeadlineStore) ClearIf(ctx context.Context, issueID uuid.UUID, handle task.Handle) (bool, error) {
	if handle.IsZero() {
		return false, nil
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE issue_deadline_tasks SET task_handle = NULL, updated_at = NOW()
		WHERE issue_id = $1 AND task_handle = $2
	`, issueID, handle.String())
	if err != nil {
		return false, store.NewStoreError("deadline_task", "clear", "failed to clear registry", MapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Take implements store.DeadlineStore.Take
func (s *PostgresDeadlineStore) Take(ctx context.Context, issueID uuid.UUID) (task.Handle, error) {
	var h sql.NullString
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM issue_deadline_tasks WHERE issue_id = $1 RETURNING task_handle`, issueID).Scan(&h)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", store.NewStoreError("deadline_task", "take", "failed to delete registry entry", MapError(err))
	}
	return task.Handle(h.String), nil
}

func nullHandle(h task.Handle) sql.NullString {
	return sql.NullString{String: h.String(), Valid: !h.IsZero()}
}
