package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stxlabs/tracker-api/internal/platform/postgres"
	"github.com/stxlabs/tracker-api/internal/task"
)

var taskRowColumns = []string{
	"id", "type", "payload", "status", "run_at", "attempts", "error_message", "created_at", "updated_at",
}

func TestTaskStore_ClaimDueTasks(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Date(2030, 10, 10, 12, 30, 0, 0, time.UTC)
	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("SET status = $1, attempts = attempts + 1")+".*FOR UPDATE SKIP LOCKED").
		WithArgs("processing", now, "pending", 5).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow(id.String(), task.TaskTypeIssueDeadline, []byte(`{"issue_id":"x"}`), "processing", now, 1, "", now, now))

	s := postgres.NewPostgresTaskStore(db, discardLogger())
	claimed, err := s.ClaimDueTasks(context.Background(), now, 5)

	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
	assert.Equal(t, task.TaskStatusProcessing, claimed[0].Status)
	assert.Equal(t, 1, claimed[0].Attempts)
	assert.JSONEq(t, `{"issue_id":"x"}`, string(claimed[0].Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_CancelTask(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	id := uuid.New()
	s := postgres.NewPostgresTaskStore(db, discardLogger())

	mock.ExpectExec("UPDATE tasks SET status = \\$1, updated_at = \\$2 WHERE id = \\$3 AND status = \\$4").
		WithArgs("cancelled", sqlmock.AnyArg(), id, "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := s.CancelTask(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("UPDATE tasks SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = s.CancelTask(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok, "a task that is no longer pending is left alone")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_UpdateTaskStatusNotFound(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("UPDATE tasks").WillReturnResult(sqlmock.NewResult(0, 0))

	s := postgres.NewPostgresTaskStore(db, discardLogger())
	err = s.UpdateTaskStatus(context.Background(), uuid.New(), task.TaskStatusCompleted, "")

	assert.ErrorIs(t, err, task.ErrTaskNotFound)
}

func TestTaskStore_SaveTaskStoresEmptyPayloadAsNull(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rec := &task.Record{ID: uuid.New(), Type: task.TaskTypeSendNotification, Status: task.TaskStatusPending, RunAt: time.Now()}
	mock.ExpectExec("INSERT INTO tasks").
		WithArgs(rec.ID, rec.Type, nil, "pending", sqlmock.AnyArg(), 0, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := postgres.NewPostgresTaskStore(db, discardLogger())
	require.NoError(t, s.SaveTask(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}
