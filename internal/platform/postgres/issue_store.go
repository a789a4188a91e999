package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
	"github.com/stxlabs/tracker-api/internal/store"
)

// PostgresIssueStore implements the store.IssueStore interface.
type PostgresIssueStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresIssueStore creates a new PostgresIssueStore.
func NewPostgresIssueStore(db store.DBTX, logger *slog.Logger) *PostgresIssueStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresIssueStore{
		db:     db,
		logger: logger.With(slog.String("component", "issue_store")),
	}
}

var _ store.IssueStore = (*PostgresIssueStore)(nil)

// WithTx implements store.IssueStore.WithTx
func (s *PostgresIssueStore) WithTx(tx *sql.Tx) store.IssueStore {
	return &PostgresIssueStore{db: tx, logger: s.logger}
}

// Create implements store.IssueStore.Create
func (s *PostgresIssueStore) Create(ctx context.Context, issue *domain.Issue) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := issue.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issues (id, project_id, owner_id, assignee_id, title, description, status, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		issue.ID,
		issue.ProjectID,
		issue.OwnerID,
		nullUUID(issue.AssigneeID),
		issue.Title,
		issue.Description,
		string(issue.Status),
		issue.DueDate,
		issue.CreatedAt,
		issue.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create issue",
			slog.String("error", err.Error()),
			slog.String("issue_id", issue.ID.String()))
		return store.NewStoreError("issue", "create", "failed to insert issue", MapError(err))
	}

	log.Debug("issue created", slog.String("issue_id", issue.ID.String()))
	return nil
}

const issueColumns = `id, project_id, owner_id, assignee_id, title, description, status, due_date, created_at, updated_at`

func scanIssue(row interface{ Scan(dest ...any) error }) (*domain.Issue, error) {
	var i domain.Issue
	var assignee uuid.NullUUID
	var status string
	if err := row.Scan(
		&i.ID,
		&i.ProjectID,
		&i.OwnerID,
		&assignee,
		&i.Title,
		&i.Description,
		&status,
		&i.DueDate,
		&i.CreatedAt,
		&i.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if assignee.Valid {
		id := assignee.UUID
		i.AssigneeID = &id
	}
	i.Status = domain.IssueStatus(status)
	i.DueDate = i.DueDate.UTC()
	return &i, nil
}

// GetByID implements store.IssueStore.GetByID
func (s *PostgresIssueStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	return s.getOne(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = $1`, id)
}

// GetForUpdate implements store.IssueStore.GetForUpdate.
// FOR NO KEY UPDATE leaves foreign key checks against the row unblocked.
func (s *PostgresIssueStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	return s.getOne(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = $1 FOR NO KEY UPDATE`, id)
}

func (s *PostgresIssueStore) getOne(ctx context.Context, query string, id uuid.UUID) (*domain.Issue, error) {
	issue, err := scanIssue(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrIssueNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get issue",
			slog.String("error", err.Error()),
			slog.String("issue_id", id.String()))
		return nil, store.NewStoreError("issue", "get", "failed to query issue", MapError(err))
	}
	return issue, nil
}

// ListByProject implements store.IssueStore.ListByProject
func (s *PostgresIssueStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Issue, error) {
	return s.list(ctx, `SELECT `+issueColumns+` FROM issues WHERE project_id = $1 ORDER BY due_date, created_at`, projectID)
}

// ListForUser implements store.IssueStore.ListForUser
func (s *PostgresIssueStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Issue, error) {
	return s.list(ctx, `
		SELECT `+issueColumns+` FROM issues i
		WHERE EXISTS (
			SELECT 1 FROM projects p
			WHERE p.id = i.project_id
			  AND (p.owner_id = $1
			       OR EXISTS (SELECT 1 FROM project_members pm WHERE pm.project_id = p.id AND pm.user_id = $1))
		)
		ORDER BY due_date, created_at
	`, userID)
}

func (s *PostgresIssueStore) list(ctx context.Context, query string, arg uuid.UUID) ([]*domain.Issue, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, store.NewStoreError("issue", "list", "failed to query issues", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	issues := []*domain.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, store.NewStoreError("issue", "list", "failed to scan issue", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("issue", "list", "failed to iterate issues", err)
	}
	return issues, nil
}

// ListIDsByProject implements store.IssueStore.ListIDsByProject
func (s *PostgresIssueStore) ListIDsByProject(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM issues WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, store.NewStoreError("issue", "list_ids", "failed to query issue ids", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, store.NewStoreError("issue", "list_ids", "failed to scan issue id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Update implements store.IssueStore.Update
func (s *PostgresIssueStore) Update(ctx context.Context, issue *domain.Issue) error {
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	issue.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE issues
		SET assignee_id = $1, title = $2, description = $3, status = $4, due_date = $5, updated_at = $6
		WHERE id = $7
	`,
		nullUUID(issue.AssigneeID),
		issue.Title,
		issue.Description,
		string(issue.Status),
		issue.DueDate,
		issue.UpdatedAt,
		issue.ID,
	)
	if err != nil {
		return store.NewStoreError("issue", "update", "failed to update issue", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrIssueNotFound)
}

// Delete implements store.IssueStore.Delete
func (s *PostgresIssueStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM issues WHERE id = $1`, id)
	if err != nil {
		return store.NewStoreError("issue", "delete", "failed to delete issue", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrIssueNotFound)
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
