package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
	"github.com/stxlabs/tracker-api/internal/store"
)

// PostgresProjectStore implements the store.ProjectStore interface.
// Writes touching the member list issue several statements and should run
// on a store bound to a transaction.
type PostgresProjectStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresProjectStore creates a new PostgresProjectStore.
func NewPostgresProjectStore(db store.DBTX, logger *slog.Logger) *PostgresProjectStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresProjectStore{
		db:     db,
		logger: logger.With(slog.String("component", "project_store")),
	}
}

var _ store.ProjectStore = (*PostgresProjectStore)(nil)

// WithTx implements store.ProjectStore.WithTx
func (s *PostgresProjectStore) WithTx(tx *sql.Tx) store.ProjectStore {
	return &PostgresProjectStore{db: tx, logger: s.logger}
}

// Create implements store.ProjectStore.Create
func (s *PostgresProjectStore) Create(ctx context.Context, project *domain.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, owner_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, project.ID, project.Name, project.OwnerID, project.CreatedAt)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create project",
			slog.String("error", err.Error()),
			slog.String("project_id", project.ID.String()))
		return store.NewStoreError("project", "create", "failed to insert project", MapError(err))
	}

	return s.insertMembers(ctx, project)
}

func (s *PostgresProjectStore) insertMembers(ctx context.Context, project *domain.Project) error {
	for _, memberID := range project.MemberIDs {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO project_members (project_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, project.ID, memberID)
		if err != nil {
			if IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: user %s not found", store.ErrInvalidEntity, memberID)
			}
			return store.NewStoreError("project", "add_member", "failed to insert member", MapError(err))
		}
	}
	return nil
}

const projectSelect = `
	SELECT p.id, p.name, p.owner_id, p.created_at, string_agg(m.user_id::text, ',' ORDER BY m.user_id)
	FROM projects p
	LEFT JOIN project_members m ON m.project_id = p.id
`

func scanProject(row interface{ Scan(dest ...any) error }) (*domain.Project, error) {
	var p domain.Project
	var members sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.OwnerID, &p.CreatedAt, &members); err != nil {
		return nil, err
	}
	p.MemberIDs = []uuid.UUID{}
	if members.Valid && members.String != "" {
		for _, raw := range strings.Split(members.String, ",") {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid member id %q: %w", raw, err)
			}
			p.MemberIDs = append(p.MemberIDs, id)
		}
	}
	return &p, nil
}

// GetByID implements store.ProjectStore.GetByID
func (s *PostgresProjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	row := s.db.QueryRowContext(ctx, projectSelect+` WHERE p.id = $1 GROUP BY p.id`, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProjectNotFound
		}
		return nil, store.NewStoreError("project", "get", "failed to query project", MapError(err))
	}
	return p, nil
}

// ListForUser implements store.ProjectStore.ListForUser
func (s *PostgresProjectStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Project, error) {
	rows, err := s.db.QueryContext(ctx, projectSelect+`
		WHERE p.owner_id = $1
		   OR EXISTS (SELECT 1 FROM project_members pm WHERE pm.project_id = p.id AND pm.user_id = $1)
		GROUP BY p.id
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, store.NewStoreError("project", "list", "failed to query projects", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	projects := []*domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, store.NewStoreError("project", "list", "failed to scan project", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("project", "list", "failed to iterate projects", err)
	}
	return projects, nil
}

// Update implements store.ProjectStore.Update
func (s *PostgresProjectStore) Update(ctx context.Context, project *domain.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE projects SET name = $1 WHERE id = $2`, project.Name, project.ID)
	if err != nil {
		return store.NewStoreError("project", "update", "failed to update project", MapError(err))
	}
	if err := CheckRowsAffected(result, store.ErrProjectNotFound); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM project_members WHERE project_id = $1`, project.ID); err != nil {
		return store.NewStoreError("project", "update", "failed to clear members", MapError(err))
	}
	return s.insertMembers(ctx, project)
}

// Delete implements store.ProjectStore.Delete
func (s *PostgresProjectStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return store.NewStoreError("project", "delete", "failed to delete project", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrProjectNotFound)
}
