package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
)

// IssueStore defines the interface for issue data persistence.
type IssueStore interface {
	// Create saves a new issue.
	Create(ctx context.Context, issue *domain.Issue) error

	// GetByID retrieves an issue by ID.
	// Returns ErrIssueNotFound if the issue does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Issue, error)

	// GetForUpdate retrieves an issue and locks its row until the
	// surrounding transaction ends. Only meaningful on a store bound with WithTx.
	// Returns ErrIssueNotFound if the issue does not exist.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Issue, error)

	// ListByProject returns the issues of a project ordered by due date.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Issue, error)

	// ListForUser returns the issues of every project userID participates in,
	// ordered by due date.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Issue, error)

	// ListIDsByProject returns the IDs of a project's issues.
	ListIDsByProject(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error)

	// Update saves every mutable field of the issue.
	// Returns ErrIssueNotFound if the issue does not exist.
	Update(ctx context.Context, issue *domain.Issue) error

	// Delete removes an issue.
	// Returns ErrIssueNotFound if the issue does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new IssueStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) IssueStore
}
