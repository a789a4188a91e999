package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
)

// AttachmentStore defines the interface for attachment metadata persistence.
type AttachmentStore interface {
	Create(ctx context.Context, attachment *domain.Attachment) error

	// GetByID returns ErrAttachmentNotFound if the attachment does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Attachment, error)

	ListByIssue(ctx context.Context, issueID uuid.UUID) ([]*domain.Attachment, error)

	// Delete returns ErrAttachmentNotFound if the attachment does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	WithTx(tx *sql.Tx) AttachmentStore
}
