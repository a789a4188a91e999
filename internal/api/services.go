package api

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/service"
)

// ProjectService is the project API the handlers depend on.
type ProjectService interface {
	Create(ctx context.Context, userID uuid.UUID, name string, memberIDs []uuid.UUID) (*domain.Project, error)
	Get(ctx context.Context, userID, projectID uuid.UUID) (*domain.Project, error)
	List(ctx context.Context, userID uuid.UUID) ([]*domain.Project, error)
	Update(ctx context.Context, userID, projectID uuid.UUID, upd service.ProjectUpdate) (*domain.Project, error)
	Delete(ctx context.Context, userID, projectID uuid.UUID) error
	Issues(ctx context.Context, userID, projectID uuid.UUID) ([]*domain.Issue, error)
}

// IssueService is the issue API the handlers depend on.
type IssueService interface {
	Create(ctx context.Context, userID uuid.UUID, in service.NewIssueInput) (*domain.Issue, error)
	Get(ctx context.Context, userID, issueID uuid.UUID) (*domain.Issue, error)
	List(ctx context.Context, userID uuid.UUID) ([]*domain.Issue, error)
	Update(ctx context.Context, userID, issueID uuid.UUID, upd service.IssueUpdate) (*domain.Issue, error)
	Delete(ctx context.Context, userID, issueID uuid.UUID) error
}

// AttachmentService is the attachment API the handlers depend on.
type AttachmentService interface {
	Upload(ctx context.Context, userID, issueID uuid.UUID, fileName, contentType string, r io.Reader) (*domain.Attachment, error)
	List(ctx context.Context, userID, issueID uuid.UUID) ([]*domain.Attachment, error)
	Delete(ctx context.Context, userID, attachmentID uuid.UUID) error
}

var (
	_ ProjectService    = (*service.ProjectService)(nil)
	_ IssueService      = (*service.IssueService)(nil)
	_ AttachmentService = (*service.AttachmentService)(nil)
)
