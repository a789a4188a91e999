package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
	"github.com/stxlabs/tracker-api/internal/store"
)

// FileStorage stores attachment bytes.
type FileStorage interface {
	// Save writes at most limit bytes from r to path and returns the size written.
	Save(ctx context.Context, path string, r io.Reader, limit int64) (int64, error)
	// Remove deletes the file at path; a missing file is not an error.
	Remove(ctx context.Context, path string) error
}

// AttachmentService manages issue attachments. Access follows the issue:
// participants of the issue's project may upload, list and delete.
type AttachmentService struct {
	attachments store.AttachmentStore
	issues      *IssueService
	files       FileStorage
	maxSize     int64
	logger      *slog.Logger
}

// NewAttachmentService creates a new AttachmentService accepting files of
// up to maxSize bytes.
func NewAttachmentService(
	attachments store.AttachmentStore,
	issues *IssueService,
	files FileStorage,
	maxSize int64,
	logger *slog.Logger,
) *AttachmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentService{
		attachments: attachments,
		issues:      issues,
		files:       files,
		maxSize:     maxSize,
		logger:      logger.With(slog.String("component", "attachment_service")),
	}
}

// Upload stores the content of r as a new attachment of an issue.
func (s *AttachmentService) Upload(
	ctx context.Context,
	userID, issueID uuid.UUID,
	fileName, contentType string,
	r io.Reader,
) (*domain.Attachment, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if _, err := s.issues.Get(ctx, userID, issueID); err != nil {
		return nil, NewServiceError("attachment", "upload", err)
	}

	a, err := domain.NewAttachment(issueID, userID, fileName, contentType, 0)
	if err != nil {
		return nil, NewServiceError("attachment", "upload", invalid(err))
	}

	a.Size, err = s.files.Save(ctx, a.StoragePath, r, s.maxSize)
	if err != nil {
		return nil, NewServiceError("attachment", "upload", err)
	}

	if err := s.attachments.Create(ctx, a); err != nil {
		if rmErr := s.files.Remove(ctx, a.StoragePath); rmErr != nil {
			log.Warn("failed to remove orphaned attachment file",
				slog.String("path", a.StoragePath),
				slog.String("error", rmErr.Error()))
		}
		return nil, NewServiceError("attachment", "upload", err)
	}

	log.Info("attachment uploaded",
		slog.String("attachment_id", a.ID.String()),
		slog.String("issue_id", issueID.String()),
		slog.Int64("size", a.Size))
	return a, nil
}

// List returns the attachments of an issue.
func (s *AttachmentService) List(ctx context.Context, userID, issueID uuid.UUID) ([]*domain.Attachment, error) {
	if _, err := s.issues.Get(ctx, userID, issueID); err != nil {
		return nil, NewServiceError("attachment", "list", err)
	}
	attachments, err := s.attachments.ListByIssue(ctx, issueID)
	if err != nil {
		return nil, NewServiceError("attachment", "list", err)
	}
	return attachments, nil
}

// Delete removes an attachment and its file.
func (s *AttachmentService) Delete(ctx context.Context, userID, attachmentID uuid.UUID) error {
	a, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return NewServiceError("attachment", "delete", err)
	}
	if _, err := s.issues.Get(ctx, userID, a.IssueID); err != nil {
		if store.IsNotFoundError(err) {
			err = store.ErrAttachmentNotFound
		}
		return NewServiceError("attachment", "delete", err)
	}

	if err := s.attachments.Delete(ctx, attachmentID); err != nil {
		return NewServiceError("attachment", "delete", err)
	}
	if err := s.files.Remove(ctx, a.StoragePath); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to remove attachment file",
			slog.String("path", a.StoragePath),
			slog.String("error", err.Error()))
	}
	return nil
}
