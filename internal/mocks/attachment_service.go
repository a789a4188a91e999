package mocks

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
)

// MockAttachmentService mocks the attachment operations used by the API
// handlers.
type MockAttachmentService struct {
	UploadFn func(
		ctx context.Context,
		userID, issueID uuid.UUID,
		fileName, contentType string,
		r io.Reader,
	) (*domain.Attachment, error)
	ListFn   func(ctx context.Context, userID, issueID uuid.UUID) ([]*domain.Attachment, error)
	DeleteFn func(ctx context.Context, userID, attachmentID uuid.UUID) error
}

func (m *MockAttachmentService) Upload(
	ctx context.Context,
	userID, issueID uuid.UUID,
	fileName, contentType string,
	r io.Reader,
) (*domain.Attachment, error) {
	if m.UploadFn != nil {
		return m.UploadFn(ctx, userID, issueID, fileName, contentType, r)
	}
	return nil, nil
}

func (m *MockAttachmentService) List(ctx context.Context, userID, issueID uuid.UUID) ([]*domain.Attachment, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, userID, issueID)
	}
	return nil, nil
}

func (m *MockAttachmentService) Delete(ctx context.Context, userID, attachmentID uuid.UUID) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, userID, attachmentID)
	}
	return nil
}
