package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/service"
)

// MockIssueService mocks the issue operations used by the API handlers.
type MockIssueService struct {
	CreateFn func(ctx context.Context, userID uuid.UUID, in service.NewIssueInput) (*domain.Issue, error)
	GetFn    func(ctx context.Context, userID, issueID uuid.UUID) (*domain.Issue, error)
	ListFn   func(ctx context.Context, userID uuid.UUID) ([]*domain.Issue, error)
	UpdateFn func(ctx context.Context, userID, issueID uuid.UUID, upd service.IssueUpdate) (*domain.Issue, error)
	DeleteFn func(ctx context.Context, userID, issueID uuid.UUID) error
}

func (m *MockIssueService) Create(ctx context.Context, userID uuid.UUID, in service.NewIssueInput) (*domain.Issue, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, userID, in)
	}
	return nil, nil
}

func (m *MockIssueService) Get(ctx context.Context, userID, issueID uuid.UUID) (*domain.Issue, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, userID, issueID)
	}
	return nil, nil
}

func (m *MockIssueService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Issue, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, userID)
	}
	return nil, nil
}

func (m *MockIssueService) Update(
	ctx context.Context,
	userID, issueID uuid.UUID,
	upd service.IssueUpdate,
) (*domain.Issue, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, userID, issueID, upd)
	}
	return nil, nil
}

func (m *MockIssueService) Delete(ctx context.Context, userID, issueID uuid.UUID) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, userID, issueID)
	}
	return nil
}
