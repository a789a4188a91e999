package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/service"
)

// MockProjectService mocks the project operations used by the API handlers.
type MockProjectService struct {
	CreateFn func(ctx context.Context, userID uuid.UUID, name string, memberIDs []uuid.UUID) (*domain.Project, error)
	GetFn    func(ctx context.Context, userID, projectID uuid.UUID) (*domain.Project, error)
	ListFn   func(ctx context.Context, userID uuid.UUID) ([]*domain.Project, error)
	UpdateFn func(ctx context.Context, userID, projectID uuid.UUID, upd service.ProjectUpdate) (*domain.Project, error)
	DeleteFn func(ctx context.Context, userID, projectID uuid.UUID) error
	IssuesFn func(ctx context.Context, userID, projectID uuid.UUID) ([]*domain.Issue, error)
}

func (m *MockProjectService) Create(
	ctx context.Context,
	userID uuid.UUID,
	name string,
	memberIDs []uuid.UUID,
) (*domain.Project, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, userID, name, memberIDs)
	}
	return nil, nil
}

func (m *MockProjectService) Get(ctx context.Context, userID, projectID uuid.UUID) (*domain.Project, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, userID, projectID)
	}
	return nil, nil
}

func (m *MockProjectService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Project, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, userID)
	}
	return nil, nil
}

func (m *MockProjectService) Update(
	ctx context.Context,
	userID, projectID uuid.UUID,
	upd service.ProjectUpdate,
) (*domain.Project, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, userID, projectID, upd)
	}
	return nil, nil
}

func (m *MockProjectService) Delete(ctx context.Context, userID, projectID uuid.UUID) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, userID, projectID)
	}
	return nil
}

func (m *MockProjectService) Issues(ctx context.Context, userID, projectID uuid.UUID) ([]*domain.Issue, error) {
	if m.IssuesFn != nil {
		return m.IssuesFn(ctx, userID, projectID)
	}
	return nil, nil
}
