package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/service"
)

// MockUserService implements service.UserService for testing.
type MockUserService struct {
	RegisterFn     func(ctx context.Context, email, password string) (*domain.User, error)
	ActivateFn     func(ctx context.Context, token string) (*domain.User, error)
	AuthenticateFn func(ctx context.Context, email, password string) (*domain.User, error)
	GetUserFn      func(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// User and Err are returned by methods without a custom function.
	User *domain.User
	Err  error
}

// Register implements service.UserService.
func (m *MockUserService) Register(ctx context.Context, email, password string) (*domain.User, error) {
	if m.RegisterFn != nil {
		return m.RegisterFn(ctx, email, password)
	}
	return m.User, m.Err
}

// Activate implements service.UserService.
func (m *MockUserService) Activate(ctx context.Context, token string) (*domain.User, error) {
	if m.ActivateFn != nil {
		return m.ActivateFn(ctx, token)
	}
	return m.User, m.Err
}

// Authenticate implements service.UserService.
func (m *MockUserService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	if m.AuthenticateFn != nil {
		return m.AuthenticateFn(ctx, email, password)
	}
	return m.User, m.Err
}

// GetUser implements service.UserService.
func (m *MockUserService) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if m.GetUserFn != nil {
		return m.GetUserFn(ctx, userID)
	}
	return m.User, m.Err
}

var _ service.UserService = (*MockUserService)(nil)
