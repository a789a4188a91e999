// Package mocks provides hand-written test doubles for the service
// interfaces the HTTP layer depends on.
//
// Every mock has one XxxFn field per method. A nil field falls back to a
// zero result, or to the default values on the struct where it has them:
//
//	users := &mocks.MockUserService{
//	    AuthenticateFn: func(ctx context.Context, email, password string) (*domain.User, error) {
//	        return nil, service.ErrInvalidCredentials
//	    },
//	}
package mocks
