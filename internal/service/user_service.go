package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/notify"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
	"github.com/stxlabs/tracker-api/internal/service/auth"
	"github.com/stxlabs/tracker-api/internal/store"
)

// ActivationPath is the API path that activation links point to.
const ActivationPath = "/api/auth/activate"

// UserService provides account operations: registration, activation and
// credential checks.
type UserService interface {
	// Register creates an inactive user and mails them an activation link.
	// A failed activation mail is logged, the account is still created.
	Register(ctx context.Context, email, password string) (*domain.User, error)

	// Activate activates the account a verification token was issued for.
	// Activating an active account succeeds without changes.
	Activate(ctx context.Context, token string) (*domain.User, error)

	// Authenticate checks an email and password pair.
	// Returns ErrInvalidCredentials or ErrInactiveUser on failure.
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)

	// GetUser retrieves a user by their ID
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// UserServiceImpl implements the UserService interface
type UserServiceImpl struct {
	userStore  store.UserStore
	db         *sql.DB
	jwtService auth.JWTService
	verifier   auth.PasswordVerifier
	notifier   notify.Dispatcher
	publicURL  string
	logger     *slog.Logger
}

// NewUserService creates a new UserService. publicURL is the externally
// reachable base URL activation links are built on.
func NewUserService(
	userStore store.UserStore,
	db *sql.DB,
	jwtService auth.JWTService,
	verifier auth.PasswordVerifier,
	notifier notify.Dispatcher,
	publicURL string,
	logger *slog.Logger,
) *UserServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserServiceImpl{
		userStore:  userStore,
		db:         db,
		jwtService: jwtService,
		verifier:   verifier,
		notifier:   notifier,
		publicURL:  strings.TrimRight(publicURL, "/"),
		logger:     logger.With(slog.String("component", "user_service")),
	}
}

var _ UserService = (*UserServiceImpl)(nil)

// Register creates a new inactive user and sends the activation mail.
func (s *UserServiceImpl) Register(ctx context.Context, email, password string) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := domain.NewUser(strings.TrimSpace(email), password)
	if err != nil {
		return nil, NewServiceError("user", "register", invalid(err))
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return s.userStore.WithTx(tx).Create(ctx, user)
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			log.Debug("attempted to register existing email")
		} else {
			log.Error("failed to save user", slog.String("error", err.Error()))
		}
		return nil, NewServiceError("user", "register", err)
	}

	log.Info("user registered", slog.String("user_id", user.ID.String()))
	s.sendActivation(ctx, user)

	return user, nil
}

func (s *UserServiceImpl) sendActivation(ctx context.Context, user *domain.User) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	token, err := s.jwtService.GenerateVerificationToken(ctx, user.ID)
	if err != nil {
		log.Error("failed to generate verification token",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	link := s.publicURL + ActivationPath + "?token=" + url.QueryEscape(token)
	err = s.notifier.Notify(ctx, notify.Notification{
		To:      user.Email,
		Subject: notify.SubjectActivateAccount,
		Body:    "Follow this link to activate your account:\n\n" + link,
	})
	if err != nil {
		log.Error("failed to send activation mail",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()))
	}
}

// Activate activates the user a verification token belongs to.
func (s *UserServiceImpl) Activate(ctx context.Context, token string) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	claims, err := s.jwtService.ValidateVerificationToken(ctx, token)
	if err != nil {
		return nil, NewServiceError("user", "activate", err)
	}

	var user *domain.User
	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		txStore := s.userStore.WithTx(tx)

		user, err = txStore.GetByID(ctx, claims.UserID)
		if err != nil {
			return err
		}
		if user.IsActive {
			return nil
		}
		user.Activate()
		return txStore.Update(ctx, user)
	})
	if err != nil {
		log.Error("failed to activate user",
			slog.String("user_id", claims.UserID.String()),
			slog.String("error", err.Error()))
		return nil, NewServiceError("user", "activate", err)
	}

	log.Info("user activated", slog.String("user_id", user.ID.String()))
	return user, nil
}

// Authenticate returns the user with the given credentials.
func (s *UserServiceImpl) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.userStore.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, NewServiceError("user", "authenticate", err)
	}

	if err := s.verifier.Compare(user.HashedPassword, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// GetUser retrieves a user by their ID
func (s *UserServiceImpl) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userStore.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return user, nil
}
