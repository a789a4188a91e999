package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/stxlabs/tracker-api/internal/config"
	"github.com/stxlabs/tracker-api/internal/notify"
	"github.com/stxlabs/tracker-api/internal/platform/postgres"
	"github.com/stxlabs/tracker-api/internal/service"
	"github.com/stxlabs/tracker-api/internal/service/auth"
	"github.com/stxlabs/tracker-api/internal/storage"
	"github.com/stxlabs/tracker-api/internal/task"
)

// application holds the shared dependencies of the server.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jwtService auth.JWTService

	userService       service.UserService
	projectService    *service.ProjectService
	issueService      *service.IssueService
	attachmentService *service.AttachmentService

	taskRunner *task.Runner
}

// newApplication wires stores, services and the task runner. The runner is
// not started yet.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		slog.Int("token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes))

	userStore := postgres.NewPostgresUserStore(db, cfg.Auth.BCryptCost, logger)
	projectStore := postgres.NewPostgresProjectStore(db, logger)
	issueStore := postgres.NewPostgresIssueStore(db, logger)
	attachmentStore := postgres.NewPostgresAttachmentStore(db, logger)
	deadlineStore := postgres.NewPostgresDeadlineStore(db, logger)
	taskStore := postgres.NewPostgresTaskStore(db, logger)

	app.taskRunner = task.NewRunner(taskStore, runnerConfig(cfg.Task), logger)

	mailer, err := newMailer(ctx, cfg.Mail, logger)
	if err != nil {
		return nil, err
	}
	mailDispatcher := notify.NewMailDispatcher(mailer, cfg.Mail.From, logger)
	queued := notify.NewQueuedDispatcher(app.taskRunner, logger)

	deadlines := service.NewDeadlineService(issueStore, userStore, deadlineStore, app.taskRunner, queued, logger)

	app.taskRunner.Register(task.TaskTypeIssueDeadline, deadlines.HandleDeadline)
	app.taskRunner.Register(task.TaskTypeSendNotification, notify.DeliveryHandler(mailDispatcher))

	files, err := storage.NewOSFileStore(cfg.Storage.AttachmentsDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize attachment storage: %w", err)
	}

	app.userService = service.NewUserService(userStore, db, app.jwtService, auth.NewBcryptVerifier(),
		queued, cfg.Server.PublicURL, logger)
	app.projectService = service.NewProjectService(projectStore, issueStore, userStore, deadlines, logger)
	app.issueService = service.NewIssueService(issueStore, projectStore, db, deadlines, logger)
	app.attachmentService = service.NewAttachmentService(attachmentStore, app.issueService, files,
		maxUploadBytes(cfg.Storage), logger)

	logger.Info("application initialized")
	return app, nil
}

func runnerConfig(cfg config.TaskConfig) task.RunnerConfig {
	rc := task.DefaultRunnerConfig()
	rc.WorkerCount = cfg.WorkerCount
	rc.QueueSize = cfg.QueueSize
	rc.PollInterval = time.Duration(cfg.PollIntervalSeconds) * time.Second
	rc.StuckTaskAge = time.Duration(cfg.StuckTaskAgeMinutes) * time.Minute
	rc.MaxAttempts = cfg.MaxAttempts
	return rc
}

func maxUploadBytes(cfg config.StorageConfig) int64 {
	return int64(cfg.MaxUploadMB) << 20
}

// newMailer returns the mail transport selected by cfg.Transport.
func newMailer(ctx context.Context, cfg config.MailConfig, logger *slog.Logger) (notify.Mailer, error) {
	switch cfg.Transport {
	case "log":
		return notify.NewLogMailer(logger), nil
	case "smtp":
		return notify.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password), nil
	case "gmail":
		m, err := notify.NewGmailMailer(ctx, cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gmail mailer: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}

// cleanup releases application resources.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}
	app.logger.Info("application shutdown completed")
}
