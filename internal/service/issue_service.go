package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
	"github.com/stxlabs/tracker-api/internal/store"
)

// NewIssueInput holds the fields of a new issue.
type NewIssueInput struct {
	ProjectID   uuid.UUID
	Title       string
	Description string
	AssigneeID  *uuid.UUID
	DueDate     time.Time
}

// IssueUpdate holds the fields of an issue update. Nil fields are left
// unchanged. The assignee is replaced only when AssigneeSet is true, so a
// nil AssigneeID together with AssigneeSet unassigns the issue.
type IssueUpdate struct {
	Title       *string
	Description *string
	Status      *domain.IssueStatus
	DueDate     *time.Time
	AssigneeSet bool
	AssigneeID  *uuid.UUID
}

// IssueService manages issues. Every participant of a project may create,
// change and delete its issues. Every write hands the resulting changes to
// the DeadlineService.
type IssueService struct {
	issues    store.IssueStore
	projects  store.ProjectStore
	db        *sql.DB
	deadlines *DeadlineService
	logger    *slog.Logger
}

// NewIssueService creates a new IssueService.
func NewIssueService(
	issues store.IssueStore,
	projects store.ProjectStore,
	db *sql.DB,
	deadlines *DeadlineService,
	logger *slog.Logger,
) *IssueService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IssueService{
		issues:    issues,
		projects:  projects,
		db:        db,
		deadlines: deadlines,
		logger:    logger.With(slog.String("component", "issue_service")),
	}
}

// Create creates an issue in a project userID participates in.
//
// When the issue was saved but its deadline reminder could not be
// scheduled, Create returns the issue together with an error matching
// ErrScheduleFailed.
func (s *IssueService) Create(ctx context.Context, userID uuid.UUID, in NewIssueInput) (*domain.Issue, error) {
	project, err := s.participantProject(ctx, s.projects, userID, in.ProjectID)
	if err != nil {
		return nil, NewServiceError("issue", "create", err)
	}
	if in.AssigneeID != nil && !project.IsParticipant(*in.AssigneeID) {
		return nil, NewServiceError("issue", "create", ErrAssigneeNotParticipant)
	}

	issue, err := domain.NewIssue(in.ProjectID, userID, in.Title, in.Description, in.AssigneeID, in.DueDate)
	if err != nil {
		return nil, NewServiceError("issue", "create", invalid(err))
	}
	if err := s.issues.Create(ctx, issue); err != nil {
		return nil, NewServiceError("issue", "create", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("issue created",
		slog.String("issue_id", issue.ID.String()),
		slog.String("project_id", issue.ProjectID.String()))

	if err := s.deadlines.ApplyChanges(ctx, issue, domain.DiffIssue(nil, issue.Snapshot())); err != nil {
		return issue, NewServiceError("issue", "create", err)
	}
	return issue, nil
}

// Update applies upd to an issue. The issue row stays locked from the read
// of its previous state until the write commits, so the diff handed to the
// DeadlineService is exact.
//
// Like Create, Update returns the saved issue together with an error
// matching ErrScheduleFailed when only the reminder failed.
func (s *IssueService) Update(ctx context.Context, userID, issueID uuid.UUID, upd IssueUpdate) (*domain.Issue, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var issue *domain.Issue
	var changes domain.IssueChanges

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		txIssues := s.issues.WithTx(tx)

		current, err := txIssues.GetForUpdate(ctx, issueID)
		if err != nil {
			return err
		}
		project, err := s.participantProject(ctx, s.projects.WithTx(tx), userID, current.ProjectID)
		if err != nil {
			return hideProject(err)
		}

		prev := current.Snapshot()
		if err := applyIssueUpdate(current, upd, project); err != nil {
			return err
		}
		current.UpdatedAt = time.Now().UTC()

		if err := txIssues.Update(ctx, current); err != nil {
			return err
		}

		issue = current
		changes = domain.DiffIssue(&prev, current.Snapshot())
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrValidation) && !store.IsNotFoundError(err) {
			log.Error("failed to update issue",
				slog.String("issue_id", issueID.String()),
				slog.String("error", err.Error()))
		}
		return nil, NewServiceError("issue", "update", err)
	}

	log.Debug("issue updated",
		slog.String("issue_id", issueID.String()),
		slog.Bool("assignee_changed", changes.AssigneeChanged),
		slog.Bool("due_date_changed", changes.DueDateChanged))

	if err := s.deadlines.ApplyChanges(ctx, issue, changes); err != nil {
		return issue, NewServiceError("issue", "update", err)
	}
	return issue, nil
}

func applyIssueUpdate(issue *domain.Issue, upd IssueUpdate, project *domain.Project) error {
	if upd.Title != nil {
		issue.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Description != nil {
		issue.Description = *upd.Description
	}
	if upd.Status != nil {
		issue.Status = *upd.Status
	}
	if upd.DueDate != nil {
		issue.DueDate = upd.DueDate.UTC()
	}
	if upd.AssigneeSet {
		if upd.AssigneeID != nil && !project.IsParticipant(*upd.AssigneeID) {
			return ErrAssigneeNotParticipant
		}
		issue.AssigneeID = upd.AssigneeID
	}
	if err := issue.Validate(); err != nil {
		return invalid(err)
	}
	return nil
}

// Delete removes an issue after cancelling its deadline reminder.
func (s *IssueService) Delete(ctx context.Context, userID, issueID uuid.UUID) error {
	if _, err := s.Get(ctx, userID, issueID); err != nil {
		return err
	}

	if err := s.deadlines.CancelForIssue(ctx, issueID); err != nil {
		return NewServiceError("issue", "delete", err)
	}
	if err := s.issues.Delete(ctx, issueID); err != nil {
		return NewServiceError("issue", "delete", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("issue deleted",
		slog.String("issue_id", issueID.String()))
	return nil
}

// Get returns an issue of a project userID participates in.
func (s *IssueService) Get(ctx context.Context, userID, issueID uuid.UUID) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, NewServiceError("issue", "get", err)
	}
	if _, err := s.participantProject(ctx, s.projects, userID, issue.ProjectID); err != nil {
		return nil, NewServiceError("issue", "get", hideProject(err))
	}
	return issue, nil
}

// List returns the issues of every project userID participates in.
func (s *IssueService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Issue, error) {
	issues, err := s.issues.ListForUser(ctx, userID)
	if err != nil {
		return nil, NewServiceError("issue", "list", err)
	}
	return issues, nil
}

func (s *IssueService) participantProject(
	ctx context.Context,
	projects store.ProjectStore,
	userID, projectID uuid.UUID,
) (*domain.Project, error) {
	project, err := projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsParticipant(userID) {
		return nil, store.ErrProjectNotFound
	}
	return project, nil
}

// hideProject reports an issue of a foreign project as a missing issue.
func hideProject(err error) error {
	if errors.Is(err, store.ErrProjectNotFound) {
		return store.ErrIssueNotFound
	}
	return err
}
