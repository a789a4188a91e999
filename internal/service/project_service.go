package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
	"github.com/stxlabs/tracker-api/internal/store"
)

// ProjectUpdate holds the fields of a project update. Nil fields are left unchanged.
type ProjectUpdate struct {
	Name      *string
	MemberIDs *[]uuid.UUID
}

// ProjectService manages projects. Owners and members can read a project;
// only the owner can change or delete it. Users outside a project get
// store.ErrProjectNotFound, as if it did not exist.
type ProjectService struct {
	projects  store.ProjectStore
	issues    store.IssueStore
	users     store.UserStore
	deadlines *DeadlineService
	logger    *slog.Logger
}

// NewProjectService creates a new ProjectService.
func NewProjectService(
	projects store.ProjectStore,
	issues store.IssueStore,
	users store.UserStore,
	deadlines *DeadlineService,
	logger *slog.Logger,
) *ProjectService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectService{
		projects:  projects,
		issues:    issues,
		users:     users,
		deadlines: deadlines,
		logger:    logger.With(slog.String("component", "project_service")),
	}
}

// Create creates a project owned by userID.
func (s *ProjectService) Create(ctx context.Context, userID uuid.UUID, name string, memberIDs []uuid.UUID) (*domain.Project, error) {
	project, err := domain.NewProject(userID, name, memberIDs)
	if err != nil {
		return nil, NewServiceError("project", "create", invalid(err))
	}
	if err := s.checkUsersExist(ctx, project.MemberIDs); err != nil {
		return nil, NewServiceError("project", "create", err)
	}

	if err := s.projects.Create(ctx, project); err != nil {
		return nil, NewServiceError("project", "create", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("project created",
		slog.String("project_id", project.ID.String()),
		slog.Int("member_count", len(project.MemberIDs)))
	return project, nil
}

// Get returns a project userID participates in.
func (s *ProjectService) Get(ctx context.Context, userID, projectID uuid.UUID) (*domain.Project, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, NewServiceError("project", "get", err)
	}
	if !project.IsParticipant(userID) {
		return nil, NewServiceError("project", "get", store.ErrProjectNotFound)
	}
	return project, nil
}

// List returns the projects userID owns or is a member of.
func (s *ProjectService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Project, error) {
	projects, err := s.projects.ListForUser(ctx, userID)
	if err != nil {
		return nil, NewServiceError("project", "list", err)
	}
	return projects, nil
}

// Update changes the name or member list of a project. Only the owner may do this.
func (s *ProjectService) Update(ctx context.Context, userID, projectID uuid.UUID, upd ProjectUpdate) (*domain.Project, error) {
	project, err := s.ownedProject(ctx, userID, projectID, "update")
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		project.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.MemberIDs != nil {
		project.SetMembers(*upd.MemberIDs)
		if err := s.checkUsersExist(ctx, project.MemberIDs); err != nil {
			return nil, NewServiceError("project", "update", err)
		}
	}
	if err := project.Validate(); err != nil {
		return nil, NewServiceError("project", "update", invalid(err))
	}

	if err := s.projects.Update(ctx, project); err != nil {
		return nil, NewServiceError("project", "update", err)
	}
	return project, nil
}

// Delete removes a project and its issues. The deadline reminders of the
// issues are cancelled first.
func (s *ProjectService) Delete(ctx context.Context, userID, projectID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if _, err := s.ownedProject(ctx, userID, projectID, "delete"); err != nil {
		return err
	}

	issueIDs, err := s.issues.ListIDsByProject(ctx, projectID)
	if err != nil {
		return NewServiceError("project", "delete", err)
	}
	for _, id := range issueIDs {
		if err := s.deadlines.CancelForIssue(ctx, id); err != nil {
			return NewServiceError("project", "delete", err)
		}
	}

	if err := s.projects.Delete(ctx, projectID); err != nil {
		return NewServiceError("project", "delete", err)
	}

	log.Info("project deleted",
		slog.String("project_id", projectID.String()),
		slog.Int("issue_count", len(issueIDs)))
	return nil
}

// Issues returns the issues of a project userID participates in.
func (s *ProjectService) Issues(ctx context.Context, userID, projectID uuid.UUID) ([]*domain.Issue, error) {
	if _, err := s.Get(ctx, userID, projectID); err != nil {
		return nil, err
	}
	issues, err := s.issues.ListByProject(ctx, projectID)
	if err != nil {
		return nil, NewServiceError("project", "issues", err)
	}
	return issues, nil
}

// ownedProject loads a project and checks that userID owns it. Members get
// ErrNotOwned, everybody else store.ErrProjectNotFound.
func (s *ProjectService) ownedProject(ctx context.Context, userID, projectID uuid.UUID, op string) (*domain.Project, error) {
	project, err := s.Get(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsOwner(userID) {
		return nil, NewServiceError("project", op, ErrNotOwned)
	}
	return project, nil
}

func (s *ProjectService) checkUsersExist(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(users) != len(ids) {
		return domain.NewValidationError("member_ids", fmt.Sprintf("%d unknown user(s)", len(ids)-len(users)))
	}
	return nil
}
