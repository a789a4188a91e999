package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/notify"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
	"github.com/stxlabs/tracker-api/internal/store"
	"github.com/stxlabs/tracker-api/internal/task"
)

// deadlinePayload is the payload of an issue_deadline task. DueDate is the
// due date the task was scheduled for.
type deadlinePayload struct {
	IssueID uuid.UUID `json:"issue_id"`
	DueDate time.Time `json:"due_date"`
}

// DeadlineService sends assignment notifications and keeps exactly one
// deadline reminder scheduled per assigned issue.
type DeadlineService struct {
	issues    store.IssueStore
	users     store.UserStore
	deadlines store.DeadlineStore
	scheduler task.TxScheduler
	notifier  notify.Dispatcher
	backoff   func() retry.Backoff
	logger    *slog.Logger
}

// NewDeadlineService creates a new DeadlineService.
func NewDeadlineService(
	issues store.IssueStore,
	users store.UserStore,
	deadlines store.DeadlineStore,
	scheduler task.TxScheduler,
	notifier notify.Dispatcher,
	logger *slog.Logger,
) *DeadlineService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeadlineService{
		issues:    issues,
		users:     users,
		deadlines: deadlines,
		scheduler: scheduler,
		notifier:  notifier,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.NewExponential(50*time.Millisecond))
		},
		logger: logger.With(slog.String("component", "deadline_service")),
	}
}

// ApplyChanges reacts to a saved issue write. It notifies the new and the
// previous assignee and, when needed, replaces the issue's deadline reminder.
//
// Notification failures are logged and never returned. A reminder that
// could not be scheduled is reported as ErrScheduleFailed; the issue write
// stands either way.
func (s *DeadlineService) ApplyChanges(ctx context.Context, issue *domain.Issue, changes domain.IssueChanges) error {
	s.notifyAssignees(ctx, issue, changes)

	if !changes.NeedsReschedule() {
		return nil
	}
	return s.reschedule(ctx, issue.ID)
}

func (s *DeadlineService) notifyAssignees(ctx context.Context, issue *domain.Issue, changes domain.IssueChanges) {
	if !changes.AssigneeChanged {
		return
	}
	if changes.CurrentAssignee != nil {
		s.notifyUser(ctx, *changes.CurrentAssignee, notify.SubjectNewAssignment,
			fmt.Sprintf("You have been assigned to the issue %q.", issue.Title))
	}
	if changes.PreviousAssignee != nil {
		s.notifyUser(ctx, *changes.PreviousAssignee, notify.SubjectAssignmentRemoved,
			fmt.Sprintf("You are no longer assigned to the issue %q.", issue.Title))
	}
}

func (s *DeadlineService) notifyUser(ctx context.Context, userID uuid.UUID, subject, body string) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		log.Warn("cannot notify user",
			slog.String("user_id", userID.String()),
			slog.String("subject", subject),
			slog.String("error", err.Error()))
		return
	}

	err = s.notifier.Notify(ctx, notify.Notification{To: user.Email, Subject: subject, Body: body})
	if err != nil {
		log.Error("notification failed",
			slog.String("user_id", userID.String()),
			slog.String("subject", subject),
			slog.Bool("delivery_error", errors.Is(err, notify.ErrDelivery)),
			slog.String("error", err.Error()))
	}
}

// reschedule cancels the reminder registered for an issue and schedules a
// new one from the issue's current persisted state. The cancel, the issue
// read and the new task row share the registry transaction, so a worker can
// only claim the new task once the registry holds its handle. Failed
// attempts are retried in a fresh transaction.
func (s *DeadlineService) reschedule(ctx context.Context, issueID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var due bool
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		err := s.deadlines.Swap(ctx, issueID, func(ctx context.Context, tx *sql.Tx, current task.Handle) (task.Handle, error) {
			due = false
			scheduler := s.scheduler.WithTx(tx)
			if !current.IsZero() {
				scheduler.Cancel(ctx, current)
			}

			// The issue may have changed since the write that triggered this
			// call; the reminder follows what is stored now.
			issue, err := s.issues.WithTx(tx).GetByID(ctx, issueID)
			if err != nil {
				if errors.Is(err, store.ErrIssueNotFound) {
					return "", nil
				}
				return "", fmt.Errorf("%w: %w", ErrScheduleFailed, err)
			}
			if !issue.HasAssignee() {
				log.Debug("issue has no assignee, no reminder scheduled",
					slog.String("issue_id", issueID.String()))
				return "", nil
			}

			h, err := s.schedule(ctx, scheduler, issue)
			if err != nil {
				return "", fmt.Errorf("%w: %w", ErrScheduleFailed, err)
			}

			log.Debug("deadline reminder scheduled",
				slog.String("issue_id", issueID.String()),
				slog.String("task_id", h.String()),
				slog.Time("run_at", issue.DueDate))
			due = !issue.DueDate.After(time.Now())
			return h, nil
		})
		if err != nil && !errors.Is(err, store.ErrIssueNotFound) {
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		if due {
			s.scheduler.Wake()
		}
		return nil
	case errors.Is(err, store.ErrIssueNotFound):
		return nil
	default:
		log.Error("failed to reschedule deadline reminder",
			slog.String("issue_id", issueID.String()),
			slog.String("error", err.Error()))
		if !errors.Is(err, ErrScheduleFailed) {
			err = fmt.Errorf("%w: %w", ErrScheduleFailed, err)
		}
		return err
	}
}

func (s *DeadlineService) schedule(ctx context.Context, scheduler task.Scheduler, issue *domain.Issue) (task.Handle, error) {
	payload, err := json.Marshal(deadlinePayload{IssueID: issue.ID, DueDate: issue.DueDate})
	if err != nil {
		return "", fmt.Errorf("encode deadline payload: %w", err)
	}
	return scheduler.Schedule(ctx, issue.DueDate, task.TaskTypeIssueDeadline, payload)
}

// CancelForIssue removes the registry entry of an issue and cancels its
// reminder. Call it before deleting the issue.
func (s *DeadlineService) CancelForIssue(ctx context.Context, issueID uuid.UUID) error {
	h, err := s.deadlines.Take(ctx, issueID)
	if err != nil {
		return fmt.Errorf("failed to release deadline reminder: %w", err)
	}
	if !h.IsZero() {
		s.scheduler.Cancel(ctx, h)
	}
	return nil
}

// HandleDeadline is the task handler of issue_deadline tasks. It reminds
// the assignee of an issue that is still open once its due date passed,
// then releases the registry entry.
//
// The decision is taken under the registry lock, so a task claimed while a
// reschedule of its issue is still in flight waits for it instead of
// reading a stale handle. The entry is kept until the reminder is out, so a
// failed delivery is retried by the same task.
func (s *DeadlineService) HandleDeadline(ctx context.Context, rec *task.Record) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var p deadlinePayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		log.Error("dropping deadline task with undecodable payload",
			slog.String("task_id", rec.ID.String()),
			slog.String("error", err.Error()))
		return nil
	}
	log = log.With(slog.String("issue_id", p.IssueID.String()), slog.String("task_id", rec.ID.String()))

	var pending *domain.Issue
	err := s.deadlines.Swap(ctx, p.IssueID, func(ctx context.Context, tx *sql.Tx, current task.Handle) (task.Handle, error) {
		pending = nil
		if current != rec.Handle() {
			log.Debug("deadline task superseded")
			return current, nil
		}

		issue, err := s.issues.WithTx(tx).GetByID(ctx, p.IssueID)
		switch {
		case errors.Is(err, store.ErrIssueNotFound):
			log.Debug("issue gone, skipping deadline reminder")
		case err != nil:
			return current, fmt.Errorf("failed to load issue: %w", err)
		case issue.IsResolved() || !issue.HasAssignee():
			log.Debug("issue resolved or unassigned, skipping deadline reminder",
				slog.String("status", string(issue.Status)))
		case !issue.DueDate.Equal(p.DueDate):
			log.Debug("due date moved, skipping deadline reminder",
				slog.Time("due_date", issue.DueDate))
		default:
			pending = issue
			return current, nil
		}
		return "", nil
	})
	switch {
	case errors.Is(err, store.ErrIssueNotFound):
		log.Debug("issue gone, skipping deadline reminder")
		return nil
	case err != nil:
		return fmt.Errorf("failed to check deadline registry: %w", err)
	case pending == nil:
		return nil
	}

	if err := s.remind(ctx, pending); err != nil {
		return err
	}
	log.Info("deadline reminder sent")

	if _, err := s.deadlines.ClearIf(ctx, p.IssueID, rec.Handle()); err != nil {
		log.Warn("failed to clear deadline registry entry", slog.String("error", err.Error()))
	}
	return nil
}

func (s *DeadlineService) remind(ctx context.Context, issue *domain.Issue) error {
	user, err := s.users.GetByID(ctx, *issue.AssigneeID)
	if err != nil {
		return fmt.Errorf("failed to load assignee: %w", err)
	}
	return s.notifier.Notify(ctx, notify.Notification{
		To:      user.Email,
		Subject: notify.SubjectIssueDeadline,
		Body:    fmt.Sprintf("The %s is not finished after deadline!", issue.Title),
	})
}
