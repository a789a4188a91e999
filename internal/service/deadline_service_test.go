package service_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/notify"
	"github.com/stxlabs/tracker-api/internal/service"
	"github.com/stxlabs/tracker-api/internal/store"
	"github.com/stxlabs/tracker-api/internal/task"
)

// fixture wires the services to in-memory stores.
type fixture struct {
	users      *memUserStore
	projects   *memProjectStore
	issues     *memIssueStore
	deadlines  *memDeadlineStore
	scheduler  *fakeScheduler
	dispatcher *recordingDispatcher
	deadline   *service.DeadlineService

	owner, alice, bob *domain.User
	project           *domain.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:      newMemUserStore(),
		issues:     newMemIssueStore(),
		scheduler:  newFakeScheduler(),
		dispatcher: &recordingDispatcher{},
	}
	f.projects = newMemProjectStore(f.issues)
	f.deadlines = newMemDeadlineStore(f.issues)
	f.deadline = service.NewDeadlineService(f.issues, f.users, f.deadlines, f.scheduler, f.dispatcher, testLogger())

	f.owner = f.users.add("owner@example.com")
	f.alice = f.users.add("alice@example.com")
	f.bob = f.users.add("bob@example.com")

	p, err := domain.NewProject(f.owner.ID, "Backend", []uuid.UUID{f.alice.ID, f.bob.ID})
	require.NoError(t, err)
	require.NoError(t, f.projects.Create(context.Background(), p))
	f.project = p
	return f
}

func (f *fixture) issueService(db *sql.DB) *service.IssueService {
	return service.NewIssueService(f.issues, f.projects, db, f.deadline, testLogger())
}

func (f *fixture) projectService() *service.ProjectService {
	return service.NewProjectService(f.projects, f.issues, f.users, f.deadline, testLogger())
}

// createIssue creates an issue through the service.
func (f *fixture) createIssue(t *testing.T, assignee *uuid.UUID, due time.Time) *domain.Issue {
	t.Helper()
	issue, err := f.issueService(nil).Create(context.Background(), f.owner.ID, service.NewIssueInput{
		ProjectID:  f.project.ID,
		Title:      "Fix login",
		AssigneeID: assignee,
		DueDate:    due,
	})
	require.NoError(t, err)
	return issue
}

func (f *fixture) recordFor(t *testing.T, s scheduled) *task.Record {
	t.Helper()
	id, err := task.ParseHandle(s.Handle)
	require.NoError(t, err)
	return &task.Record{ID: id, Type: s.Type, Payload: s.Payload, Status: task.TaskStatusProcessing}
}

type payload struct {
	IssueID uuid.UUID `json:"issue_id"`
	DueDate time.Time `json:"due_date"`
}

func decodePayload(t *testing.T, b []byte) payload {
	t.Helper()
	var p payload
	require.NoError(t, json.Unmarshal(b, &p))
	return p
}

var due1 = time.Date(2030, 10, 10, 12, 30, 0, 0, time.UTC)

func TestDeadline_CreateWithAssigneeSchedulesOneTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	issue := f.createIssue(t, &f.alice.ID, due1)

	live := f.scheduler.live()
	require.Len(t, live, 1)
	assert.Equal(t, task.TaskTypeIssueDeadline, live[0].Type)
	assert.True(t, live[0].RunAt.Equal(due1))

	p := decodePayload(t, live[0].Payload)
	assert.Equal(t, issue.ID, p.IssueID)
	assert.True(t, p.DueDate.Equal(due1))

	h, err := f.deadlines.Get(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, live[0].Handle, h)

	sent := f.dispatcher.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@example.com", sent[0].To)
	assert.Equal(t, notify.SubjectNewAssignment, sent[0].Subject)
}

func TestDeadline_CreateWithoutAssigneeSchedulesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	issue := f.createIssue(t, nil, due1)

	assert.Empty(t, f.scheduler.all())
	assert.Empty(t, f.dispatcher.notifications())
	h, _ := f.deadlines.Get(context.Background(), issue.ID)
	assert.True(t, h.IsZero())
}

func TestDeadline_DescriptionChangeIsQuiet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issue := f.createIssue(t, &f.alice.ID, due1)
	sentBefore := len(f.dispatcher.notifications())

	desc := "more detail"
	_, err := f.issueService(mockDB(t, 1)).Update(context.Background(), f.owner.ID, issue.ID, service.IssueUpdate{Description: &desc})
	require.NoError(t, err)

	assert.Len(t, f.dispatcher.notifications(), sentBefore)
	assert.Len(t, f.scheduler.all(), 1)
}

func TestDeadline_ReassignNotifiesBothAssignees(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issue := f.createIssue(t, &f.alice.ID, due1)
	f.dispatcher.sent = nil

	_, err := f.issueService(mockDB(t, 1)).Update(context.Background(), f.owner.ID, issue.ID, service.IssueUpdate{
		AssigneeSet: true,
		AssigneeID:  &f.bob.ID,
	})
	require.NoError(t, err)

	sent := f.dispatcher.notifications()
	require.Len(t, sent, 2)
	assert.Equal(t, notify.Notification{
		To: "bob@example.com", Subject: notify.SubjectNewAssignment,
		Body: `You have been assigned to the issue "Fix login".`,
	}, sent[0])
	assert.Equal(t, "alice@example.com", sent[1].To)
	assert.Equal(t, notify.SubjectAssignmentRemoved, sent[1].Subject)

	assert.Len(t, f.scheduler.all(), 1, "due date unchanged, no reschedule")
}

func TestDeadline_DueDateChangeReplacesTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issue := f.createIssue(t, &f.alice.ID, due1)
	first := f.scheduler.live()[0]

	due2 := time.Date(2030, 11, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.issueService(mockDB(t, 1)).Update(context.Background(), f.alice.ID, issue.ID, service.IssueUpdate{DueDate: &due2})
	require.NoError(t, err)

	assert.True(t, f.scheduler.isCancelled(first.Handle))
	live := f.scheduler.live()
	require.Len(t, live, 1)
	assert.True(t, live[0].RunAt.Equal(due2))

	h, _ := f.deadlines.Get(context.Background(), issue.ID)
	assert.Equal(t, live[0].Handle, h)
}

func TestDeadline_FirstAssigneeSchedulesTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issue := f.createIssue(t, nil, due1)

	_, err := f.issueService(mockDB(t, 1)).Update(context.Background(), f.owner.ID, issue.ID, service.IssueUpdate{
		AssigneeSet: true,
		AssigneeID:  &f.alice.ID,
	})
	require.NoError(t, err)

	live := f.scheduler.live()
	require.Len(t, live, 1)
	assert.True(t, live[0].RunAt.Equal(due1))
}

func TestDeadline_ScheduleRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.scheduler.failures = 2

	f.createIssue(t, &f.alice.ID, due1)

	assert.Equal(t, 3, f.scheduler.calls)
	assert.Len(t, f.scheduler.live(), 1)
}

func TestDeadline_OverdueTaskWakesRunnerAfterCommit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.createIssue(t, &f.alice.ID, due1)
	assert.Zero(t, f.scheduler.wakes)

	f.createIssue(t, &f.alice.ID, time.Now().Add(-time.Hour))
	assert.Equal(t, 1, f.scheduler.wakes)
}

func TestDeadline_ScheduleFailureKeepsIssue(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.scheduler.failures = 10

	issue, err := f.issueService(nil).Create(context.Background(), f.owner.ID, service.NewIssueInput{
		ProjectID:  f.project.ID,
		Title:      "Fix login",
		AssigneeID: &f.alice.ID,
		DueDate:    due1,
	})
	assert.ErrorIs(t, err, service.ErrScheduleFailed)
	assert.NotErrorIs(t, err, notify.ErrDelivery)
	require.NotNil(t, issue)

	_, err = f.issues.GetByID(context.Background(), issue.ID)
	assert.NoError(t, err, "issue must be persisted")

	h, _ := f.deadlines.Get(context.Background(), issue.ID)
	assert.True(t, h.IsZero())
}

func TestDeadline_NotificationFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.dispatcher.err = &notify.DeliveryError{To: "alice@example.com", Err: assert.AnError}

	issue := f.createIssue(t, &f.alice.ID, due1)

	assert.Len(t, f.dispatcher.notifications(), 1)
	assert.Len(t, f.scheduler.live(), 1)
	_, err := f.issues.GetByID(context.Background(), issue.ID)
	assert.NoError(t, err)
}

func TestDeadline_ConcurrentDueDateChangesLeaveOneTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issue := f.createIssue(t, &f.alice.ID, due1)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			current, err := f.issues.GetByID(ctx, issue.ID)
			if !assert.NoError(t, err) {
				return
			}
			prev := current.Snapshot()
			current.DueDate = due1.Add(time.Duration(i) * time.Hour)
			if !assert.NoError(t, f.issues.Update(ctx, current)) {
				return
			}
			assert.NoError(t, f.deadline.ApplyChanges(ctx, current, domain.DiffIssue(&prev, current.Snapshot())))
		}(i)
	}
	wg.Wait()

	stored, err := f.issues.GetByID(ctx, issue.ID)
	require.NoError(t, err)

	live := f.scheduler.live()
	require.Len(t, live, 1)
	assert.True(t, live[0].RunAt.Equal(stored.DueDate))
	h, _ := f.deadlines.Get(ctx, issue.ID)
	assert.Equal(t, live[0].Handle, h)
}

func TestDeadline_DeleteIssueCancelsTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issue := f.createIssue(t, &f.alice.ID, due1)
	h := f.scheduler.live()[0].Handle

	require.NoError(t, f.issueService(nil).Delete(context.Background(), f.bob.ID, issue.ID))

	assert.True(t, f.scheduler.isCancelled(h))
	assert.Empty(t, f.scheduler.live())
	_, err := f.issues.GetByID(context.Background(), issue.ID)
	assert.ErrorIs(t, err, store.ErrIssueNotFound)
}

func TestDeadline_DeleteProjectCancelsAllTasks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.createIssue(t, &f.alice.ID, due1)
	f.createIssue(t, &f.bob.ID, due1.Add(time.Hour))
	require.Len(t, f.scheduler.live(), 2)

	require.NoError(t, f.projectService().Delete(context.Background(), f.owner.ID, f.project.ID))

	assert.Empty(t, f.scheduler.live())
}

func TestHandleDeadline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("reminds assignee of open issue", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		issue := f.createIssue(t, &f.alice.ID, due1)
		f.dispatcher.sent = nil
		rec := f.recordFor(t, f.scheduler.live()[0])

		require.NoError(t, f.deadline.HandleDeadline(ctx, rec))

		sent := f.dispatcher.notifications()
		require.Len(t, sent, 1)
		assert.Equal(t, notify.Notification{
			To:      "alice@example.com",
			Subject: notify.SubjectIssueDeadline,
			Body:    "The Fix login is not finished after deadline!",
		}, sent[0])
		h, _ := f.deadlines.Get(ctx, issue.ID)
		assert.True(t, h.IsZero(), "registry entry cleared")
	})

	t.Run("skips resolved issue", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		issue := f.createIssue(t, &f.alice.ID, due1)
		rec := f.recordFor(t, f.scheduler.live()[0])
		stored, _ := f.issues.GetByID(ctx, issue.ID)
		stored.Status = domain.IssueStatusDone
		require.NoError(t, f.issues.Update(ctx, stored))
		f.dispatcher.sent = nil

		require.NoError(t, f.deadline.HandleDeadline(ctx, rec))

		assert.Empty(t, f.dispatcher.notifications())
		h, _ := f.deadlines.Get(ctx, issue.ID)
		assert.True(t, h.IsZero())
	})

	t.Run("skips unassigned issue", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		issue := f.createIssue(t, &f.alice.ID, due1)
		rec := f.recordFor(t, f.scheduler.live()[0])
		stored, _ := f.issues.GetByID(ctx, issue.ID)
		stored.AssigneeID = nil
		require.NoError(t, f.issues.Update(ctx, stored))
		f.dispatcher.sent = nil

		require.NoError(t, f.deadline.HandleDeadline(ctx, rec))
		assert.Empty(t, f.dispatcher.notifications())
		h, _ := f.deadlines.Get(ctx, issue.ID)
		assert.True(t, h.IsZero())
	})

	t.Run("skips moved due date", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		issue := f.createIssue(t, &f.alice.ID, due1)
		rec := f.recordFor(t, f.scheduler.live()[0])
		stored, _ := f.issues.GetByID(ctx, issue.ID)
		stored.DueDate = due1.Add(time.Hour)
		require.NoError(t, f.issues.Update(ctx, stored))
		f.dispatcher.sent = nil

		require.NoError(t, f.deadline.HandleDeadline(ctx, rec))
		assert.Empty(t, f.dispatcher.notifications())
		h, _ := f.deadlines.Get(ctx, issue.ID)
		assert.True(t, h.IsZero())
	})

	t.Run("ignores superseded task", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		issue := f.createIssue(t, &f.alice.ID, due1)
		stale := f.recordFor(t, f.scheduler.live()[0])

		due2 := due1.Add(24 * time.Hour)
		_, err := f.issueService(mockDB(t, 1)).Update(ctx, f.owner.ID, issue.ID, service.IssueUpdate{DueDate: &due2})
		require.NoError(t, err)
		current, _ := f.deadlines.Get(ctx, issue.ID)
		f.dispatcher.sent = nil

		require.NoError(t, f.deadline.HandleDeadline(ctx, stale))

		assert.Empty(t, f.dispatcher.notifications())
		h, _ := f.deadlines.Get(ctx, issue.ID)
		assert.Equal(t, current, h, "live registry entry untouched")
	})

	t.Run("deleted issue is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		issue := f.createIssue(t, &f.alice.ID, due1)
		rec := f.recordFor(t, f.scheduler.live()[0])
		require.NoError(t, f.issues.Delete(ctx, issue.ID))
		f.dispatcher.sent = nil

		assert.NoError(t, f.deadline.HandleDeadline(ctx, rec))
		assert.Empty(t, f.dispatcher.notifications())
	})

	t.Run("delivery failure is retried", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		issue := f.createIssue(t, &f.alice.ID, due1)
		rec := f.recordFor(t, f.scheduler.live()[0])
		f.dispatcher.err = &notify.DeliveryError{To: "alice@example.com", Err: assert.AnError}

		err := f.deadline.HandleDeadline(ctx, rec)
		assert.ErrorIs(t, err, notify.ErrDelivery)

		h, _ := f.deadlines.Get(ctx, issue.ID)
		assert.Equal(t, rec.Handle(), h, "entry kept so the retry still owns it")
	})

	t.Run("undecodable payload is dropped", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		rec := &task.Record{ID: uuid.New(), Type: task.TaskTypeIssueDeadline, Payload: []byte("{")}
		assert.NoError(t, f.deadline.HandleDeadline(ctx, rec))
	})
}

func TestDeadline_EndToEndWithRunner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	cfg := task.DefaultRunnerConfig()
	cfg.PollInterval = 10 * time.Millisecond
	runner := task.NewRunner(task.NewMemoryTaskStore(), cfg, testLogger())
	deadline := service.NewDeadlineService(f.issues, f.users, f.deadlines, runner, f.dispatcher, testLogger())
	runner.Register(task.TaskTypeIssueDeadline, deadline.HandleDeadline)
	require.NoError(t, runner.Start())
	t.Cleanup(runner.Stop)

	issues := service.NewIssueService(f.issues, f.projects, nil, deadline, testLogger())
	issue, err := issues.Create(ctx, f.owner.ID, service.NewIssueInput{
		ProjectID:  f.project.ID,
		Title:      "Ship it",
		AssigneeID: &f.alice.ID,
		DueDate:    time.Now().Add(50 * time.Millisecond),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, n := range f.dispatcher.notifications() {
			if n.Subject == notify.SubjectIssueDeadline {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		h, _ := f.deadlines.Get(ctx, issue.ID)
		return h.IsZero()
	}, time.Second, 10*time.Millisecond)
}

// slowDeadlineStore stores the handle returned by a swap only after delay,
// like a registry whose commit takes a database round trip.
type slowDeadlineStore struct {
	*memDeadlineStore
	delay time.Duration
}

func (s *slowDeadlineStore) Swap(ctx context.Context, issueID uuid.UUID, fn store.SwapFunc) error {
	return s.memDeadlineStore.Swap(ctx, issueID, func(ctx context.Context, tx *sql.Tx, current task.Handle) (task.Handle, error) {
		h, err := fn(ctx, tx, current)
		time.Sleep(s.delay)
		return h, err
	})
}

func TestDeadline_OverdueIssueIsRemindedOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	cfg := task.DefaultRunnerConfig()
	cfg.PollInterval = 10 * time.Millisecond
	runner := task.NewRunner(task.NewMemoryTaskStore(), cfg, testLogger())
	deadlines := &slowDeadlineStore{memDeadlineStore: f.deadlines, delay: 20 * time.Millisecond}
	deadline := service.NewDeadlineService(f.issues, f.users, deadlines, runner, f.dispatcher, testLogger())
	runner.Register(task.TaskTypeIssueDeadline, deadline.HandleDeadline)
	require.NoError(t, runner.Start())
	t.Cleanup(runner.Stop)

	issues := service.NewIssueService(f.issues, f.projects, nil, deadline, testLogger())
	issue, err := issues.Create(ctx, f.owner.ID, service.NewIssueInput{
		ProjectID:  f.project.ID,
		Title:      "Overdue",
		AssigneeID: &f.alice.ID,
		DueDate:    time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	reminders := func() int {
		n := 0
		for _, sent := range f.dispatcher.notifications() {
			if sent.Subject == notify.SubjectIssueDeadline {
				n++
			}
		}
		return n
	}
	require.Eventually(t, func() bool { return reminders() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		h, _ := f.deadlines.Get(ctx, issue.ID)
		return h.IsZero()
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, reminders())
}
