package service_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/notify"
	"github.com/stxlabs/tracker-api/internal/storage"
	"github.com/stxlabs/tracker-api/internal/store"
	"github.com/stxlabs/tracker-api/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockDB returns a database that accepts n transactions which all commit.
func mockDB(t *testing.T, n int) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	return db
}

// mockDBRollback returns a database that accepts one transaction which rolls back.
func mockDBRollback(t *testing.T) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectBegin()
	mock.ExpectRollback()
	return db
}

// memUserStore is an in-memory store.UserStore.
type memUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[uuid.UUID]*domain.User{}}
}

func (s *memUserStore) add(email string) *domain.User {
	u := &domain.User{ID: uuid.New(), Email: email, IsActive: true}
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	return u
}

func (s *memUserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return store.ErrEmailExists
		}
	}
	user.HashedPassword = "hashed:" + user.Password
	user.Password = ""
	c := *user
	s.users[user.ID] = &c
	return nil
}

func (s *memUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (s *memUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *memUserStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error) {
	var out []*domain.User
	for _, id := range ids {
		if u, err := s.GetByID(ctx, id); err == nil {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memUserStore) Update(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return store.ErrUserNotFound
	}
	c := *user
	s.users[user.ID] = &c
	return nil
}

func (s *memUserStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return store.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *memUserStore) WithTx(tx *sql.Tx) store.UserStore { return s }

// memProjectStore is an in-memory store.ProjectStore.
type memProjectStore struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*domain.Project
	issues   *memIssueStore
}

func newMemProjectStore(issues *memIssueStore) *memProjectStore {
	return &memProjectStore{projects: map[uuid.UUID]*domain.Project{}, issues: issues}
}

func cloneProject(p *domain.Project) *domain.Project {
	c := *p
	c.MemberIDs = append([]uuid.UUID(nil), p.MemberIDs...)
	return &c
}

func (s *memProjectStore) Create(ctx context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = cloneProject(p)
	return nil
}

func (s *memProjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, store.ErrProjectNotFound
	}
	return cloneProject(p), nil
}

func (s *memProjectStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Project
	for _, p := range s.projects {
		if p.IsParticipant(userID) {
			out = append(out, cloneProject(p))
		}
	}
	return out, nil
}

func (s *memProjectStore) Update(ctx context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		return store.ErrProjectNotFound
	}
	s.projects[p.ID] = cloneProject(p)
	return nil
}

func (s *memProjectStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	if _, ok := s.projects[id]; !ok {
		s.mu.Unlock()
		return store.ErrProjectNotFound
	}
	delete(s.projects, id)
	s.mu.Unlock()

	// Issues go with their project.
	ids, _ := s.issues.ListIDsByProject(ctx, id)
	for _, issueID := range ids {
		_ = s.issues.Delete(ctx, issueID)
	}
	return nil
}

func (s *memProjectStore) WithTx(tx *sql.Tx) store.ProjectStore { return s }

// memIssueStore is an in-memory store.IssueStore.
type memIssueStore struct {
	mu     sync.Mutex
	issues map[uuid.UUID]*domain.Issue
}

func newMemIssueStore() *memIssueStore {
	return &memIssueStore{issues: map[uuid.UUID]*domain.Issue{}}
}

func cloneIssue(i *domain.Issue) *domain.Issue {
	c := *i
	if i.AssigneeID != nil {
		a := *i.AssigneeID
		c.AssigneeID = &a
	}
	return &c
}

func (s *memIssueStore) exists(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.issues[id]
	return ok
}

func (s *memIssueStore) Create(ctx context.Context, issue *domain.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[issue.ID] = cloneIssue(issue)
	return nil
}

func (s *memIssueStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.issues[id]
	if !ok {
		return nil, store.ErrIssueNotFound
	}
	return cloneIssue(i), nil
}

func (s *memIssueStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	return s.GetByID(ctx, id)
}

func (s *memIssueStore) list(match func(*domain.Issue) bool) []*domain.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Issue
	for _, i := range s.issues {
		if match(i) {
			out = append(out, cloneIssue(i))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].DueDate.Before(out[b].DueDate) })
	return out
}

func (s *memIssueStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Issue, error) {
	return s.list(func(i *domain.Issue) bool { return i.ProjectID == projectID }), nil
}

// ListForUser matches owned and assigned issues; the fake knows nothing
// about project membership.
func (s *memIssueStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Issue, error) {
	return s.list(func(i *domain.Issue) bool {
		return i.OwnerID == userID || (i.AssigneeID != nil && *i.AssigneeID == userID)
	}), nil
}

func (s *memIssueStore) ListIDsByProject(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, i := range s.list(func(i *domain.Issue) bool { return i.ProjectID == projectID }) {
		ids = append(ids, i.ID)
	}
	return ids, nil
}

func (s *memIssueStore) Update(ctx context.Context, issue *domain.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[issue.ID]; !ok {
		return store.ErrIssueNotFound
	}
	s.issues[issue.ID] = cloneIssue(issue)
	return nil
}

func (s *memIssueStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[id]; !ok {
		return store.ErrIssueNotFound
	}
	delete(s.issues, id)
	return nil
}

func (s *memIssueStore) WithTx(tx *sql.Tx) store.IssueStore { return s }

// memAttachmentStore is an in-memory store.AttachmentStore.
type memAttachmentStore struct {
	mu          sync.Mutex
	attachments map[uuid.UUID]*domain.Attachment
	createErr   error
}

func newMemAttachmentStore() *memAttachmentStore {
	return &memAttachmentStore{attachments: map[uuid.UUID]*domain.Attachment{}}
}

func (s *memAttachmentStore) Create(ctx context.Context, a *domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	c := *a
	s.attachments[a.ID] = &c
	return nil
}

func (s *memAttachmentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attachments[id]
	if !ok {
		return nil, store.ErrAttachmentNotFound
	}
	c := *a
	return &c, nil
}

func (s *memAttachmentStore) ListByIssue(ctx context.Context, issueID uuid.UUID) ([]*domain.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Attachment
	for _, a := range s.attachments {
		if a.IssueID == issueID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memAttachmentStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attachments[id]; !ok {
		return store.ErrAttachmentNotFound
	}
	delete(s.attachments, id)
	return nil
}

func (s *memAttachmentStore) WithTx(tx *sql.Tx) store.AttachmentStore { return s }

// memDeadlineStore is an in-memory store.DeadlineStore with one lock per issue.
type memDeadlineStore struct {
	mu      sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
	handles map[uuid.UUID]task.Handle
	exists  func(uuid.UUID) bool
}

func newMemDeadlineStore(issues *memIssueStore) *memDeadlineStore {
	return &memDeadlineStore{
		locks:   map[uuid.UUID]*sync.Mutex{},
		handles: map[uuid.UUID]task.Handle{},
		exists:  issues.exists,
	}
}

func (s *memDeadlineStore) lock(issueID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[issueID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[issueID] = l
	}
	return l
}

func (s *memDeadlineStore) Swap(ctx context.Context, issueID uuid.UUID, fn store.SwapFunc) error {
	if !s.exists(issueID) {
		return store.ErrIssueNotFound
	}
	l := s.lock(issueID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	current := s.handles[issueID]
	s.mu.Unlock()

	next, err := fn(ctx, nil, current)

	s.mu.Lock()
	s.handles[issueID] = next
	s.mu.Unlock()
	return err
}

func (s *memDeadlineStore) Get(ctx context.Context, issueID uuid.UUID) (task.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[issueID], nil
}

func (s *memDeadlineStore) ClearIf(ctx context.Context, issueID uuid.UUID, h task.Handle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles[issueID] != h || h.IsZero() {
		return false, nil
	}
	s.handles[issueID] = ""
	return true, nil
}

func (s *memDeadlineStore) Take(ctx context.Context, issueID uuid.UUID) (task.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handles[issueID]
	delete(s.handles, issueID)
	return h, nil
}

// scheduled is one call to fakeScheduler.Schedule.
type scheduled struct {
	Handle  task.Handle
	RunAt   time.Time
	Type    string
	Payload []byte
}

// fakeScheduler records scheduled and cancelled tasks. The first failures
// calls to Schedule fail.
type fakeScheduler struct {
	mu        sync.Mutex
	tasks     []scheduled
	cancelled map[task.Handle]bool
	failures  int
	calls     int
	wakes     int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{cancelled: map[task.Handle]bool{}}
}

func (s *fakeScheduler) Schedule(ctx context.Context, runAt time.Time, taskType string, payload []byte) (task.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return "", errors.New("scheduler unavailable")
	}
	h := task.Handle(uuid.NewString())
	s.tasks = append(s.tasks, scheduled{Handle: h, RunAt: runAt, Type: taskType, Payload: payload})
	return h, nil
}

func (s *fakeScheduler) Cancel(ctx context.Context, h task.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled[h] = true
}

func (s *fakeScheduler) WithTx(tx *sql.Tx) task.Scheduler { return s }

func (s *fakeScheduler) Wake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wakes++
}

// live returns the scheduled tasks that were not cancelled.
func (s *fakeScheduler) live() []scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scheduled
	for _, t := range s.tasks {
		if !s.cancelled[t.Handle] {
			out = append(out, t)
		}
	}
	return out
}

func (s *fakeScheduler) all() []scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduled(nil), s.tasks...)
}

func (s *fakeScheduler) isCancelled(h task.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[h]
}

// recordingDispatcher records notifications; err is returned from every Notify.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (d *recordingDispatcher) Notify(ctx context.Context, n notify.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return d.err
}

func (d *recordingDispatcher) notifications() []notify.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Notification(nil), d.sent...)
}

// memFiles is an in-memory service.FileStorage.
type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFiles() *memFiles {
	return &memFiles{files: map[string][]byte{}}
}

func (f *memFiles) Save(ctx context.Context, path string, r io.Reader, limit int64) (int64, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return 0, err
	}
	if int64(len(data)) > limit {
		return 0, storage.ErrFileTooLarge
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = data
	return int64(len(data)), nil
}

func (f *memFiles) Remove(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	return nil
}

func (f *memFiles) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}
