package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// IssueStatus represents the workflow state of an issue.
type IssueStatus string

// Possible issue status values
const (
	IssueStatusTodo       IssueStatus = "todo"
	IssueStatusInProgress IssueStatus = "in progress"
	IssueStatusReview     IssueStatus = "review"
	IssueStatusDone       IssueStatus = "done"
)

// Common validation errors for Issue
var (
	ErrEmptyIssueID        = errors.New("issue ID cannot be empty")
	ErrEmptyIssueProjectID = errors.New("issue project ID cannot be empty")
	ErrEmptyIssueOwnerID   = errors.New("issue owner ID cannot be empty")
	ErrEmptyIssueTitle     = errors.New("issue title cannot be empty")
	ErrIssueTitleTooLong   = errors.New("issue title must be at most 100 characters long")
	ErrInvalidIssueStatus  = errors.New("invalid issue status")
	ErrEmptyDueDate        = errors.New("issue due date cannot be empty")
)

// IsValid reports whether s is one of the known statuses.
func (s IssueStatus) IsValid() bool {
	switch s {
	case IssueStatusTodo, IssueStatusInProgress, IssueStatusReview, IssueStatusDone:
		return true
	}
	return false
}

// Issue is a unit of work inside a project. Its assignee and due date drive
// assignment notifications and the deadline reminder.
type Issue struct {
	ID          uuid.UUID   `json:"id"`
	ProjectID   uuid.UUID   `json:"project_id"`
	OwnerID     uuid.UUID   `json:"owner_id"`
	AssigneeID  *uuid.UUID  `json:"assignee_id,omitempty"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      IssueStatus `json:"status"`
	DueDate     time.Time   `json:"due_date"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewIssue creates a new Issue in the todo state.
func NewIssue(
	projectID, ownerID uuid.UUID,
	title, description string,
	assigneeID *uuid.UUID,
	dueDate time.Time,
) (*Issue, error) {
	now := time.Now().UTC()
	issue := &Issue{
		ID:          uuid.New(),
		ProjectID:   projectID,
		OwnerID:     ownerID,
		AssigneeID:  assigneeID,
		Title:       strings.TrimSpace(title),
		Description: description,
		Status:      IssueStatusTodo,
		DueDate:     dueDate.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := issue.Validate(); err != nil {
		return nil, err
	}
	return issue, nil
}

// Validate checks if the Issue has valid data.
func (i *Issue) Validate() error {
	if i.ID == uuid.Nil {
		return ErrEmptyIssueID
	}
	if i.ProjectID == uuid.Nil {
		return ErrEmptyIssueProjectID
	}
	if i.OwnerID == uuid.Nil {
		return ErrEmptyIssueOwnerID
	}
	if i.Title == "" {
		return ErrEmptyIssueTitle
	}
	if utf8.RuneCountInString(i.Title) > MaxNameLength {
		return ErrIssueTitleTooLong
	}
	if !i.Status.IsValid() {
		return ErrInvalidIssueStatus
	}
	if i.DueDate.IsZero() {
		return ErrEmptyDueDate
	}
	return nil
}

// IsResolved reports whether the issue no longer needs a deadline reminder.
func (i *Issue) IsResolved() bool {
	return i.Status == IssueStatusDone
}

// HasAssignee reports whether somebody is assigned to the issue.
func (i *Issue) HasAssignee() bool {
	return i.AssigneeID != nil && *i.AssigneeID != uuid.Nil
}
