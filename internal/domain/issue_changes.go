package domain

import (
	"time"

	"github.com/google/uuid"
)

// IssueSnapshot holds the persisted values of the fields whose changes
// trigger notifications and deadline scheduling. It is captured when the
// issue is loaded, before any mutation is applied.
type IssueSnapshot struct {
	AssigneeID *uuid.UUID
	DueDate    time.Time
	Status     IssueStatus
}

// Snapshot captures the tracked fields of the issue.
func (i *Issue) Snapshot() IssueSnapshot {
	s := IssueSnapshot{DueDate: i.DueDate, Status: i.Status}
	if i.HasAssignee() {
		id := *i.AssigneeID
		s.AssigneeID = &id
	}
	return s
}

// IssueChanges is the diff between an issue's previous snapshot and its new state.
type IssueChanges struct {
	IsNew            bool
	AssigneeChanged  bool
	PreviousAssignee *uuid.UUID
	CurrentAssignee  *uuid.UUID
	DueDateChanged   bool
}

// DiffIssue compares the previous snapshot with the current state. A nil
// prev means the issue was just created: every present value counts as changed.
func DiffIssue(prev *IssueSnapshot, cur IssueSnapshot) IssueChanges {
	changes := IssueChanges{CurrentAssignee: cur.AssigneeID}

	if prev == nil {
		changes.IsNew = true
		changes.AssigneeChanged = cur.AssigneeID != nil
		changes.DueDateChanged = true
		return changes
	}

	changes.PreviousAssignee = prev.AssigneeID
	changes.AssigneeChanged = !sameAssignee(prev.AssigneeID, cur.AssigneeID)
	changes.DueDateChanged = !prev.DueDate.Equal(cur.DueDate)
	return changes
}

// NeedsReschedule reports whether the deadline task must be replaced.
// Besides creation and due date changes, an issue that gains its first
// assignee needs a task because unassigned issues are never scheduled.
func (c IssueChanges) NeedsReschedule() bool {
	return c.IsNew || c.DueDateChanged || (c.AssigneeChanged && c.PreviousAssignee == nil)
}

// HasChanges reports whether any tracked field changed.
func (c IssueChanges) HasChanges() bool {
	return c.IsNew || c.AssigneeChanged || c.DueDateChanged
}

func sameAssignee(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
