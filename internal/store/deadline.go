package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/task"
)

// SwapFunc receives the handle currently registered for an issue and returns
// the handle to register instead. Database work done by fn must go through
// tx so it commits together with the new handle. tx is nil for stores that
// are not backed by a database.
type SwapFunc func(ctx context.Context, tx *sql.Tx, current task.Handle) (task.Handle, error)

// DeadlineStore is the registry of deadline tasks. It holds at most one task
// handle per issue.
type DeadlineStore interface {
	// Swap gets or creates the registry entry of an issue, locks it and calls
	// fn with the current handle. The handle fn returns is stored even when
	// fn also returns an error, so fn decides what remains registered.
	// Concurrent Swaps on the same issue are serialized.
	// Swap returns ErrIssueNotFound when the issue does not exist.
	Swap(ctx context.Context, issueID uuid.UUID, fn SwapFunc) error

	// Get returns the handle registered for an issue, or the zero handle.
	Get(ctx context.Context, issueID uuid.UUID) (task.Handle, error)

	// ClearIf clears the entry of an issue if it still holds handle and
	// reports whether it did.
	ClearIf(ctx context.Context, issueID uuid.UUID, handle task.Handle) (bool, error)

	// Take removes the entry of an issue and returns the handle it held.
	Take(ctx context.Context, issueID uuid.UUID) (task.Handle, error)
}
