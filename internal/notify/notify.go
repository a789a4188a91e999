package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Subjects of the notifications sent for issue events.
const (
	SubjectNewAssignment     = "New assignment"
	SubjectAssignmentRemoved = "Assignment removed"
	SubjectIssueDeadline     = "Issue deadline"
	SubjectActivateAccount   = "Activate your account"
)

var (
	// ErrDelivery is matched by every error caused by a failed delivery.
	ErrDelivery = errors.New("notification delivery failed")

	// ErrInvalidNotification is returned for a notification without recipient or subject.
	ErrInvalidNotification = errors.New("invalid notification")
)

// Notification is a message addressed to one recipient.
type Notification struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate checks that the notification can be delivered.
func (n Notification) Validate() error {
	if strings.TrimSpace(n.To) == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidNotification)
	}
	if strings.TrimSpace(n.Subject) == "" {
		return fmt.Errorf("%w: missing subject", ErrInvalidNotification)
	}
	return nil
}

// Dispatcher sends notifications.
type Dispatcher interface {
	// Notify sends n. Transport failures are returned as *DeliveryError.
	Notify(ctx context.Context, n Notification) error
}

// DeliveryError reports a transport failure for one recipient.
type DeliveryError struct {
	To  string
	Err error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.To, e.Err)
}

// Unwrap returns the transport error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDelivery.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}
