// Package notify delivers user notifications by email. A Dispatcher sends a
// Notification either directly through a Mailer transport or, in production,
// through the task runner so that delivery happens outside the request.
package notify
