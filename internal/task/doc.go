// Package task runs deferred background work. Tasks are persisted with the
// time they become due, claimed by a poller once that time has passed, and
// executed by a pool of workers through handlers registered per task type.
// Pending tasks can be cancelled by handle, and tasks interrupted by a crash
// are picked up again after a restart.
package task
