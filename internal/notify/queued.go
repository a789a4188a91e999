package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/stxlabs/tracker-api/internal/platform/logger"
	"github.com/stxlabs/tracker-api/internal/task"
)

// QueuedDispatcher hands notifications to the task runner. Delivery happens
// later on a worker, with the runner's retries.
type QueuedDispatcher struct {
	scheduler task.Scheduler
	now       func() time.Time
	logger    *slog.Logger
}

var _ Dispatcher = (*QueuedDispatcher)(nil)

// NewQueuedDispatcher creates a QueuedDispatcher.
func NewQueuedDispatcher(scheduler task.Scheduler, logger *slog.Logger) *QueuedDispatcher {
	return &QueuedDispatcher{
		scheduler: scheduler,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "queued_dispatcher")),
	}
}

// Notify schedules delivery of n for now.
func (d *QueuedDispatcher) Notify(ctx context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	h, err := d.scheduler.Schedule(ctx, d.now(), task.TaskTypeSendNotification, payload)
	if err != nil {
		return &DeliveryError{To: n.To, Err: err}
	}

	logger.FromContextOrDefault(ctx, d.logger).Debug("notification queued",
		slog.String("task_id", h.String()),
		slog.String("subject", n.Subject))
	return nil
}

// DeliveryHandler returns the task handler that delivers queued
// notifications through d.
func DeliveryHandler(d Dispatcher) task.HandlerFunc {
	return func(ctx context.Context, rec *task.Record) error {
		var n Notification
		if err := json.Unmarshal(rec.Payload, &n); err != nil {
			// A malformed payload never becomes valid; retrying is pointless.
			logger.FromContext(ctx).Error("dropping undecodable notification",
				slog.String("error", err.Error()))
			return nil
		}
		return d.Notify(ctx, n)
	}
}
