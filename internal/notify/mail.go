package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
)

// Message is an email ready for a transport.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Bytes renders the message as a plain text RFC 5322 email.
func (m Message) Bytes() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.Body)
	return b.Bytes()
}

// Mailer is an outgoing mail transport.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailDispatcher delivers notifications through a Mailer, retrying
// failed sends a bounded number of times.
type MailDispatcher struct {
	mailer     Mailer
	from       string
	maxRetries uint64
	baseDelay  time.Duration
	logger     *slog.Logger
}

var _ Dispatcher = (*MailDispatcher)(nil)

// MailDispatcherOption configures a MailDispatcher.
type MailDispatcherOption func(*MailDispatcher)

// WithRetries sets how many times a failed send is retried and the first delay.
func WithRetries(maxRetries uint64, baseDelay time.Duration) MailDispatcherOption {
	return func(d *MailDispatcher) {
		d.maxRetries = maxRetries
		d.baseDelay = baseDelay
	}
}

// NewMailDispatcher creates a MailDispatcher sending from the given address.
func NewMailDispatcher(mailer Mailer, from string, logger *slog.Logger, opts ...MailDispatcherOption) *MailDispatcher {
	d := &MailDispatcher{
		mailer:     mailer,
		from:       from,
		maxRetries: 2,
		baseDelay:  200 * time.Millisecond,
		logger:     logger.With(slog.String("component", "mail_dispatcher")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify sends n through the mailer.
func (d *MailDispatcher) Notify(ctx context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	log := logger.FromContextOrDefault(ctx, d.logger)
	msg := Message{From: d.from, To: n.To, Subject: n.Subject, Body: n.Body}

	backoff := retry.WithMaxRetries(d.maxRetries, retry.NewExponential(d.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := d.mailer.Send(ctx, msg); err != nil {
			log.Warn("mail send attempt failed",
				slog.String("subject", n.Subject),
				slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return &DeliveryError{To: n.To, Err: err}
	}

	log.Debug("notification sent", slog.String("subject", n.Subject))
	return nil
}
