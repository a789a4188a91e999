package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
)

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	addr     string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates an SMTPMailer. Authentication is skipped when
// username is empty.
func NewSMTPMailer(host string, port int, username, password string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// Send delivers the message. net/smtp has no context support, so ctx is
// only checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.sendMail(m.addr, m.auth, msg.From, []string{msg.To}, msg.Bytes()); err != nil {
		return fmt.Errorf("smtp send via %s: %w", m.addr, err)
	}
	return nil
}
