package notify

import (
	"context"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailMailer sends mail through the Gmail API as the account that granted
// the refresh token.
type GmailMailer struct {
	svc *gmail.Service
}

// NewGmailMailer creates a GmailMailer from OAuth2 client credentials and a
// long-lived refresh token.
func NewGmailMailer(ctx context.Context, clientID, clientSecret, refreshToken string) (*GmailMailer, error) {
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("gmail mailer: client id, client secret and refresh token are required")
	}

	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailSendScope},
	}
	client := cfg.Client(ctx, &oauth2.Token{RefreshToken: refreshToken})

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail client: %w", err)
	}
	return NewGmailMailerWithService(svc), nil
}

// NewGmailMailerWithService wraps an existing Gmail service.
func NewGmailMailerWithService(svc *gmail.Service) *GmailMailer {
	return &GmailMailer{svc: svc}
}

// Send delivers the message.
func (m *GmailMailer) Send(ctx context.Context, msg Message) error {
	raw := base64.URLEncoding.EncodeToString(msg.Bytes())
	if _, err := m.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}
