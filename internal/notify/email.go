package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// DefaultFromName is the sender display name when none is configured.
const DefaultFromName = "RAMS Care"

// ErrRejected marks a message the provider refused outright, such as a
// malformed recipient. Redelivering the event cannot fix it.
var ErrRejected = errors.New("notify: message rejected by provider")

// EmailSender delivers one e-mail. SendGrid and SES implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a plain-text notification about one domain event.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Text    string

	// EventType and EventID tag the message at the provider so bounces and
	// opens can be traced back to the envelope that caused them.
	EventType string
	EventID   string
}

// Sender identifies the From header shared by every provider.
type Sender struct {
	Email string
	Name  string
}

func (s Sender) withDefaults() Sender {
	if s.Name == "" {
		s.Name = DefaultFromName
	}
	return s
}

type sendGridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*sendGridResponse, error)
}

type sendGridResponse struct {
	StatusCode int
	Body       string
}

type sendGridClient struct {
	client *sendgrid.Client
}

func (c sendGridClient) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*sendGridResponse, error) {
	resp, err := c.client.SendWithContext(ctx, email)
	if err != nil {
		return nil, err
	}
	return &sendGridResponse{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

// SendGridSender sends notifications through the SendGrid v3 API.
type SendGridSender struct {
	api    sendGridAPI
	from   Sender
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(apiKey string, from Sender, logger *logging.Logger) *SendGridSender {
	if apiKey == "" {
		return nil
	}
	return newSendGridSender(sendGridClient{client: sendgrid.NewSendClient(apiKey)}, from, logger)
}

func newSendGridSender(api sendGridAPI, from Sender, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{api: api, from: from.withDefaults(), logger: logger}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.api == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	if msg.EventID != "" {
		p.SetCustomArg("event_id", msg.EventID)
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.from.Name, s.from.Email))
	m.Subject = msg.Subject
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", msg.Text))
	if msg.EventType != "" {
		m.AddCategories(msg.EventType)
	}

	resp, err := s.api.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		s.logger.Warn("sendgrid rejected message", "status", resp.StatusCode, "body", resp.Body, "event_type", msg.EventType)
		return fmt.Errorf("%w: sendgrid status %d", ErrRejected, resp.StatusCode)
	}
	s.logger.Debug("email sent via sendgrid", "event_type", msg.EventType, "event_id", msg.EventID, "status", resp.StatusCode)
	return nil
}

// StubEmailSender logs instead of sending. Local runs use it when no
// provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: not sending", "subject", msg.Subject, "event_type", msg.EventType, "event_id", msg.EventID)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
