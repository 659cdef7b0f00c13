package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends notifications through Amazon SES v2.
type SESSender struct {
	client sesAPI
	from   Sender
	logger *logging.Logger
}

// NewSESSender returns nil without a client.
func NewSESSender(client sesAPI, from Sender, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SESSender{client: client, from: from.withDefaults(), logger: logger}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(address(s.from.Name, s.from.Email)),
		Destination:      &types.Destination{ToAddresses: []string{address(msg.ToName, msg.To)}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(msg.Subject),
				Body:    &types.Body{Text: utf8Content(msg.Text)},
			},
		},
		EmailTags: sesTags(msg),
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		var rejected *types.MessageRejected
		var badRequest *types.BadRequestException
		if errors.As(err, &rejected) || errors.As(err, &badRequest) {
			s.logger.Warn("SES rejected message", "event_type", msg.EventType, "error", err)
			return fmt.Errorf("%w: %w", ErrRejected, err)
		}
		return fmt.Errorf("notify: SES send: %w", err)
	}
	s.logger.Debug("email sent via SES", "event_type", msg.EventType, "event_id", msg.EventID, "message_id", aws.ToString(out.MessageId))
	return nil
}

func address(name, email string) string {
	if name == "" {
		return email
	}
	return (&mail.Address{Name: name, Address: email}).String()
}

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

// SES tag values allow only ASCII letters, digits, '_' and '-'.
var tagReplacer = strings.NewReplacer(".", "_", ":", "_")

func sesTags(msg EmailMessage) []types.MessageTag {
	var tags []types.MessageTag
	if msg.EventType != "" {
		tags = append(tags, types.MessageTag{Name: aws.String("event_type"), Value: aws.String(tagReplacer.Replace(msg.EventType))})
	}
	if msg.EventID != "" {
		tags = append(tags, types.MessageTag{Name: aws.String("event_id"), Value: aws.String(msg.EventID)})
	}
	return tags
}

var _ EmailSender = (*SESSender)(nil)
