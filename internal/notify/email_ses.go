package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

// SESAPI is the slice of the SES v2 client the sender uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

var _ SESAPI = (*sesv2.Client)(nil)

// SESSender sends email reminders via AWS SES.
type SESSender struct {
	client    SESAPI
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// NewSESSender creates an SES sender. A nil client is reported at send time.
func NewSESSender(client SESAPI, opts Options, logger *logging.Logger) *SESSender {
	if logger == nil {
		logger = logging.Default()
	}
	fromEmail, fromName := opts.fromAddress()
	return &SESSender{
		client:    client,
		fromEmail: fromEmail,
		fromName:  fromName,
		logger:    logger,
	}
}

var _ Sender = (*SESSender)(nil)

// Send sends an email via AWS SES.
func (s *SESSender) Send(ctx context.Context, msg Message) (Result, error) {
	if s.client == nil {
		return Result{}, &Error{Kind: KindProviderNotConfigured, Channel: ChannelEmail, Provider: EmailProviderSES}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(EmailSubject(msg)),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(EmailText(msg)), Charset: aws.String("UTF-8")},
					Html: &types.Content{Data: aws.String(EmailHTML(msg)), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	output, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("SES send failed", "error", err, "to", maskRecipient(msg.To))
		return Result{}, &Error{Kind: KindProviderRequestFailed, Channel: ChannelEmail, Provider: EmailProviderSES, Err: err}
	}

	messageID := ""
	if output != nil {
		messageID = aws.ToString(output.MessageId)
	}
	payload, _ := json.Marshal(map[string]string{"messageId": messageID})

	s.logger.Info("email sent via SES", "to", maskRecipient(msg.To), "message_id", messageID)
	return Result{Channel: ChannelEmail, Provider: EmailProviderSES, Payload: payload}, nil
}
