package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

const sendGridMailEndpoint = "/v3/mail/send"

// SendGridSender delivers email reminders via the SendGrid v3 API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// NewSendGridSender creates a SendGrid sender. Without an API key the client is left nil
// and Send reports ProviderNotConfigured.
func NewSendGridSender(opts Options, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	fromEmail, fromName := opts.fromAddress()
	sender := &SendGridSender{fromEmail: fromEmail, fromName: fromName, logger: logger}

	key := strings.TrimSpace(opts.EmailAPIKey)
	if key == "" {
		return sender
	}
	req := sendgrid.GetRequest(key, sendGridMailEndpoint, strings.TrimRight(opts.SendGridHost, "/"))
	req.Method = "POST"
	sender.client = &sendgrid.Client{Request: req}
	return sender
}

var _ Sender = (*SendGridSender)(nil)

// Send sends an email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg Message) (Result, error) {
	if s.client == nil {
		return Result{}, &Error{Kind: KindProviderNotConfigured, Channel: ChannelEmail, Provider: EmailProviderSendGrid}
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.PatientName, msg.To)
	message := mail.NewSingleEmail(from, EmailSubject(msg), to, EmailText(msg), EmailHTML(msg))

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", maskRecipient(msg.To))
		return Result{}, &Error{Kind: KindProviderRequestFailed, Channel: ChannelEmail, Provider: EmailProviderSendGrid, Err: err}
	}

	if response.StatusCode >= 300 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", maskRecipient(msg.To))
		return Result{}, &Error{
			Kind:     KindProviderRequestFailed,
			Channel:  ChannelEmail,
			Provider: EmailProviderSendGrid,
			Status:   response.StatusCode,
			Message:  sendGridErrorMessage(response.Body),
		}
	}

	messageID := ""
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	payload, _ := json.Marshal(map[string]any{"status": response.StatusCode, "messageId": messageID})

	s.logger.Info("email sent via sendgrid", "to", maskRecipient(msg.To), "status", response.StatusCode)
	return Result{Channel: ChannelEmail, Provider: EmailProviderSendGrid, Payload: payload}, nil
}

func sendGridErrorMessage(body string) string {
	var parsed struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil && len(parsed.Errors) > 0 && parsed.Errors[0].Message != "" {
		return parsed.Errors[0].Message
	}
	if strings.TrimSpace(body) == "" {
		return "Unknown error"
	}
	return body
}
