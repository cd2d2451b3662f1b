package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

const resendAPIBase = "https://api.resend.com"

type resendEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// ResendSender delivers email reminders through the Resend REST API.
type ResendSender struct {
	apiKey     string
	baseURL    string
	from       string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewResendSender builds a Resend sender. An empty EmailAPIKey is reported at send time.
func NewResendSender(opts Options, logger *logging.Logger) *ResendSender {
	if logger == nil {
		logger = logging.Default()
	}
	base := strings.TrimRight(strings.TrimSpace(opts.ResendBaseURL), "/")
	if base == "" {
		base = resendAPIBase
	}
	addr, name := opts.fromAddress()
	return &ResendSender{
		apiKey:     strings.TrimSpace(opts.EmailAPIKey),
		baseURL:    base,
		from:       fmt.Sprintf("%s <%s>", name, addr),
		httpClient: opts.httpClient(),
		logger:     logger,
	}
}

var _ Sender = (*ResendSender)(nil)

// Send posts one email.
func (s *ResendSender) Send(ctx context.Context, msg Message) (Result, error) {
	if s.apiKey == "" {
		return Result{}, &Error{Kind: KindProviderNotConfigured, Channel: ChannelEmail, Provider: EmailProviderResend}
	}

	payload, err := json.Marshal(resendEmail{
		From:    s.from,
		To:      []string{msg.To},
		Subject: EmailSubject(msg),
		HTML:    EmailHTML(msg),
	})
	if err != nil {
		return Result{}, &Error{Kind: KindProviderRequestFailed, Channel: ChannelEmail, Provider: EmailProviderResend, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return Result{}, &Error{Kind: KindProviderRequestFailed, Channel: ChannelEmail, Provider: EmailProviderResend, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("resend request failed", "error", err, "to", maskRecipient(msg.To))
		return Result{}, &Error{Kind: KindProviderRequestFailed, Channel: ChannelEmail, Provider: EmailProviderResend, Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		provErr := &Error{
			Kind:     KindProviderRequestFailed,
			Channel:  ChannelEmail,
			Provider: EmailProviderResend,
			Status:   resp.StatusCode,
			Message:  resendErrorMessage(raw),
		}
		s.logger.Error("resend returned error status", "status", resp.StatusCode, "to", maskRecipient(msg.To))
		return Result{}, provErr
	}

	s.logger.Info("email sent via resend", "to", maskRecipient(msg.To))
	return Result{Channel: ChannelEmail, Provider: EmailProviderResend, Payload: rawJSON(raw)}, nil
}

func resendErrorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return "Unknown error"
}
