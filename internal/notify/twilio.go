package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

var twilioTracer = otel.Tracer("careplus.internal.notify.twilio")

const (
	twilioAPIBase   = "https://api.twilio.com"
	maxProviderBody = 64 << 10
	whatsAppPrefix  = "whatsapp:"
)

// twilioClient posts to the Programmable Messaging API.
type twilioClient struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

func newTwilioClient(accountSID, authToken, baseURL string, httpClient *http.Client) *twilioClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = twilioAPIBase
	}
	return &twilioClient{
		accountSID: strings.TrimSpace(accountSID),
		authToken:  strings.TrimSpace(authToken),
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

func (c *twilioClient) configured() bool {
	return c != nil && c.accountSID != "" && c.authToken != ""
}

func (c *twilioClient) send(ctx context.Context, channel Channel, to, from, body string) (Result, error) {
	ctx, span := twilioTracer.Start(ctx, "notify.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("careplus.channel", string(channel)))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, &Error{Kind: KindProviderRequestFailed, Channel: channel, Provider: "twilio", Err: err}
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return Result{}, &Error{Kind: KindProviderRequestFailed, Channel: channel, Provider: "twilio", Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		provErr := &Error{
			Kind:     KindProviderRequestFailed,
			Channel:  channel,
			Provider: "twilio",
			Status:   resp.StatusCode,
			Message:  twilioErrorMessage(raw),
		}
		span.RecordError(provErr)
		return Result{}, provErr
	}
	return Result{Channel: channel, Provider: "twilio", Payload: rawJSON(raw)}, nil
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func twilioErrorMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	var parsed twilioAPIError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("%s (code %d)", parsed.Message, parsed.Code)
		}
		return parsed.Message
	}
	return string(body)
}

// rawJSON returns body as a JSON value: valid JSON is passed through, anything else becomes a string.
func rawJSON(body []byte) json.RawMessage {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(body) {
		return append(json.RawMessage(nil), body...)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// TwilioSMSSender delivers SMS reminders.
type TwilioSMSSender struct {
	client *twilioClient
	from   string
	logger *logging.Logger
}

// NewTwilioSMSSender builds an SMS sender from the account credentials and SMSFromNumber.
func NewTwilioSMSSender(opts Options, logger *logging.Logger) *TwilioSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioSMSSender{
		client: newTwilioClient(opts.SMSAccountID, opts.SMSAuthToken, opts.TwilioBaseURL, opts.httpClient()),
		from:   strings.TrimSpace(opts.SMSFromNumber),
		logger: logger,
	}
}

var _ Sender = (*TwilioSMSSender)(nil)

// Send posts one SMS. No retries.
func (s *TwilioSMSSender) Send(ctx context.Context, msg Message) (Result, error) {
	if !s.client.configured() || s.from == "" {
		return Result{}, &Error{Kind: KindProviderNotConfigured, Channel: ChannelSMS, Provider: "twilio"}
	}
	res, err := s.client.send(ctx, ChannelSMS, msg.To, s.from, SMSBody(msg))
	if err != nil {
		s.logger.Error("twilio sms failed", "error", err, "to", maskRecipient(msg.To))
		return Result{}, err
	}
	s.logger.Info("twilio sms sent", "to", maskRecipient(msg.To))
	return res, nil
}

// TwilioWhatsAppSender delivers WhatsApp reminders through Twilio's whatsapp: addressing.
type TwilioWhatsAppSender struct {
	client *twilioClient
	from   string
	logger *logging.Logger
}

// NewTwilioWhatsAppSender builds a WhatsApp sender from the account credentials and WhatsAppFromNumber.
func NewTwilioWhatsAppSender(opts Options, logger *logging.Logger) *TwilioWhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioWhatsAppSender{
		client: newTwilioClient(opts.SMSAccountID, opts.SMSAuthToken, opts.TwilioBaseURL, opts.httpClient()),
		from:   strings.TrimSpace(opts.WhatsAppFromNumber),
		logger: logger,
	}
}

var _ Sender = (*TwilioWhatsAppSender)(nil)

// Send posts one WhatsApp message. No retries.
func (s *TwilioWhatsAppSender) Send(ctx context.Context, msg Message) (Result, error) {
	if !s.client.configured() || s.from == "" {
		return Result{}, &Error{Kind: KindProviderNotConfigured, Channel: ChannelWhatsApp, Provider: "twilio"}
	}
	res, err := s.client.send(ctx, ChannelWhatsApp, withWhatsAppPrefix(msg.To), withWhatsAppPrefix(s.from), WhatsAppBody(msg))
	if err != nil {
		s.logger.Error("twilio whatsapp failed", "error", err, "to", maskRecipient(msg.To))
		return Result{}, err
	}
	s.logger.Info("twilio whatsapp sent", "to", maskRecipient(msg.To))
	return res, nil
}

func withWhatsAppPrefix(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, whatsAppPrefix) {
		return number
	}
	return whatsAppPrefix + number
}
