package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

const (
	// EmailProviderResend posts to the Resend REST API (default).
	EmailProviderResend = "resend"
	// EmailProviderSendGrid uses the SendGrid v3 mail API.
	EmailProviderSendGrid = "sendgrid"
	// EmailProviderSES uses AWS SES v2.
	EmailProviderSES = "ses"

	defaultProviderTimeout = 10 * time.Second
	defaultEmailFrom       = "onboarding@resend.dev"
	defaultEmailFromName   = "CarePlus"
)

// Sender delivers one reminder over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// Result carries the provider response back to the caller untouched.
type Result struct {
	Channel  Channel
	Provider string
	Payload  json.RawMessage
}

// Options holds provider credentials. Each field is only required by the sender that uses it.
type Options struct {
	SMSAccountID       string
	SMSAuthToken       string
	SMSFromNumber      string
	WhatsAppFromNumber string

	EmailProvider string
	EmailAPIKey   string
	EmailFrom     string
	EmailFromName string

	// Timeout bounds each provider call. Zero means 10s.
	Timeout    time.Duration
	HTTPClient *http.Client

	// Base URL overrides, used against local fakes.
	TwilioBaseURL string
	ResendBaseURL string
	SendGridHost  string

	// SES is required when EmailProvider is "ses".
	SES SESAPI
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

func (o Options) fromAddress() (string, string) {
	from := strings.TrimSpace(o.EmailFrom)
	if from == "" {
		from = defaultEmailFrom
	}
	name := strings.TrimSpace(o.EmailFromName)
	if name == "" {
		name = defaultEmailFromName
	}
	return from, name
}

// Senders holds one sender per channel.
type Senders struct {
	SMS      Sender
	WhatsApp Sender
	Email    Sender
}

// NewSenders builds the channel senders from opts. Senders are always returned;
// missing credentials surface as ProviderNotConfigured when a send is attempted.
func NewSenders(opts Options, logger *logging.Logger) Senders {
	if logger == nil {
		logger = logging.Default()
	}
	opts.HTTPClient = opts.httpClient()

	var email Sender
	switch strings.ToLower(strings.TrimSpace(opts.EmailProvider)) {
	case EmailProviderSendGrid:
		email = NewSendGridSender(opts, logger)
	case EmailProviderSES:
		email = NewSESSender(opts.SES, opts, logger)
	default:
		email = NewResendSender(opts, logger)
	}

	return Senders{
		SMS:      NewTwilioSMSSender(opts, logger),
		WhatsApp: NewTwilioWhatsAppSender(opts, logger),
		Email:    email,
	}
}

// For returns the sender registered for ch.
func (s Senders) For(ch Channel) (Sender, error) {
	var sender Sender
	provider := ""
	switch ch {
	case ChannelSMS:
		sender, provider = s.SMS, "twilio"
	case ChannelWhatsApp:
		sender, provider = s.WhatsApp, "twilio"
	case ChannelEmail:
		sender, provider = s.Email, "email"
	default:
		return nil, BadRequest("unsupported channel "+string(ch), nil)
	}
	if sender == nil {
		return nil, &Error{Kind: KindProviderNotConfigured, Channel: ch, Provider: provider}
	}
	return sender, nil
}
