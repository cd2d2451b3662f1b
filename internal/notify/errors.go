package notify

import (
	"errors"
	"fmt"
)

// Kind classifies dispatch failures.
type Kind string

const (
	KindBadRequest            Kind = "bad_request"
	KindMissingContactInfo    Kind = "missing_contact_info"
	KindProviderNotConfigured Kind = "provider_not_configured"
	KindProviderRequestFailed Kind = "provider_request_failed"
	KindLedgerReadFailed      Kind = "ledger_read_failed"
	KindLedgerWriteFailed     Kind = "ledger_write_failed"
)

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrBadRequest            = &Error{Kind: KindBadRequest}
	ErrMissingContactInfo    = &Error{Kind: KindMissingContactInfo}
	ErrProviderNotConfigured = &Error{Kind: KindProviderNotConfigured}
	ErrProviderRequestFailed = &Error{Kind: KindProviderRequestFailed}
	ErrLedgerReadFailed      = &Error{Kind: KindLedgerReadFailed}
	ErrLedgerWriteFailed     = &Error{Kind: KindLedgerWriteFailed}
)

// Error is the single error type surfaced by senders and the dispatch pipeline.
type Error struct {
	Kind     Kind
	Channel  Channel
	Provider string
	// Patient is set for missing contact info.
	Patient string
	// Status is the provider HTTP status for failed requests.
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissingContactInfo:
		if e.Patient != "" {
			return fmt.Sprintf("missing contact information for %s notification to %s", e.Channel, e.Patient)
		}
		return fmt.Sprintf("missing contact information for %s notification", e.Channel)
	case KindProviderNotConfigured:
		return fmt.Sprintf("%s credentials not configured for %s", e.Provider, e.Channel)
	case KindProviderRequestFailed:
		msg := e.Message
		if msg == "" && e.Err != nil {
			msg = e.Err.Error()
		}
		if msg == "" {
			msg = "unknown error"
		}
		if e.Status > 0 {
			return fmt.Sprintf("%s %s error: status %d: %s", e.Provider, e.Channel, e.Status, msg)
		}
		return fmt.Sprintf("%s %s error: %s", e.Provider, e.Channel, msg)
	}

	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by kind so callers can compare against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the failure kind, or "" for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// BadRequest wraps a decoding or shape problem with the incoming request.
func BadRequest(msg string, err error) *Error {
	return &Error{Kind: KindBadRequest, Message: msg, Err: err}
}
