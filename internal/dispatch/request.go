// Package dispatch sends one appointment reminder and records the side effects.
package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"

	"github.com/wolfman30/careplus-reminders/internal/notify"
)

const maxRequestBody = 1 << 20

// Request is the decoded body of a send-notification call.
type Request struct {
	AppointmentID   string
	Channel         notify.Channel
	PatientName     string
	PatientPhone    string
	PatientEmail    string
	AppointmentDate string
	AppointmentTime string
	AppointmentType string
}

type wireRequest struct {
	AppointmentID   string `json:"appointmentId"`
	Channel         string `json:"channel"`
	PatientName     string `json:"patientName"`
	PatientPhone    string `json:"patientPhone"`
	PatientEmail    string `json:"patientEmail"`
	AppointmentDate string `json:"appointmentDate"`
	AppointmentTime string `json:"appointmentTime"`
	AppointmentType string `json:"appointmentType"`
}

// DecodeRequest parses a JSON body. Malformed JSON, an unknown channel, or a missing
// appointmentId are reported as notify.KindBadRequest.
func DecodeRequest(r io.Reader) (Request, error) {
	var wire wireRequest
	if err := json.NewDecoder(io.LimitReader(r, maxRequestBody)).Decode(&wire); err != nil {
		return Request{}, notify.BadRequest("invalid request body", err)
	}

	channel, err := notify.ParseChannel(wire.Channel)
	if err != nil {
		return Request{}, notify.BadRequest("invalid channel", err)
	}
	id := strings.TrimSpace(wire.AppointmentID)
	if id == "" {
		return Request{}, notify.BadRequest("appointmentId is required", nil)
	}

	return Request{
		AppointmentID:   id,
		Channel:         channel,
		PatientName:     wire.PatientName,
		PatientPhone:    strings.TrimSpace(wire.PatientPhone),
		PatientEmail:    strings.TrimSpace(wire.PatientEmail),
		AppointmentDate: wire.AppointmentDate,
		AppointmentTime: wire.AppointmentTime,
		AppointmentType: wire.AppointmentType,
	}, nil
}

// Recipient is the address the channel delivers to.
func (r Request) Recipient() string {
	if r.Channel.NeedsPhone() {
		return r.PatientPhone
	}
	return r.PatientEmail
}

// Fingerprint identifies the decoded request, so one Idempotency-Key cannot be
// reused for a different appointment, channel or recipient.
func (r Request) Fingerprint() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		r.AppointmentID, string(r.Channel), r.PatientName, r.PatientPhone, r.PatientEmail,
		r.AppointmentDate, r.AppointmentTime, r.AppointmentType,
	}, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func (r Request) message() notify.Message {
	return notify.Message{
		To:              r.Recipient(),
		PatientName:     r.PatientName,
		AppointmentDate: r.AppointmentDate,
		AppointmentTime: r.AppointmentTime,
		AppointmentType: r.AppointmentType,
	}
}

// ValidateContact checks that the contact field the channel needs is present.
func ValidateContact(channel notify.Channel, name, phone, email string) error {
	var contact string
	switch channel {
	case notify.ChannelSMS, notify.ChannelWhatsApp:
		contact = phone
	case notify.ChannelEmail:
		contact = email
	default:
		return notify.BadRequest("unsupported channel "+string(channel), nil)
	}
	if strings.TrimSpace(contact) == "" {
		return &notify.Error{Kind: notify.KindMissingContactInfo, Channel: channel, Patient: name}
	}
	return nil
}

// AuditDetails is the human-readable line written to the activity log.
func AuditDetails(r Request) string {
	return r.Channel.Label() + " reminder sent to " + r.PatientName +
		" for appointment on " + r.AppointmentDate + " at " + r.AppointmentTime
}
