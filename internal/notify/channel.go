package notify

import (
	"fmt"
	"strings"
)

// Channel is the medium used to deliver a reminder.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

// Channels lists every supported channel in display order.
var Channels = []Channel{ChannelSMS, ChannelWhatsApp, ChannelEmail}

// ParseChannel accepts the wire value of a channel, case-insensitively.
func ParseChannel(raw string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(raw))) {
	case ChannelSMS:
		return ChannelSMS, nil
	case ChannelWhatsApp:
		return ChannelWhatsApp, nil
	case ChannelEmail:
		return ChannelEmail, nil
	default:
		return "", fmt.Errorf("unsupported channel %q", raw)
	}
}

// NeedsPhone reports whether the channel delivers to a phone number.
func (c Channel) NeedsPhone() bool {
	return c == ChannelSMS || c == ChannelWhatsApp
}

// Label is the upper-case form used in audit details ("SMS", "WHATSAPP", "EMAIL").
func (c Channel) Label() string {
	return strings.ToUpper(string(c))
}

// AuditAction is the audit log tag written after a successful send.
func (c Channel) AuditAction() string {
	return "reminder_sent_" + string(c)
}
