package notify

import (
	"fmt"
	"html"
	"strings"
)

// Message is what every channel sender needs to build one reminder.
type Message struct {
	// To is a phone number for sms/whatsapp and an address for email.
	To              string
	PatientName     string
	AppointmentDate string
	AppointmentTime string
	AppointmentType string
}

// SMSBody is the SMS reminder text, including the carrier opt-out line.
func SMSBody(m Message) string {
	return fmt.Sprintf("Hi %s, this is a reminder for your %s appointment on %s at %s. Please confirm your attendance. Reply STOP to opt out.",
		m.PatientName, m.AppointmentType, m.AppointmentDate, m.AppointmentTime)
}

// WhatsAppBody is the WhatsApp reminder text.
func WhatsAppBody(m Message) string {
	return fmt.Sprintf("Hi %s, this is a reminder for your %s appointment on %s at %s. Please confirm your attendance.",
		m.PatientName, m.AppointmentType, m.AppointmentDate, m.AppointmentTime)
}

// EmailSubject is the subject line for email reminders.
func EmailSubject(m Message) string {
	return "Appointment Reminder - " + m.AppointmentType
}

// EmailText is the plain-text email body used by providers that send both parts.
func EmailText(m Message) string {
	return fmt.Sprintf(`Dear %s,

This is a friendly reminder about your upcoming appointment:

Type: %s
Date: %s
Time: %s

Please make sure to arrive 15 minutes early for your appointment.
If you need to reschedule or cancel, please contact us as soon as possible.

Best regards,
CarePlus Team`, m.PatientName, m.AppointmentType, m.AppointmentDate, m.AppointmentTime)
}

// EmailHTML is the HTML email body. Fields are escaped.
func EmailHTML(m Message) string {
	return fmt.Sprintf(`<h2>Appointment Reminder</h2>
<p>Dear %s,</p>
<p>This is a friendly reminder about your upcoming appointment:</p>
<ul>
  <li><strong>Type:</strong> %s</li>
  <li><strong>Date:</strong> %s</li>
  <li><strong>Time:</strong> %s</li>
</ul>
<p>Please make sure to arrive 15 minutes early for your appointment.</p>
<p>If you need to reschedule or cancel, please contact us as soon as possible.</p>
<p>Best regards,<br>CarePlus Team</p>`,
		html.EscapeString(m.PatientName),
		html.EscapeString(m.AppointmentType),
		html.EscapeString(m.AppointmentDate),
		html.EscapeString(m.AppointmentTime),
	)
}

// maskRecipient hides a phone number or email address for logging.
func maskRecipient(to string) string {
	to = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(to), whatsAppPrefix))
	if at := strings.LastIndex(to, "@"); at >= 0 {
		if at == 0 {
			return "***" + to
		}
		return to[:1] + "***" + to[at:]
	}
	if len(to) <= 4 {
		return "****"
	}
	return "***" + to[len(to)-4:]
}
