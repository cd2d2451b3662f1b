package appointments

import (
	"math"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Status is the display bucket of an appointment's stored status.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
	StatusMissed    Status = "missed"
	StatusOther     Status = "other"
)

// NormalizeStatus maps a stored status onto the display buckets. Unknown values become StatusOther.
func NormalizeStatus(raw string) Status {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusScheduled, StatusConfirmed, StatusPending, StatusMissed:
		return s
	default:
		return StatusOther
	}
}

// Appointment is one row of the reminders table.
type Appointment struct {
	ID               string     `json:"id"`
	PatientName      string     `json:"patient_name"`
	PatientPhone     string     `json:"patient_phone,omitempty"`
	PatientEmail     string     `json:"patient_email,omitempty"`
	AppointmentDate  string     `json:"appointment_date"`
	AppointmentTime  string     `json:"appointment_time"`
	AppointmentType  string     `json:"appointment_type"`
	Status           string     `json:"status"`
	DisplayStatus    Status     `json:"display_status"`
	ReminderCount    int        `json:"reminder_count"`
	LastReminderSent *time.Time `json:"last_reminder_sent,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// CreateAppointmentRequest is the body of POST /api/appointments.
type CreateAppointmentRequest struct {
	PatientName     string `json:"patient_name"`
	PatientPhone    string `json:"patient_phone"`
	PatientEmail    string `json:"patient_email"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	AppointmentType string `json:"appointment_type"`
	Notes           string `json:"notes"`
}

// Validate trims the request in place and checks required fields.
func (r *CreateAppointmentRequest) Validate() error {
	r.PatientName = strings.TrimSpace(r.PatientName)
	r.PatientPhone = strings.TrimSpace(r.PatientPhone)
	r.PatientEmail = strings.TrimSpace(r.PatientEmail)
	r.AppointmentDate = strings.TrimSpace(r.AppointmentDate)
	r.AppointmentTime = strings.TrimSpace(r.AppointmentTime)
	r.AppointmentType = strings.TrimSpace(r.AppointmentType)
	r.Notes = strings.TrimSpace(r.Notes)

	if r.PatientName == "" {
		return ErrInvalidName
	}
	if r.PatientPhone == "" && r.PatientEmail == "" {
		return ErrMissingContact
	}
	if _, err := time.Parse(dateLayout, r.AppointmentDate); err != nil {
		return ErrInvalidDate
	}
	if r.AppointmentTime == "" {
		return ErrInvalidTime
	}
	if r.AppointmentType == "" {
		return ErrInvalidType
	}
	return nil
}

// Stats backs the dashboard tiles.
type Stats struct {
	TodayAppointments int `json:"todayAppointments"`
	ActivePatients    int `json:"activePatients"`
	PendingReminders  int `json:"pendingReminders"`
	CompletionRate    int `json:"completionRate"`
}

// CompletionRate is confirmed/total as a rounded percentage; total is floored at 1.
func CompletionRate(confirmed, total int) int {
	if total < 1 {
		total = 1
	}
	return int(math.Round(float64(confirmed) / float64(total) * 100))
}

// statsWindow holds the boundaries used by every stats query.
type statsWindow struct {
	today        string
	monthStart   string
	reminderFrom time.Time
}

func newStatsWindow(now time.Time) statsWindow {
	now = now.UTC()
	return statsWindow{
		today:        now.Format(dateLayout),
		monthStart:   time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Format(dateLayout),
		reminderFrom: now.Add(-24 * time.Hour),
	}
}
