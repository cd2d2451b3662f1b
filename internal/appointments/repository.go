package appointments

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ledger is the reminder bookkeeping the dispatch pipeline needs.
type Ledger interface {
	ReminderCount(ctx context.Context, id string) (int, error)
	RecordReminderSent(ctx context.Context, id string, count int, at time.Time) error
}

// Repository defines appointment storage.
type Repository interface {
	Ledger
	List(ctx context.Context) ([]*Appointment, error)
	Get(ctx context.Context, id string) (*Appointment, error)
	Create(ctx context.Context, req *CreateAppointmentRequest) (*Appointment, error)
	UpdateStatus(ctx context.Context, id, status string) (*Appointment, error)
	Stats(ctx context.Context, now time.Time) (*Stats, error)
}

// InMemoryRepository keeps appointments in a map. Used by tests and local runs without DATABASE_URL.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Appointment
	now   func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		items: make(map[string]*Appointment),
		now:   time.Now,
	}
}

var _ Repository = (*InMemoryRepository)(nil)

// Put stores a fully formed appointment, replacing any existing row with the same id.
func (r *InMemoryRepository) Put(appt *Appointment) {
	cp := *appt
	cp.DisplayStatus = NormalizeStatus(cp.Status)
	r.mu.Lock()
	r.items[cp.ID] = &cp
	r.mu.Unlock()
}

func (r *InMemoryRepository) List(ctx context.Context) ([]*Appointment, error) {
	r.mu.RLock()
	out := make([]*Appointment, 0, len(r.items))
	for _, appt := range r.items {
		cp := *appt
		out = append(out, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].AppointmentDate != out[j].AppointmentDate {
			return out[i].AppointmentDate < out[j].AppointmentDate
		}
		return out[i].AppointmentTime < out[j].AppointmentTime
	})
	return out, nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *appt
	return &cp, nil
}

func (r *InMemoryRepository) Create(ctx context.Context, req *CreateAppointmentRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	appt := &Appointment{
		ID:              uuid.New().String(),
		PatientName:     req.PatientName,
		PatientPhone:    req.PatientPhone,
		PatientEmail:    req.PatientEmail,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
		AppointmentType: req.AppointmentType,
		Status:          string(StatusScheduled),
		DisplayStatus:   StatusScheduled,
		Notes:           req.Notes,
		CreatedAt:       r.now().UTC(),
	}
	r.Put(appt)
	return appt, nil
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id, status string) (*Appointment, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, ErrInvalidStatus
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	appt.Status = status
	appt.DisplayStatus = NormalizeStatus(status)
	cp := *appt
	return &cp, nil
}

func (r *InMemoryRepository) ReminderCount(ctx context.Context, id string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.items[id]
	if !ok {
		return 0, ErrNotFound
	}
	return appt.ReminderCount, nil
}

func (r *InMemoryRepository) RecordReminderSent(ctx context.Context, id string, count int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	if count < appt.ReminderCount {
		return ErrNegativeReminder
	}
	sent := at.UTC()
	appt.ReminderCount = count
	appt.LastReminderSent = &sent
	return nil
}

func (r *InMemoryRepository) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	w := newStatsWindow(now)

	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &Stats{}
	patients := make(map[string]struct{})
	var confirmed, monthTotal int
	for _, appt := range r.items {
		patients[patientKey(appt)] = struct{}{}
		if appt.AppointmentDate == w.today {
			stats.TodayAppointments++
		}
		if appt.AppointmentDate >= w.today && (appt.LastReminderSent == nil || appt.LastReminderSent.Before(w.reminderFrom)) {
			stats.PendingReminders++
		}
		if appt.AppointmentDate >= w.monthStart {
			monthTotal++
			if appt.Status == string(StatusConfirmed) {
				confirmed++
			}
		}
	}
	stats.ActivePatients = len(patients)
	stats.CompletionRate = CompletionRate(confirmed, monthTotal)
	return stats, nil
}

// patientKey mirrors the COALESCE used by the Postgres activePatients query.
func patientKey(a *Appointment) string {
	switch {
	case a.PatientEmail != "":
		return a.PatientEmail
	case a.PatientPhone != "":
		return a.PatientPhone
	default:
		return a.PatientName
	}
}
