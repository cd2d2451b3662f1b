package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]Status{
		"scheduled":   StatusScheduled,
		"Confirmed":   StatusConfirmed,
		" pending ":   StatusPending,
		"MISSED":      StatusMissed,
		"rescheduled": StatusOther,
		"":            StatusOther,
	}
	for raw, want := range tests {
		assert.Equal(t, want, NormalizeStatus(raw), raw)
	}
}

func TestCompletionRate(t *testing.T) {
	assert.Equal(t, 0, CompletionRate(0, 0))
	assert.Equal(t, 67, CompletionRate(2, 3))
	assert.Equal(t, 50, CompletionRate(1, 2))
	assert.Equal(t, 100, CompletionRate(1, 0))
}

func TestCreateAppointmentRequest_Validate(t *testing.T) {
	valid := func() CreateAppointmentRequest {
		return CreateAppointmentRequest{
			PatientName:     "Ana",
			PatientEmail:    "ana@example.com",
			AppointmentDate: "2024-05-01",
			AppointmentTime: "10:00",
			AppointmentType: "Checkup",
		}
	}

	tests := []struct {
		name   string
		mutate func(*CreateAppointmentRequest)
		want   error
	}{
		{"valid", func(*CreateAppointmentRequest) {}, nil},
		{"blank name", func(r *CreateAppointmentRequest) { r.PatientName = "  " }, ErrInvalidName},
		{"no contact", func(r *CreateAppointmentRequest) { r.PatientEmail = "" }, ErrMissingContact},
		{"bad date", func(r *CreateAppointmentRequest) { r.AppointmentDate = "05/01/2024" }, ErrInvalidDate},
		{"no time", func(r *CreateAppointmentRequest) { r.AppointmentTime = "" }, ErrInvalidTime},
		{"no type", func(r *CreateAppointmentRequest) { r.AppointmentType = "" }, ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := req.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInMemoryRepository_CreateAndLedger(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	appt, err := repo.Create(ctx, &CreateAppointmentRequest{
		PatientName:     "Ana",
		PatientPhone:    "+15551234567",
		AppointmentDate: "2024-05-01",
		AppointmentTime: "10:00",
		AppointmentType: "Checkup",
	})
	require.NoError(t, err)
	assert.Equal(t, "scheduled", appt.Status)

	count, err := repo.ReminderCount(ctx, appt.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	at := time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordReminderSent(ctx, appt.ID, 1, at))
	assert.ErrorIs(t, repo.RecordReminderSent(ctx, appt.ID, 0, at), ErrNegativeReminder)

	got, err := repo.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReminderCount)
	require.NotNil(t, got.LastReminderSent)
	assert.True(t, at.Equal(*got.LastReminderSent))

	_, err = repo.ReminderCount(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.RecordReminderSent(ctx, "missing", 1, at), ErrNotFound)
}

func TestInMemoryRepository_ListOrdersByDateThenTime(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.Put(&Appointment{ID: "c", AppointmentDate: "2024-05-02", AppointmentTime: "09:00"})
	repo.Put(&Appointment{ID: "b", AppointmentDate: "2024-05-01", AppointmentTime: "14:00"})
	repo.Put(&Appointment{ID: "a", AppointmentDate: "2024-05-01", AppointmentTime: "08:30"})

	items, err := repo.List(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestInMemoryRepository_Stats(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Hour)
	stale := now.Add(-48 * time.Hour)

	repo := NewInMemoryRepository()
	repo.Put(&Appointment{ID: "1", PatientName: "Ana", PatientEmail: "ana@example.com", AppointmentDate: "2024-05-15", Status: "confirmed", LastReminderSent: &recent})
	repo.Put(&Appointment{ID: "2", PatientName: "Ana", PatientEmail: "ana@example.com", AppointmentDate: "2024-05-20", Status: "scheduled", LastReminderSent: &stale})
	repo.Put(&Appointment{ID: "3", PatientName: "Ben", PatientPhone: "+1555", AppointmentDate: "2024-05-03", Status: "confirmed"})
	repo.Put(&Appointment{ID: "4", PatientName: "Cy", PatientPhone: "+1666", AppointmentDate: "2024-04-28", Status: "missed"})

	stats, err := repo.Stats(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TodayAppointments)
	assert.Equal(t, 3, stats.ActivePatients)
	assert.Equal(t, 1, stats.PendingReminders)
	assert.Equal(t, 67, stats.CompletionRate)

	empty, err := NewInMemoryRepository().Stats(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, &Stats{}, empty)
}
