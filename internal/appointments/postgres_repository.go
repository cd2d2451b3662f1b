package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// db is the subset of pgxpool.Pool the repository uses.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the reminders table.
type PostgresRepository struct {
	db db
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(conn db) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

var _ Repository = (*PostgresRepository)(nil)

const selectColumns = `
	SELECT id::text, patient_name, COALESCE(patient_phone, ''), COALESCE(patient_email, ''),
		appointment_date, appointment_time, appointment_type, status,
		reminder_count, last_reminder_sent, COALESCE(notes, ''), created_at
	FROM reminders`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt Appointment
		date time.Time
	)
	if err := row.Scan(
		&appt.ID,
		&appt.PatientName,
		&appt.PatientPhone,
		&appt.PatientEmail,
		&date,
		&appt.AppointmentTime,
		&appt.AppointmentType,
		&appt.Status,
		&appt.ReminderCount,
		&appt.LastReminderSent,
		&appt.Notes,
		&appt.CreatedAt,
	); err != nil {
		return nil, err
	}
	appt.AppointmentDate = date.Format(dateLayout)
	appt.DisplayStatus = NormalizeStatus(appt.Status)
	return &appt, nil
}

// List returns every appointment, soonest first.
func (r *PostgresRepository) List(ctx context.Context) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, selectColumns+` ORDER BY appointment_date ASC, appointment_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: list rows: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	appt, err := scanAppointment(r.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return appt, nil
}

// Create inserts a scheduled appointment with no reminders sent.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateAppointmentRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO reminders (id, patient_name, patient_phone, patient_email, appointment_date,
			appointment_time, appointment_type, status, reminder_count, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		id,
		req.PatientName,
		nullable(req.PatientPhone),
		nullable(req.PatientEmail),
		req.AppointmentDate,
		req.AppointmentTime,
		req.AppointmentType,
		string(StatusScheduled),
		nullable(req.Notes),
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("appointments: insert: %w", err)
	}

	return &Appointment{
		ID:              id.String(),
		PatientName:     req.PatientName,
		PatientPhone:    req.PatientPhone,
		PatientEmail:    req.PatientEmail,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
		AppointmentType: req.AppointmentType,
		Status:          string(StatusScheduled),
		DisplayStatus:   StatusScheduled,
		Notes:           req.Notes,
		CreatedAt:       createdAt,
	}, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id, status string) (*Appointment, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, ErrInvalidStatus
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	ct, err := r.db.Exec(ctx, `UPDATE reminders SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return nil, fmt.Errorf("appointments: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

// ReminderCount reads the current count. An unknown id is ErrNotFound.
func (r *PostgresRepository) ReminderCount(ctx context.Context, id string) (int, error) {
	if _, err := uuid.Parse(id); err != nil {
		return 0, ErrNotFound
	}
	var count int
	if err := r.db.QueryRow(ctx, `SELECT reminder_count FROM reminders WHERE id = $1`, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("appointments: read reminder count: %w", err)
	}
	return count, nil
}

// RecordReminderSent writes the new count and timestamp in one statement.
func (r *PostgresRepository) RecordReminderSent(ctx context.Context, id string, count int, at time.Time) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE reminders SET last_reminder_sent = $2, reminder_count = $3 WHERE id = $1`,
		id, at.UTC(), count)
	if err != nil {
		return fmt.Errorf("appointments: record reminder: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats computes the dashboard tiles.
func (r *PostgresRepository) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	w := newStatsWindow(now)
	stats := &Stats{}

	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM reminders WHERE appointment_date = $1`, w.today,
	).Scan(&stats.TodayAppointments); err != nil {
		return nil, fmt.Errorf("appointments: stats today: %w", err)
	}

	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT COALESCE(NULLIF(patient_email, ''), NULLIF(patient_phone, ''), patient_name)) FROM reminders`,
	).Scan(&stats.ActivePatients); err != nil {
		return nil, fmt.Errorf("appointments: stats patients: %w", err)
	}

	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM reminders WHERE appointment_date >= $1 AND (last_reminder_sent IS NULL OR last_reminder_sent < $2)`,
		w.today, w.reminderFrom,
	).Scan(&stats.PendingReminders); err != nil {
		return nil, fmt.Errorf("appointments: stats pending: %w", err)
	}

	var confirmed, total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE status = 'confirmed'), COUNT(*) FROM reminders WHERE appointment_date >= $1`,
		w.monthStart,
	).Scan(&confirmed, &total); err != nil {
		return nil, fmt.Errorf("appointments: stats month: %w", err)
	}
	stats.CompletionRate = CompletionRate(confirmed, total)

	return stats, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
