// Package audit records the append-only activity log shown on the dashboard.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Entry is one row of the logs table.
type Entry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Logger appends entries. Implementations never update or delete.
type Logger interface {
	Append(ctx context.Context, action, details string) error
}

// Reader lists recent entries.
type Reader interface {
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// Filter narrows List. Zero values mean no filtering.
type Filter struct {
	Actions []string
	Limit   int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}

// Service writes to the logs table.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

var (
	_ Logger = (*Service)(nil)
	_ Reader = (*Service)(nil)
)

// Append inserts one entry.
func (s *Service) Append(ctx context.Context, action, details string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("audit: database not configured")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (id, action, details, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), action, details, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit: failed to append entry: %w", err)
	}
	return nil
}

// List returns the newest entries first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `SELECT id, COALESCE(action, ''), COALESCE(details, ''), created_at FROM logs`
	var args []any
	if actions := cleanActions(filter.Actions); len(actions) > 0 {
		query += ` WHERE action = ANY($1)`
		args = append(args, pq.Array(actions))
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", filter.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read entries: %w", err)
	}
	return entries, nil
}

func cleanActions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// MemoryLog is an in-process Logger and Reader.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
	// Err, when set, is returned from Append instead of recording.
	Err error
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

var (
	_ Logger = (*MemoryLog)(nil)
	_ Reader = (*MemoryLog)(nil)
)

func (m *MemoryLog) Append(ctx context.Context, action, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.entries = append(m.entries, Entry{
		ID:        uuid.NewString(),
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *MemoryLog) List(ctx context.Context, filter Filter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]bool)
	for _, a := range cleanActions(filter.Actions) {
		wanted[a] = true
	}
	out := []Entry{}
	for i := len(m.entries) - 1; i >= 0 && len(out) < filter.limit(); i-- {
		e := m.entries[i]
		if len(wanted) > 0 && !wanted[e.Action] {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Entries returns a copy of everything appended, oldest first.
func (m *MemoryLog) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
