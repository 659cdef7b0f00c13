// Package audit keeps an append-only trail of ledger mutations.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Action names a recorded mutation.
type Action string

const (
	ActionProfileCreated      Action = "profile.created"
	ActionProfileUpdated      Action = "profile.updated"
	ActionAppointmentBooked   Action = "appointment.booked"
	ActionAppointmentCanceled Action = "appointment.cancelled"
	ActionPrescriptionCreated Action = "prescription.created"
	ActionOrderPlaced         Action = "order.placed"
	ActionOrderStatusChanged  Action = "order.status_changed"
)

// Event is one immutable audit record. Subjects lists every account the
// mutation concerns so either party can pull their own history.
type Event struct {
	ID        string          `json:"id"`
	Action    Action          `json:"action"`
	ActorID   string          `json:"actor_id"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Subjects  []string        `json:"subjects"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Recorder appends audit events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Details marshals v for Event.Details, dropping it on encode failure.
func Details(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// Service stores audit events in Postgres.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates a new audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Record inserts event, filling in the id and timestamp when missing.
func (s *Service) Record(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	if event.Subjects == nil {
		event.Subjects = []string{}
	}

	query := `
		INSERT INTO audit_events (
			id, action, actor_id, entity, entity_id, subjects, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Action),
		event.ActorID,
		event.Entity,
		event.EntityID,
		pq.Array(event.Subjects),
		nullJSON(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record event: %w", err)
	}
	return nil
}

// Filter specifies criteria for querying audit events.
type Filter struct {
	Subject  string
	Action   Action
	Entity   string
	EntityID string
	Since    time.Time
	Limit    int
	Offset   int
}

// Query retrieves audit events, newest first.
func (s *Service) Query(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, action, actor_id, entity, entity_id, subjects, details, created_at
		FROM audit_events
		WHERE 1 = 1
	`
	var args []any
	argIdx := 1

	if filter.Subject != "" {
		query += fmt.Sprintf(" AND $%d = ANY(subjects)", argIdx)
		args = append(args, filter.Subject)
		argIdx++
	}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, string(filter.Action))
		argIdx++
	}
	if filter.Entity != "" {
		query += fmt.Sprintf(" AND entity = $%d", argIdx)
		args = append(args, filter.Entity)
		argIdx++
	}
	if filter.EntityID != "" {
		query += fmt.Sprintf(" AND entity_id = $%d", argIdx)
		args = append(args, filter.EntityID)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.Since)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var action string
		var details []byte
		if err := rows.Scan(&e.ID, &action, &e.ActorID, &e.Entity, &e.EntityID,
			pq.Array(&e.Subjects), &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.Action = Action(action)
		if len(details) > 0 {
			e.Details = details
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read events: %w", err)
	}
	return events, nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// NopRecorder drops every event.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) error { return nil }

// MemoryRecorder keeps events in memory.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryRecorder) Record(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
