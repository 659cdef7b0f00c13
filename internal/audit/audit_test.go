package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	svc := NewService(db)
	svc.now = func() time.Time { return fixedNow }
	return svc, mock
}

func TestServiceRecord(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(sqlmock.AnyArg(), "order.placed", "patient-1", "order", "o-1",
			pq.Array([]string{"patient-1", "pharmacy-1"}), []byte(`{"status":"pending"}`), fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := svc.Record(context.Background(), Event{
		Action:   ActionOrderPlaced,
		ActorID:  "patient-1",
		Entity:   "order",
		EntityID: "o-1",
		Subjects: []string{"patient-1", "pharmacy-1"},
		Details:  Details(map[string]string{"status": "pending"}),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceRecordWrapsErrors(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectExec("INSERT INTO audit_events").WillReturnError(errors.New("connection refused"))

	err := svc.Record(context.Background(), Event{Action: ActionProfileCreated, ActorID: "a", Entity: "patient", EntityID: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit: failed to record event")
}

func TestServiceQueryBySubject(t *testing.T) {
	svc, mock := newMockService(t)

	rows := sqlmock.NewRows([]string{"id", "action", "actor_id", "entity", "entity_id", "subjects", "details", "created_at"}).
		AddRow("e-2", "order.status_changed", "pharmacy-1", "order", "o-1", "{patient-1,pharmacy-1}", []byte(`{"to":"fulfilled"}`), fixedNow.Add(time.Minute)).
		AddRow("e-1", "order.placed", "patient-1", "order", "o-1", "{patient-1,pharmacy-1}", nil, fixedNow)
	mock.ExpectQuery(`SELECT id, action, actor_id, entity, entity_id, subjects, details, created_at\s+FROM audit_events\s+WHERE 1 = 1\s+AND \$1 = ANY\(subjects\) AND entity = \$2 ORDER BY created_at DESC LIMIT 10`).
		WithArgs("patient-1", "order").
		WillReturnRows(rows)

	events, err := svc.Query(context.Background(), Filter{Subject: "patient-1", Entity: "order", Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ActionOrderStatusChanged, events[0].Action)
	assert.Equal(t, []string{"patient-1", "pharmacy-1"}, events[0].Subjects)
	assert.JSONEq(t, `{"to":"fulfilled"}`, string(events[0].Details))
	assert.Nil(t, events[1].Details)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryRecorder(t *testing.T) {
	var rec MemoryRecorder
	require.NoError(t, rec.Record(context.Background(), Event{Action: ActionAppointmentBooked}))
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, ActionAppointmentBooked, rec.Events()[0].Action)
}
