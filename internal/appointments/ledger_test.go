package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/rams-care-platform/internal/audit"
	"github.com/wolfman30/rams-care-platform/internal/directory"
	"github.com/wolfman30/rams-care-platform/internal/docstore"
	"github.com/wolfman30/rams-care-platform/internal/events"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/internal/ledger"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

var fixedNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

const (
	patientID     = "patient-1"
	otherPatient  = "patient-2"
	practitioner  = "doctor-video"
	clinicOwner   = "doctor-clinic"
	unverifiedDoc = "doctor-new"
)

type fixture struct {
	store  *docstore.MemoryStore
	ledger *Ledger
	events *events.Recorder
	audit  *audit.MemoryRecorder
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  docstore.NewMemoryStore(),
		events: &events.Recorder{},
		audit:  &audit.MemoryRecorder{},
		now:    fixedNow,
	}
	ctx := context.Background()
	for _, p := range []identity.PatientProfile{
		{AccountID: patientID, PatientID: "RAMS-P-1", Name: "Asha Rao", Mobile: "9876543210"},
		{AccountID: otherPatient, PatientID: "RAMS-P-2", Name: "Kiran Shah", Mobile: "9876500000"},
	} {
		require.NoError(t, docstore.InsertAs(ctx, f.store, identity.CollectionPatients, p.AccountID, p))
	}
	for _, d := range []identity.DoctorProfile{
		{AccountID: practitioner, DoctorID: "RAMS-D-1", Name: "Dr. Vikram Mehta", Specialization: "Dermatology", ProfileType: identity.ProfileTypePractitioner, IsVerified: true},
		{AccountID: clinicOwner, DoctorID: "RAMS-D-2", Name: "Dr. Priya Nair", Specialization: "Cardiology", ProfileType: identity.ProfileTypeClinicOwner, ClinicName: "Heart Care", IsVerified: true},
		{AccountID: unverifiedDoc, DoctorID: "RAMS-D-3", Name: "Dr. New", ProfileType: identity.ProfileTypePractitioner},
	} {
		require.NoError(t, docstore.InsertAs(ctx, f.store, identity.CollectionDoctors, d.AccountID, d))
	}
	doctors := directory.NewService(f.store, nil, 0, logging.Discard())
	f.ledger = NewLedger(f.store, doctors, ledger.Hooks{
		Events: f.events,
		Audit:  f.audit,
		Logger: logging.Discard(),
		Now:    func() time.Time { return f.now },
	})
	return f
}

func booking(doctorID string, ct ConsultationType) BookingRequest {
	return BookingRequest{DoctorID: doctorID, Date: "2025-03-01", TimeSlot: "10:00 AM", ConsultationType: ct}
}

func TestCreateVideoAppointment(t *testing.T) {
	f := newFixture(t)

	appt, err := f.ledger.Create(context.Background(), patientID, booking(practitioner, ConsultationVideo))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, patientID, appt.PatientID)
	assert.Equal(t, "Dr. Vikram Mehta", appt.DoctorName)
	assert.Equal(t, fixedNow, appt.CreatedAt)

	stored, err := f.ledger.Appointment(context.Background(), appt.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, appt.DoctorName, stored.DoctorName)

	assert.Equal(t, []string{events.TypeAppointmentBooked}, f.events.Types())
	require.Len(t, f.audit.Events(), 1)
	assert.ElementsMatch(t, []string{patientID, practitioner}, f.audit.Events()[0].Subjects)
}

func TestCreateInClinicRequiresClinicOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Create(ctx, patientID, booking(practitioner, ConsultationInClinic))
	assert.ErrorIs(t, err, ErrInClinicUnavailable)
	assert.Equal(t, failure.KindValidation, failure.KindOf(err))

	_, err = f.ledger.Create(ctx, patientID, booking(clinicOwner, ConsultationInClinic))
	assert.NoError(t, err)
}

func TestCreateRejectsBookingForAnotherPatient(t *testing.T) {
	f := newFixture(t)
	req := booking(practitioner, ConsultationVideo)
	req.PatientID = otherPatient

	_, err := f.ledger.Create(context.Background(), patientID, req)
	assert.ErrorIs(t, err, ErrBookForOther)
	assert.Equal(t, failure.KindUnauthorized, failure.KindOf(err))

	list, err := f.ledger.ListForPatient(context.Background(), otherPatient)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		caller string
		mutate func(*BookingRequest)
		want   error
	}{
		{"unknown slot", patientID, func(r *BookingRequest) { r.TimeSlot = "01:00 PM" }, ErrSlotInvalid},
		{"malformed date", patientID, func(r *BookingRequest) { r.Date = "01/03/2025" }, ErrDateInvalid},
		{"impossible date", patientID, func(r *BookingRequest) { r.Date = "2025-02-30" }, ErrDateInvalid},
		{"two days ago", patientID, func(r *BookingRequest) { r.Date = "2025-02-27" }, ErrDateInPast},
		{"bad consultation type", patientID, func(r *BookingRequest) { r.ConsultationType = "phone" }, ErrConsultationType},
		{"unknown doctor", patientID, func(r *BookingRequest) { r.DoctorID = "nobody" }, ErrDoctorNotFound},
		{"empty doctor", patientID, func(r *BookingRequest) { r.DoctorID = "" }, ErrDoctorNotFound},
		{"blank doctor", patientID, func(r *BookingRequest) { r.DoctorID = "   " }, ErrDoctorNotFound},
		{"unverified doctor", patientID, func(r *BookingRequest) { r.DoctorID = unverifiedDoc }, ErrDoctorNotVerified},
		{"caller is not a patient", clinicOwner, func(r *BookingRequest) {}, ErrNotPatient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := booking(practitioner, ConsultationVideo)
			tt.mutate(&req)
			_, err := f.ledger.Create(context.Background(), tt.caller, req)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.events.Types())
		})
	}
}

type keyStrictStore struct{ *docstore.MemoryStore }

func (s keyStrictStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	if id == "" {
		return nil, errors.New("ValidationException: key attribute cannot contain an empty string value")
	}
	return s.MemoryStore.Get(ctx, collection, id)
}

func TestCreateBlankDoctorIsNotFoundOnStrictStore(t *testing.T) {
	f := newFixture(t)
	strict := keyStrictStore{f.store}
	l := NewLedger(strict, directory.NewService(strict, nil, 0, logging.Discard()), ledger.Hooks{
		Logger: logging.Discard(),
		Now:    func() time.Time { return fixedNow },
	})

	for _, id := range []string{"", "   "} {
		_, err := l.Create(context.Background(), patientID, booking(id, ConsultationVideo))
		assert.ErrorIs(t, err, ErrDoctorNotFound)
		assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
	}

	appt, err := l.Create(context.Background(), patientID, booking(" "+practitioner+" ", ConsultationVideo))
	require.NoError(t, err)
	assert.Equal(t, practitioner, appt.DoctorID)
}

func TestCreateAllowsYesterday(t *testing.T) {
	f := newFixture(t)
	req := booking(practitioner, ConsultationVideo)
	req.Date = "2025-02-28"
	_, err := f.ledger.Create(context.Background(), patientID, req)
	assert.NoError(t, err)
}

func TestListsJoinCounterpartNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.ledger.Create(ctx, patientID, booking(practitioner, ConsultationVideo))
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	second, err := f.ledger.Create(ctx, patientID, booking(clinicOwner, ConsultationVideo))
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	_, err = f.ledger.Create(ctx, otherPatient, booking(practitioner, ConsultationVideo))
	require.NoError(t, err)

	// The doctor renames after booking; the snapshot stays, the join is live.
	require.NoError(t, f.store.Update(ctx, identity.CollectionDoctors, practitioner, docstore.Patch{
		Set: map[string]any{"name": "Dr. Vikram S. Mehta"},
	}))

	mine, err := f.ledger.ListForPatient(ctx, patientID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.AppointmentID, mine[0].AppointmentID)
	assert.Equal(t, "Dr. Priya Nair", mine[0].CounterpartName)
	assert.Equal(t, first.AppointmentID, mine[1].AppointmentID)
	assert.Equal(t, "Dr. Vikram S. Mehta", mine[1].CounterpartName)
	assert.Equal(t, "Dr. Vikram Mehta", mine[1].DoctorName)

	schedule, err := f.ledger.ListForDoctor(ctx, practitioner)
	require.NoError(t, err)
	require.Len(t, schedule, 2)
	assert.Equal(t, "Kiran Shah", schedule[0].CounterpartName)
	assert.Equal(t, "Asha Rao", schedule[1].CounterpartName)
}

func TestGetRequiresParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt, err := f.ledger.Create(ctx, patientID, booking(practitioner, ConsultationVideo))
	require.NoError(t, err)

	for _, id := range []string{patientID, practitioner} {
		got, err := f.ledger.Get(ctx, id, appt.AppointmentID)
		require.NoError(t, err)
		assert.Equal(t, appt.AppointmentID, got.AppointmentID)
	}
	_, err = f.ledger.Get(ctx, otherPatient, appt.AppointmentID)
	assert.ErrorIs(t, err, ErrNotParty)

	_, err = f.ledger.Get(ctx, patientID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt, err := f.ledger.Create(ctx, patientID, booking(practitioner, ConsultationVideo))
	require.NoError(t, err)

	_, err = f.ledger.Cancel(ctx, otherPatient, appt.AppointmentID)
	assert.ErrorIs(t, err, ErrNotParty)

	cancelled, err := f.ledger.Cancel(ctx, practitioner, appt.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, practitioner, cancelled.CancelledBy)

	stored, err := f.ledger.Appointment(ctx, appt.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)
	assert.True(t, stored.CancelledAt.Equal(fixedNow))

	_, err = f.ledger.Cancel(ctx, patientID, appt.AppointmentID)
	assert.ErrorIs(t, err, ErrNotCancellable)
	assert.Equal(t, failure.KindInvalidTransition, failure.KindOf(err))
	assert.Equal(t, []string{events.TypeAppointmentBooked, events.TypeAppointmentCancelled}, f.events.Types())
}

type slowStore struct{ docstore.Store }

func (slowStore) Find(ctx context.Context, _ string, _ docstore.Query) ([][]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestListTimeoutSurfacesAsTimeout(t *testing.T) {
	f := newFixture(t)
	l := NewLedger(docstore.WithTimeout(slowStore{f.store}, 10*time.Millisecond),
		directory.NewService(f.store, nil, 0, logging.Discard()), ledger.Hooks{
		Logger: logging.Discard(),
		Now:    func() time.Time { return fixedNow },
	})

	_, err := l.ListForPatient(context.Background(), patientID)
	require.Error(t, err)
	assert.Equal(t, failure.KindTimeout, failure.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
