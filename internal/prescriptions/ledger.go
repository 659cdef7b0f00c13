// Package prescriptions is the Prescription Ledger. A prescription belongs to
// exactly one appointment and is written by that appointment's doctor.
package prescriptions

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/rams-care-platform/internal/appointments"
	"github.com/wolfman30/rams-care-platform/internal/audit"
	"github.com/wolfman30/rams-care-platform/internal/docstore"
	"github.com/wolfman30/rams-care-platform/internal/events"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	"github.com/wolfman30/rams-care-platform/internal/ledger"
	"github.com/wolfman30/rams-care-platform/internal/locks"
)

var tracer = otel.Tracer("rams.internal.prescriptions")

const (
	ledgerName     = "prescriptions"
	defaultLockTTL = 10 * time.Second
)

// AppointmentReader follows an appointment reference. Implemented by
// appointments.Ledger.
type AppointmentReader interface {
	Appointment(ctx context.Context, appointmentID string) (*appointments.Appointment, error)
}

// Ledger owns prescription records.
type Ledger struct {
	store        docstore.Store
	appointments AppointmentReader
	locker       locks.Locker
	lockTTL      time.Duration
	hooks        ledger.Hooks
}

// NewLedger wires the ledger. locker may be nil; the store-level unique
// claim on appointmentId still holds without it.
func NewLedger(store docstore.Store, appts AppointmentReader, locker locks.Locker, lockTTL time.Duration, hooks ledger.Hooks) *Ledger {
	if store == nil {
		panic("prescriptions: store required")
	}
	if appts == nil {
		panic("prescriptions: appointment reader required")
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Ledger{store: store, appointments: appts, locker: locker, lockTTL: lockTTL, hooks: hooks.Defaults()}
}

// Create issues the prescription for appointmentID. At most one prescription
// ever exists per appointment.
func (l *Ledger) Create(ctx context.Context, doctorID, appointmentID string, draft Draft) (_ *Prescription, err error) {
	defer l.hooks.Observe(ledgerName, "create", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "prescriptions.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("rams.doctor_id", doctorID),
		attribute.String("rams.appointment_id", appointmentID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	draft, err = normalize(draft)
	if err != nil {
		return nil, err
	}

	appt, err := l.appointments.Appointment(ctx, appointmentID)
	if err != nil {
		if failure.KindOf(err) == failure.KindNotFound {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if doctorID == "" || appt.DoctorID != doctorID {
		return nil, ErrNotAppointmentDoctor
	}
	if appt.Status == appointments.StatusCancelled {
		return nil, ErrAppointmentCancelled
	}

	release, err := l.lock(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	defer release()

	rx := &Prescription{
		PrescriptionID: uuid.NewString(),
		AppointmentID:  appt.AppointmentID,
		PatientID:      appt.PatientID,
		DoctorID:       appt.DoctorID,
		Diagnosis:      draft.Diagnosis,
		Medications:    draft.Medications,
		Notes:          draft.Notes,
		CreatedAt:      l.hooks.Now().UTC(),
	}
	err = docstore.InsertAs(ctx, l.store, Collection, rx.PrescriptionID, rx,
		docstore.Unique("appointmentId", appt.AppointmentID))
	if errors.Is(err, docstore.ErrConflict) {
		return nil, ErrAlreadyPrescribed
	}
	if err != nil {
		return nil, l.hooks.StoreFailure(err, "prescription insert failed", "appointment_id", appointmentID)
	}
	span.SetAttributes(attribute.String("rams.prescription_id", rx.PrescriptionID))
	l.hooks.Logger.Info("prescription created", "prescription_id", rx.PrescriptionID, "appointment_id", appointmentID, "doctor_id", doctorID)

	l.hooks.Publish(ctx, "prescription:"+rx.PrescriptionID, events.PrescriptionCreatedV1{
		PrescriptionID: rx.PrescriptionID,
		AppointmentID:  rx.AppointmentID,
		PatientID:      rx.PatientID,
		DoctorID:       rx.DoctorID,
		Medications:    len(rx.Medications),
		CreatedAt:      rx.CreatedAt,
	})
	l.hooks.Record(ctx, audit.Event{
		Action:   audit.ActionPrescriptionCreated,
		ActorID:  doctorID,
		Entity:   "prescription",
		EntityID: rx.PrescriptionID,
		Subjects: []string{rx.PatientID, rx.DoctorID},
		Details:  audit.Details(map[string]any{"appointmentId": rx.AppointmentID, "medications": len(rx.Medications)}),
	})
	return rx, nil
}

// lock takes the per-appointment advisory lock. A locker outage is logged
// and tolerated.
func (l *Ledger) lock(ctx context.Context, appointmentID string) (func(), error) {
	if l.locker == nil {
		return func() {}, nil
	}
	release, err := l.locker.Acquire(ctx, "prescription:appointment:"+appointmentID, l.lockTTL)
	switch {
	case errors.Is(err, locks.ErrHeld):
		return nil, ErrInProgress
	case err != nil:
		l.hooks.Logger.Warn("prescription lock unavailable", "appointment_id", appointmentID, "error", err)
		return func() {}, nil
	}
	return release, nil
}

func normalize(d Draft) (Draft, error) {
	d.Diagnosis = strings.TrimSpace(d.Diagnosis)
	d.Notes = strings.TrimSpace(d.Notes)
	if utf8.RuneCountInString(d.Diagnosis) < MinDiagnosisLength {
		return d, ErrDiagnosisTooShort
	}
	if len(d.Medications) == 0 {
		return d, ErrNoMedications
	}
	meds := make([]Medication, len(d.Medications))
	for i, m := range d.Medications {
		m = Medication{
			Name:      strings.TrimSpace(m.Name),
			Dosage:    strings.TrimSpace(m.Dosage),
			Frequency: strings.TrimSpace(m.Frequency),
			Duration:  strings.TrimSpace(m.Duration),
		}
		if m.Name == "" || m.Dosage == "" || m.Frequency == "" || m.Duration == "" {
			return d, ErrMedicationIncomplete.Withf("Medication %d needs a name, dosage, frequency and duration.", i+1)
		}
		meds[i] = m
	}
	d.Medications = meds
	return d, nil
}

// Prescription loads a prescription without an ownership check. Other
// ledgers use it to follow references.
func (l *Ledger) Prescription(ctx context.Context, prescriptionID string) (*Prescription, error) {
	if strings.TrimSpace(prescriptionID) == "" {
		return nil, ErrNotFound
	}
	rx, err := docstore.GetAs[Prescription](ctx, l.store, Collection, prescriptionID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, l.hooks.StoreFailure(err, "prescription lookup failed", "prescription_id", prescriptionID)
	}
	return rx, nil
}

// Get returns the prescription to its patient only.
func (l *Ledger) Get(ctx context.Context, callerID, prescriptionID string) (_ *Prescription, err error) {
	defer l.hooks.Observe(ledgerName, "get", time.Now(), &err)
	rx, err := l.Prescription(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if callerID == "" || rx.PatientID != callerID {
		return nil, ErrNotPatient
	}
	return rx, nil
}

// ForAppointment returns the prescription written against an appointment to
// either party of that appointment. found is false when none exists yet.
func (l *Ledger) ForAppointment(ctx context.Context, callerID, appointmentID string) (_ *Prescription, found bool, err error) {
	defer l.hooks.Observe(ledgerName, "for_appointment", time.Now(), &err)
	appt, err := l.appointments.Appointment(ctx, appointmentID)
	if err != nil {
		if failure.KindOf(err) == failure.KindNotFound {
			return nil, false, ErrAppointmentNotFound
		}
		return nil, false, err
	}
	if !appt.IsParty(callerID) {
		return nil, false, appointments.ErrNotParty
	}
	matches, err := docstore.FindAs[Prescription](ctx, l.store, Collection, docstore.Query{
		Where: []docstore.Eq{{Field: "appointmentId", Value: appointmentID}},
		Limit: 1,
	})
	if err != nil {
		return nil, false, l.hooks.StoreFailure(err, "prescription lookup failed", "appointment_id", appointmentID)
	}
	if len(matches) == 0 {
		return nil, false, nil
	}
	return &matches[0], true, nil
}

// ListForPatient returns the patient's prescriptions, newest first.
func (l *Ledger) ListForPatient(ctx context.Context, patientID string) (_ []Prescription, err error) {
	defer l.hooks.Observe(ledgerName, "list_for_patient", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "prescriptions.list_for_patient")
	defer span.End()

	if strings.TrimSpace(patientID) == "" {
		return []Prescription{}, nil
	}
	list, err := docstore.FindAs[Prescription](ctx, l.store, Collection, docstore.Query{
		Where: []docstore.Eq{{Field: "patientId", Value: patientID}},
	})
	if err != nil {
		span.RecordError(err)
		return nil, l.hooks.StoreFailure(err, "prescription list failed", "patient_id", patientID)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}
