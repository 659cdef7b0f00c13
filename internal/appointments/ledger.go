// Package appointments is the Appointment Ledger: booking, listing and
// cancellation of consultations between a patient and a doctor.
package appointments

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/rams-care-platform/internal/audit"
	"github.com/wolfman30/rams-care-platform/internal/docstore"
	"github.com/wolfman30/rams-care-platform/internal/events"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/internal/ledger"
)

var tracer = otel.Tracer("rams.internal.appointments")

const ledgerName = "appointments"

// DoctorLookup resolves the live doctor profile. Implemented by
// directory.Service.
type DoctorLookup interface {
	GetDoctor(ctx context.Context, doctorID string) (*identity.DoctorProfile, error)
}

// Ledger owns appointment records.
type Ledger struct {
	store   docstore.Store
	doctors DoctorLookup
	hooks   ledger.Hooks
}

// NewLedger wires the ledger to its store and the doctor directory.
func NewLedger(store docstore.Store, doctors DoctorLookup, hooks ledger.Hooks) *Ledger {
	if store == nil {
		panic("appointments: store required")
	}
	if doctors == nil {
		panic("appointments: doctor lookup required")
	}
	return &Ledger{store: store, doctors: doctors, hooks: hooks.Defaults()}
}

// Create books an appointment for the calling patient.
func (l *Ledger) Create(ctx context.Context, callerID string, req BookingRequest) (_ *Appointment, err error) {
	defer l.hooks.Observe(ledgerName, "create", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "appointments.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("rams.caller_id", callerID),
		attribute.String("rams.doctor_id", req.DoctorID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	if strings.TrimSpace(callerID) == "" {
		return nil, failure.New(failure.KindUnauthorized, "missing_account", "Please sign in to continue.")
	}
	if req.PatientID != "" && req.PatientID != callerID {
		return nil, ErrBookForOther
	}
	if err := l.validateSchedule(req); err != nil {
		return nil, err
	}

	if _, err := l.store.Get(ctx, identity.CollectionPatients, callerID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotPatient
		}
		return nil, l.hooks.StoreFailure(err, "patient lookup failed", "account_id", callerID)
	}

	req.DoctorID = strings.TrimSpace(req.DoctorID)
	if req.DoctorID == "" {
		return nil, ErrDoctorNotFound
	}
	doctor, err := l.doctors.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		if failure.KindOf(err) == failure.KindNotFound {
			return nil, ErrDoctorNotFound
		}
		return nil, failure.From(err)
	}
	if !doctor.IsVerified {
		return nil, ErrDoctorNotVerified
	}
	if req.ConsultationType == ConsultationInClinic && doctor.ProfileType != identity.ProfileTypeClinicOwner {
		return nil, ErrInClinicUnavailable
	}

	appt := &Appointment{
		AppointmentID:       uuid.NewString(),
		PatientID:           callerID,
		DoctorID:            req.DoctorID,
		DoctorName:          doctor.Name,
		AppointmentDate:     req.Date,
		AppointmentTimeSlot: req.TimeSlot,
		ConsultationType:    req.ConsultationType,
		Status:              StatusConfirmed,
		CreatedAt:           l.hooks.Now().UTC(),
	}
	if err := docstore.InsertAs(ctx, l.store, Collection, appt.AppointmentID, appt); err != nil {
		return nil, l.hooks.StoreFailure(err, "appointment insert failed", "appointment_id", appt.AppointmentID)
	}
	span.SetAttributes(attribute.String("rams.appointment_id", appt.AppointmentID))
	l.hooks.Logger.Info("appointment booked", "appointment_id", appt.AppointmentID, "patient_id", callerID, "doctor_id", appt.DoctorID)

	l.hooks.Publish(ctx, "appointment:"+appt.AppointmentID, events.AppointmentBookedV1{
		AppointmentID:    appt.AppointmentID,
		PatientID:        appt.PatientID,
		DoctorID:         appt.DoctorID,
		DoctorName:       appt.DoctorName,
		AppointmentDate:  appt.AppointmentDate,
		TimeSlot:         appt.AppointmentTimeSlot,
		ConsultationType: string(appt.ConsultationType),
		BookedAt:         appt.CreatedAt,
	})
	l.hooks.Record(ctx, audit.Event{
		Action:   audit.ActionAppointmentBooked,
		ActorID:  callerID,
		Entity:   "appointment",
		EntityID: appt.AppointmentID,
		Subjects: []string{appt.PatientID, appt.DoctorID},
		Details: audit.Details(map[string]string{
			"date": appt.AppointmentDate, "slot": appt.AppointmentTimeSlot, "type": string(appt.ConsultationType),
		}),
	})
	return appt, nil
}

func (l *Ledger) validateSchedule(req BookingRequest) error {
	if !slices.Contains(TimeSlots, req.TimeSlot) {
		return ErrSlotInvalid
	}
	day, err := time.Parse(DateLayout, req.Date)
	if err != nil || day.Format(DateLayout) != req.Date {
		return ErrDateInvalid
	}
	// Same-day booking is allowed, and so is yesterday.
	earliest := l.hooks.Now().AddDate(0, 0, -1).Format(DateLayout)
	if req.Date < earliest {
		return ErrDateInPast
	}
	switch req.ConsultationType {
	case ConsultationVideo, ConsultationInClinic:
		return nil
	default:
		return ErrConsultationType
	}
}

// Appointment loads an appointment without an ownership check. Other ledgers
// use it to follow references.
func (l *Ledger) Appointment(ctx context.Context, appointmentID string) (*Appointment, error) {
	if strings.TrimSpace(appointmentID) == "" {
		return nil, ErrNotFound
	}
	appt, err := docstore.GetAs[Appointment](ctx, l.store, Collection, appointmentID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, l.hooks.StoreFailure(err, "appointment lookup failed", "appointment_id", appointmentID)
	}
	return appt, nil
}

// Get returns the appointment to either of its parties.
func (l *Ledger) Get(ctx context.Context, callerID, appointmentID string) (_ *Appointment, err error) {
	defer l.hooks.Observe(ledgerName, "get", time.Now(), &err)
	appt, err := l.Appointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appt.IsParty(callerID) {
		return nil, ErrNotParty
	}
	return appt, nil
}

// ListForPatient returns the caller's appointments as a patient, newest
// first, each joined with the doctor's current name.
func (l *Ledger) ListForPatient(ctx context.Context, patientID string) (_ []Listing, err error) {
	defer l.hooks.Observe(ledgerName, "list_for_patient", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "appointments.list_for_patient")
	defer span.End()

	appts, err := l.list(ctx, "patientId", patientID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	names := map[string]string{}
	out := make([]Listing, len(appts))
	for i, a := range appts {
		name, ok := names[a.DoctorID]
		if !ok {
			name = a.DoctorName
			if doctor, err := l.doctors.GetDoctor(ctx, a.DoctorID); err == nil {
				name = doctor.Name
			} else if failure.KindOf(err) != failure.KindNotFound {
				l.hooks.Logger.Warn("doctor name join failed", "doctor_id", a.DoctorID, "error", err)
			}
			names[a.DoctorID] = name
		}
		out[i] = Listing{Appointment: a, CounterpartName: name}
	}
	return out, nil
}

// ListForDoctor returns the caller's appointments as a doctor, newest first,
// each joined with the patient's current name.
func (l *Ledger) ListForDoctor(ctx context.Context, doctorID string) (_ []Listing, err error) {
	defer l.hooks.Observe(ledgerName, "list_for_doctor", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "appointments.list_for_doctor")
	defer span.End()

	appts, err := l.list(ctx, "doctorId", doctorID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	names := map[string]string{}
	out := make([]Listing, len(appts))
	for i, a := range appts {
		name, ok := names[a.PatientID]
		if !ok {
			patient, err := docstore.GetAs[identity.PatientProfile](ctx, l.store, identity.CollectionPatients, a.PatientID)
			switch {
			case err == nil:
				name = patient.Name
			case !errors.Is(err, docstore.ErrNotFound):
				l.hooks.Logger.Warn("patient name join failed", "patient_id", a.PatientID, "error", err)
			}
			names[a.PatientID] = name
		}
		out[i] = Listing{Appointment: a, CounterpartName: name}
	}
	return out, nil
}

func (l *Ledger) list(ctx context.Context, field, accountID string) ([]Appointment, error) {
	if strings.TrimSpace(accountID) == "" {
		return []Appointment{}, nil
	}
	appts, err := docstore.FindAs[Appointment](ctx, l.store, Collection, docstore.Query{
		Where: []docstore.Eq{{Field: field, Value: accountID}},
	})
	if err != nil {
		return nil, l.hooks.StoreFailure(err, "appointment list failed", field, accountID)
	}
	sort.SliceStable(appts, func(i, j int) bool {
		return appts[i].CreatedAt.After(appts[j].CreatedAt)
	})
	return appts, nil
}

// Cancel moves a confirmed appointment to cancelled. Either party may cancel.
func (l *Ledger) Cancel(ctx context.Context, callerID, appointmentID string) (_ *Appointment, err error) {
	defer l.hooks.Observe(ledgerName, "cancel", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("rams.appointment_id", appointmentID))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	appt, err := l.Appointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appt.IsParty(callerID) {
		return nil, ErrNotParty
	}
	if appt.Status != StatusConfirmed {
		return nil, ErrNotCancellable
	}

	now := l.hooks.Now().UTC()
	err = l.store.Update(ctx, Collection, appointmentID, docstore.Patch{
		Expect: []docstore.Eq{{Field: "status", Value: string(StatusConfirmed)}},
		Set: map[string]any{
			"status":      string(StatusCancelled),
			"cancelledAt": now,
			"cancelledBy": callerID,
		},
	})
	switch {
	case errors.Is(err, docstore.ErrConditionFailed):
		return nil, ErrNotCancellable
	case errors.Is(err, docstore.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, l.hooks.StoreFailure(err, "appointment cancel failed", "appointment_id", appointmentID)
	}

	appt.Status = StatusCancelled
	appt.CancelledAt = &now
	appt.CancelledBy = callerID
	l.hooks.Metrics.ObserveTransition("appointment", string(StatusConfirmed), string(StatusCancelled))
	l.hooks.Logger.Info("appointment cancelled", "appointment_id", appointmentID, "cancelled_by", callerID)

	l.hooks.Publish(ctx, "appointment:"+appointmentID, events.AppointmentCancelledV1{
		AppointmentID:   appointmentID,
		PatientID:       appt.PatientID,
		DoctorID:        appt.DoctorID,
		CancelledBy:     callerID,
		AppointmentDate: appt.AppointmentDate,
		TimeSlot:        appt.AppointmentTimeSlot,
		CancelledAt:     now,
	})
	l.hooks.Record(ctx, audit.Event{
		Action:   audit.ActionAppointmentCanceled,
		ActorID:  callerID,
		Entity:   "appointment",
		EntityID: appointmentID,
		Subjects: []string{appt.PatientID, appt.DoctorID},
	})
	return appt, nil
}
