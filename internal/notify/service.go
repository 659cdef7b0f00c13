package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/rams-care-platform/internal/events"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// Consumer names this service in the processed-events table.
const Consumer = "notify.email"

// RoleResolver looks up the profile behind an account id.
type RoleResolver interface {
	ResolveRole(ctx context.Context, accountID string) identity.Resolution
}

// ProcessedTracker dedupes redelivered events. events.ProcessedStore
// implements it.
type ProcessedTracker interface {
	MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

// Service turns workflow events into e-mails for the parties involved.
// Parties without an e-mail address on file are skipped.
type Service struct {
	email     EmailSender
	roles     RoleResolver
	processed ProcessedTracker
	logger    *logging.Logger
}

// NewService creates a notification service. processed may be nil.
func NewService(email EmailSender, roles RoleResolver, processed ProcessedTracker, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	return &Service{
		email:     email,
		roles:     roles,
		processed: processed,
		logger:    logger,
	}
}

// Handle sends the e-mails for one event. An error means the event should be
// redelivered. Each recipient is claimed separately, so a redelivery only
// retries the recipients whose mail did not go out.
func (s *Service) Handle(ctx context.Context, env events.Envelope) error {
	return s.dispatch(ctx, env)
}

// claim marks one recipient of one event as handled. Without a tracker
// every delivery is sent.
func (s *Service) claim(ctx context.Context, eventID, accountID string) (bool, error) {
	if s.processed == nil {
		return true, nil
	}
	claimed, err := s.processed.MarkProcessed(ctx, Consumer, recipientKey(eventID, accountID))
	if err != nil {
		return false, fmt.Errorf("notify: claim event: %w", err)
	}
	return claimed, nil
}

func (s *Service) release(ctx context.Context, eventID, accountID string) {
	if s.processed == nil {
		return
	}
	if err := s.processed.Release(context.WithoutCancel(ctx), Consumer, recipientKey(eventID, accountID)); err != nil {
		s.logger.Warn("notify: release claim failed", "event_id", eventID, "account_id", accountID, "error", err)
	}
}

func recipientKey(eventID, accountID string) string {
	return eventID + "/" + accountID
}

func (s *Service) dispatch(ctx context.Context, env events.Envelope) error {
	evt, err := env.Decode()
	if err != nil {
		if errors.Is(err, events.ErrUnknownEventType) {
			s.logger.Warn("notify: ignoring unknown event type", "event_type", env.EventType)
			return nil
		}
		return fmt.Errorf("notify: decode %s: %w", env.EventType, err)
	}

	var msgs []outbound
	switch e := evt.(type) {
	case *events.AppointmentBookedV1:
		msgs = s.appointmentBooked(ctx, e)
	case *events.AppointmentCancelledV1:
		msgs = s.appointmentCancelled(ctx, e)
	case *events.PrescriptionCreatedV1:
		msgs = s.prescriptionCreated(ctx, e)
	case *events.OrderPlacedV1:
		msgs = s.orderPlaced(ctx, e)
	case *events.OrderStatusChangedV1:
		msgs = s.orderStatusChanged(ctx, e)
	}

	eventID := env.EventID.String()
	var errs []error
	for _, m := range msgs {
		if m.contact.Email == "" {
			s.logger.Debug("notify: no email on file", "account_id", m.contact.AccountID, "event_type", env.EventType)
			continue
		}
		claimed, err := s.claim(ctx, eventID, m.contact.AccountID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !claimed {
			s.logger.Debug("notify: recipient already handled", "event_id", eventID, "account_id", m.contact.AccountID)
			continue
		}
		err = s.email.Send(ctx, EmailMessage{
			To:        m.contact.Email,
			ToName:    m.contact.Name,
			Subject:   m.subject,
			Text:      m.body,
			EventType: env.EventType,
			EventID:   eventID,
		})
		if errors.Is(err, ErrRejected) {
			s.logger.Warn("notify: provider rejected email; not retrying", "account_id", m.contact.AccountID, "event_type", env.EventType, "error", err)
			continue
		}
		if err != nil {
			s.logger.Error("notify: failed to send email", "error", err, "account_id", m.contact.AccountID, "event_type", env.EventType)
			s.release(ctx, eventID, m.contact.AccountID)
			errs = append(errs, err)
			continue
		}
		s.logger.Info("notify: email sent", "account_id", m.contact.AccountID, "event_type", env.EventType, "event_id", env.EventID)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

type outbound struct {
	contact Contact
	subject string
	body    string
}

func (s *Service) appointmentBooked(ctx context.Context, e *events.AppointmentBookedV1) []outbound {
	patient := s.contact(ctx, e.PatientID)
	doctor := s.contact(ctx, e.DoctorID)
	mode := consultationLabel(e.ConsultationType)
	return []outbound{
		{
			contact: patient,
			subject: fmt.Sprintf("Appointment confirmed with Dr. %s", e.DoctorName),
			body: fmt.Sprintf(`Hi %s,

Your %s appointment with Dr. %s is confirmed for %s at %s.

Appointment ID: %s

- RAMS Care`, greetingName(patient), mode, e.DoctorName, e.AppointmentDate, e.TimeSlot, e.AppointmentID),
		},
		{
			contact: doctor,
			subject: fmt.Sprintf("New appointment on %s at %s", e.AppointmentDate, e.TimeSlot),
			body: fmt.Sprintf(`Hi Dr. %s,

%s booked a %s appointment with you for %s at %s.

Appointment ID: %s

- RAMS Care`, greetingName(doctor), nameOr(patient, "A patient"), mode, e.AppointmentDate, e.TimeSlot, e.AppointmentID),
		},
	}
}

func (s *Service) appointmentCancelled(ctx context.Context, e *events.AppointmentCancelledV1) []outbound {
	// Only the party who did not cancel is told.
	recipient := e.PatientID
	if e.CancelledBy == e.PatientID {
		recipient = e.DoctorID
	}
	canceller := s.contact(ctx, e.CancelledBy)
	to := s.contact(ctx, recipient)
	return []outbound{{
		contact: to,
		subject: fmt.Sprintf("Appointment on %s at %s was cancelled", e.AppointmentDate, e.TimeSlot),
		body: fmt.Sprintf(`Hi %s,

%s cancelled the appointment scheduled for %s at %s.

Appointment ID: %s

- RAMS Care`, greetingName(to), nameOr(canceller, "The other party"), e.AppointmentDate, e.TimeSlot, e.AppointmentID),
	}}
}

func (s *Service) prescriptionCreated(ctx context.Context, e *events.PrescriptionCreatedV1) []outbound {
	patient := s.contact(ctx, e.PatientID)
	doctor := s.contact(ctx, e.DoctorID)
	return []outbound{{
		contact: patient,
		subject: "Your prescription is ready",
		body: fmt.Sprintf(`Hi %s,

Dr. %s has issued a prescription with %d medication(s) for your appointment.
You can view it under Medical Records and order the medicines from a pharmacy.

Prescription ID: %s

- RAMS Care`, greetingName(patient), nameOr(doctor, "your doctor"), e.Medications, e.PrescriptionID),
	}}
}

func (s *Service) orderPlaced(ctx context.Context, e *events.OrderPlacedV1) []outbound {
	pharmacy := s.contact(ctx, e.PharmacyID)
	patient := s.contact(ctx, e.PatientID)
	return []outbound{{
		contact: pharmacy,
		subject: "New medicine order received",
		body: fmt.Sprintf(`Hi %s,

%s placed a new order for prescription %s.
Open your dashboard to review and fulfil it.

Order ID: %s

- RAMS Care`, greetingName(pharmacy), nameOr(patient, "A patient"), e.PrescriptionID, e.OrderID),
	}}
}

func (s *Service) orderStatusChanged(ctx context.Context, e *events.OrderStatusChangedV1) []outbound {
	patient := s.contact(ctx, e.PatientID)
	pharmacy := s.contact(ctx, e.PharmacyID)
	return []outbound{{
		contact: patient,
		subject: fmt.Sprintf("Your order was %s", e.To),
		body: fmt.Sprintf(`Hi %s,

%s marked your order as %s.

Order ID: %s

- RAMS Care`, greetingName(patient), nameOr(pharmacy, "The pharmacy"), e.To, e.OrderID),
	}}
}

func (s *Service) contact(ctx context.Context, accountID string) Contact {
	if s.roles == nil || accountID == "" {
		return Contact{AccountID: accountID}
	}
	c := ContactOf(s.roles.ResolveRole(ctx, accountID))
	c.AccountID = accountID
	return c
}

func consultationLabel(t string) string {
	switch t {
	case "video":
		return "video"
	case "in_clinic":
		return "in-clinic"
	}
	return strings.ReplaceAll(t, "_", " ")
}

func greetingName(c Contact) string {
	return nameOr(c, "there")
}

func nameOr(c Contact, fallback string) string {
	if strings.TrimSpace(c.Name) == "" {
		return fallback
	}
	return c.Name
}
