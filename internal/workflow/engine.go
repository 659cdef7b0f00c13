// Package workflow composes the identity directory, the directory query
// service and the three ledgers into one engine. Every engine method returns
// a failure.Result so callers outside HTTP (CLI tools, seeders, tests) get
// the same success/failure envelope the API writes.
package workflow

import (
	"context"
	"time"

	"github.com/wolfman30/rams-care-platform/internal/api/router"
	"github.com/wolfman30/rams-care-platform/internal/appointments"
	"github.com/wolfman30/rams-care-platform/internal/directory"
	"github.com/wolfman30/rams-care-platform/internal/docstore"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	httpmiddleware "github.com/wolfman30/rams-care-platform/internal/http/middleware"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/internal/ledger"
	"github.com/wolfman30/rams-care-platform/internal/locks"
	"github.com/wolfman30/rams-care-platform/internal/orders"
	"github.com/wolfman30/rams-care-platform/internal/prescriptions"
	"github.com/wolfman30/rams-care-platform/internal/triage"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// DefaultLockTTL bounds how long a prescription submission holds its
// per-appointment lock.
const DefaultLockTTL = 10 * time.Second

// Deps are the collaborators an Engine is built from. Store and Auth are
// required; everything else has an in-process default.
type Deps struct {
	Store    docstore.Store
	Auth     identity.AuthProvider
	Locker   locks.Locker
	Cache    directory.Cache
	CacheTTL time.Duration
	LockTTL  time.Duration
	Hooks    ledger.Hooks
	Clock    func() time.Time
	Logger   *logging.Logger

	// LLM backs the triage assistant. Nil leaves the AI operations
	// reporting unavailable.
	LLM    triage.LLMClient
	Triage triage.Options
}

// Engine is the workflow core.
type Engine struct {
	Identity      *identity.Directory
	Directory     *directory.Service
	Appointments  *appointments.Ledger
	Prescriptions *prescriptions.Ledger
	Orders        *orders.Ledger
	Assistant     *triage.Assistant

	logger *logging.Logger
}

// New wires an Engine. It panics when a required dependency is missing.
func New(deps Deps) *Engine {
	if deps.Store == nil {
		panic("workflow: store required")
	}
	if deps.Auth == nil {
		panic("workflow: auth provider required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Locker == nil {
		deps.Locker = locks.NewMemoryLocker()
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = DefaultLockTTL
	}
	hooks := deps.Hooks
	if hooks.Logger == nil {
		hooks.Logger = deps.Logger
	}
	if hooks.Now == nil {
		hooks.Now = deps.Clock
	}
	hooks = hooks.Defaults()
	if deps.Triage.Metrics == nil {
		deps.Triage.Metrics = hooks.Metrics
	}

	dir := directory.NewService(deps.Store, deps.Cache, deps.CacheTTL, deps.Logger)
	appts := appointments.NewLedger(deps.Store, dir, hooks)
	rx := prescriptions.NewLedger(deps.Store, appts, deps.Locker, deps.LockTTL, hooks)

	return &Engine{
		Identity: identity.NewDirectory(deps.Store, deps.Auth, deps.Logger,
			identity.WithClock(deps.Clock),
			identity.WithHooks(hooks),
			identity.WithListingChanged(dir.Invalidate)),
		Directory:     dir,
		Appointments:  appts,
		Prescriptions: rx,
		Orders:        orders.NewLedger(deps.Store, rx, dir, hooks),
		Assistant:     triage.NewAssistant(deps.LLM, deps.Triage, deps.Logger),
		logger:        deps.Logger,
	}
}

// RouterConfig returns a router configuration with every handler wired to
// this engine. Callers add metrics, CORS and rate limits.
func (e *Engine) RouterConfig(auth *httpmiddleware.CallerJWT) *router.Config {
	cfg := &router.Config{
		Logger:        e.logger,
		Directory:     directory.NewHandler(e.Directory, e.logger),
		Appointments:  appointments.NewHandler(e.Appointments, e.Identity, e.logger),
		Prescriptions: prescriptions.NewHandler(e.Prescriptions, e.logger),
		Orders:        orders.NewHandler(e.Orders, e.Identity, e.logger),
		Triage:        triage.NewHandler(e.Assistant, e.Assistant, e.Identity, e.logger),
	}
	var tokens identity.TokenIssuer
	if auth != nil {
		cfg.Auth = auth
	}
	if auth.Enabled() {
		tokens = auth
	}
	cfg.Identity = identity.NewHandler(e.Identity, tokens, e.logger)
	return cfg
}

func result[T any](v *T, err error) failure.Result[T] {
	if err != nil {
		return failure.Fail[T](err)
	}
	if v == nil {
		return failure.Fail[T](failure.Unexpected(nil))
	}
	return failure.OK(*v)
}

func list[T any](v []T, err error) failure.Result[[]T] {
	if err != nil {
		return failure.Fail[[]T](err)
	}
	if v == nil {
		v = []T{}
	}
	return failure.OK(v)
}

// ResolveRole reports the caller's single role and profile.
func (e *Engine) ResolveRole(ctx context.Context, accountID string) identity.Resolution {
	return e.Identity.ResolveRole(ctx, accountID)
}

// CreatePatientProfile registers the account as a patient.
func (e *Engine) CreatePatientProfile(ctx context.Context, accountID string, in identity.PatientInput) failure.Result[identity.PatientProfile] {
	return result(e.Identity.CreatePatientProfile(ctx, accountID, in))
}

// CreateDoctorProfile registers the account as a doctor.
func (e *Engine) CreateDoctorProfile(ctx context.Context, accountID string, in identity.DoctorInput) failure.Result[identity.DoctorProfile] {
	return result(e.Identity.CreateDoctorProfile(ctx, accountID, in))
}

// CreateAmbulanceProfile registers the account as an ambulance operator.
func (e *Engine) CreateAmbulanceProfile(ctx context.Context, accountID string, in identity.AmbulanceInput) failure.Result[identity.AmbulanceProfile] {
	return result(e.Identity.CreateAmbulanceProfile(ctx, accountID, in))
}

// CreateLabProfile registers the account as a lab.
func (e *Engine) CreateLabProfile(ctx context.Context, accountID string, in identity.LabInput) failure.Result[identity.LabProfile] {
	return result(e.Identity.CreateLabProfile(ctx, accountID, in))
}

// CreatePharmacyProfile registers the account as a pharmacy.
func (e *Engine) CreatePharmacyProfile(ctx context.Context, accountID string, in identity.PharmacyInput) failure.Result[identity.PharmacyProfile] {
	return result(e.Identity.CreatePharmacyProfile(ctx, accountID, in))
}

// SearchDoctors filters the doctor registry.
func (e *Engine) SearchDoctors(ctx context.Context, filter directory.DoctorFilter) failure.Result[[]identity.DoctorProfile] {
	return list(e.Directory.SearchDoctors(ctx, filter))
}

// ListPharmacies returns every pharmacy.
func (e *Engine) ListPharmacies(ctx context.Context) failure.Result[[]identity.PharmacyProfile] {
	return list(e.Directory.ListPharmacies(ctx))
}

// BookAppointment books a consultation for the calling patient.
func (e *Engine) BookAppointment(ctx context.Context, callerID string, req appointments.BookingRequest) failure.Result[appointments.Appointment] {
	return result(e.Appointments.Create(ctx, callerID, req))
}

// CancelAppointment cancels a confirmed appointment on behalf of either party.
func (e *Engine) CancelAppointment(ctx context.Context, callerID, appointmentID string) failure.Result[appointments.Appointment] {
	return result(e.Appointments.Cancel(ctx, callerID, appointmentID))
}

// PatientAppointments lists the patient's appointments.
func (e *Engine) PatientAppointments(ctx context.Context, patientID string) failure.Result[[]appointments.Listing] {
	return list(e.Appointments.ListForPatient(ctx, patientID))
}

// DoctorAppointments lists the doctor's appointments.
func (e *Engine) DoctorAppointments(ctx context.Context, doctorID string) failure.Result[[]appointments.Listing] {
	return list(e.Appointments.ListForDoctor(ctx, doctorID))
}

// CreatePrescription writes the prescription for an appointment.
func (e *Engine) CreatePrescription(ctx context.Context, doctorID, appointmentID string, draft prescriptions.Draft) failure.Result[prescriptions.Prescription] {
	return result(e.Prescriptions.Create(ctx, doctorID, appointmentID, draft))
}

// MedicalRecords lists the patient's prescriptions, newest first.
func (e *Engine) MedicalRecords(ctx context.Context, patientID string) failure.Result[[]prescriptions.Prescription] {
	return list(e.Prescriptions.ListForPatient(ctx, patientID))
}

// PlaceOrder sends the patient's prescription to a pharmacy.
func (e *Engine) PlaceOrder(ctx context.Context, patientID string, req orders.OrderRequest) failure.Result[orders.Order] {
	return result(e.Orders.Create(ctx, patientID, req))
}

// UpdateOrderStatus moves a pending order to fulfilled or cancelled.
func (e *Engine) UpdateOrderStatus(ctx context.Context, pharmacyID, orderID string, next orders.Status) failure.Result[orders.Order] {
	return result(e.Orders.UpdateStatus(ctx, pharmacyID, orderID, next))
}

// PharmacyOrders lists orders addressed to the pharmacy.
func (e *Engine) PharmacyOrders(ctx context.Context, pharmacyID string) failure.Result[[]orders.PharmacyOrder] {
	return list(e.Orders.ListForPharmacy(ctx, pharmacyID))
}

// PatientOrders lists the patient's orders.
func (e *Engine) PatientOrders(ctx context.Context, patientID string) failure.Result[[]orders.PatientOrder] {
	return list(e.Orders.ListForPatient(ctx, patientID))
}

// RecommendSpecialty asks the triage assistant which specialty fits.
func (e *Engine) RecommendSpecialty(ctx context.Context, symptoms string) failure.Result[triage.Recommendation] {
	rec, err := e.Assistant.RecommendSpecialty(ctx, symptoms)
	return result(&rec, err)
}

// SuggestMedications asks the triage assistant for a medication draft.
func (e *Engine) SuggestMedications(ctx context.Context, diagnosis string) failure.Result[[]prescriptions.Medication] {
	return list(e.Assistant.SuggestMedications(ctx, diagnosis))
}
