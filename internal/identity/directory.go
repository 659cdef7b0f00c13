// Package identity maps accounts to their single business role and owns the
// role profile records, the auth collaborator boundary and the ambulance
// availability lookup.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/rams-care-platform/internal/audit"
	"github.com/wolfman30/rams-care-platform/internal/docstore"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	"github.com/wolfman30/rams-care-platform/internal/ledger"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

var tracer = otel.Tracer("rams.internal.identity")

const (
	claimActive   = "active"
	claimReleased = "released"
)

// roleClaim reserves an account for one role across all profile collections.
type roleClaim struct {
	AccountID string    `json:"accountId"`
	Role      Role      `json:"role"`
	Status    string    `json:"status"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// Directory is the Identity Directory.
type Directory struct {
	store  docstore.Store
	auth   AuthProvider
	hooks  ledger.Hooks
	listed func(ctx context.Context)
	logger *logging.Logger
	now    func() time.Time
}

// Option customises a Directory.
type Option func(*Directory)

// WithClock overrides the time source used for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		if now != nil {
			d.now = now
		}
	}
}

// WithHooks attaches the audit trail and operation metrics. Events are not
// published for profile changes.
func WithHooks(h ledger.Hooks) Option {
	return func(d *Directory) {
		d.hooks = h
	}
}

// WithListingChanged registers fn to run after a doctor or pharmacy profile
// is created or a doctor profile is patched. The directory query service
// uses it to drop its cached registry.
func WithListingChanged(fn func(ctx context.Context)) Option {
	return func(d *Directory) {
		d.listed = fn
	}
}

// NewDirectory wires the directory to its store and auth collaborator.
func NewDirectory(store docstore.Store, auth AuthProvider, logger *logging.Logger, opts ...Option) *Directory {
	if store == nil {
		panic("identity: store required")
	}
	if auth == nil {
		panic("identity: auth provider required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Directory{store: store, auth: auth, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	if d.hooks.Logger == nil {
		d.hooks.Logger = logger
	}
	if d.hooks.Now == nil {
		d.hooks.Now = d.now
	}
	d.hooks = d.hooks.Defaults()
	return d
}

// ResolveRole checks the profile collections in priority order and returns
// the first match. Store failures degrade to RoleUnknown and are logged.
func (d *Directory) ResolveRole(ctx context.Context, accountID string) Resolution {
	unknown := Resolution{Role: RoleUnknown}
	if strings.TrimSpace(accountID) == "" {
		return unknown
	}
	ctx, span := tracer.Start(ctx, "identity.resolve_role")
	defer span.End()
	span.SetAttributes(attribute.String("rams.account_id", accountID))

	for _, role := range resolutionOrder {
		body, err := d.store.Get(ctx, role.Collection(), accountID)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			d.logger.Error("role lookup failed", "account_id", accountID, "collection", role.Collection(), "error", err)
			return unknown
		}
		profile, err := decodeProfile(role, body)
		if err != nil {
			span.RecordError(err)
			d.logger.Error("role profile unreadable", "account_id", accountID, "role", role, "error", err)
			return unknown
		}
		span.SetAttributes(attribute.String("rams.role", string(role)))
		return Resolution{Role: role, Profile: profile}
	}
	return unknown
}

func decodeProfile(role Role, body []byte) (any, error) {
	var profile any
	switch role {
	case RolePatient:
		profile = &PatientProfile{}
	case RoleDoctor:
		profile = &DoctorProfile{}
	case RoleAmbulance:
		profile = &AmbulanceProfile{}
	case RoleLab:
		profile = &LabProfile{}
	case RolePharmacy:
		profile = &PharmacyProfile{}
	default:
		return nil, fmt.Errorf("identity: no profile type for role %q", role)
	}
	if err := json.Unmarshal(body, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (d *Directory) humanID(role Role) string {
	return fmt.Sprintf("%s%d", role.idPrefix(), d.now().UnixMilli())
}

// CreatePatientProfile registers the calling account as a patient.
func (d *Directory) CreatePatientProfile(ctx context.Context, accountID string, in PatientInput) (*PatientProfile, error) {
	if err := validatePatient(in); err != nil {
		return nil, err
	}
	profile := &PatientProfile{
		AccountID:  accountID,
		PatientID:  d.humanID(RolePatient),
		Name:       strings.TrimSpace(in.Name),
		Mobile:     in.Mobile,
		Email:      in.Email,
		Age:        in.Age,
		Gender:     in.Gender,
		City:       strings.TrimSpace(in.City),
		BloodGroup: in.BloodGroup,
		CreatedAt:  d.now().UTC(),
	}
	update := AccountUpdate{DisplayName: &profile.Name, Phone: &profile.Mobile}
	if in.Email != "" {
		update.Email = &profile.Email
	}
	if err := d.register(ctx, accountID, RolePatient, update, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// CreateDoctorProfile registers the calling account as a doctor. Doctors are
// verified on registration.
func (d *Directory) CreateDoctorProfile(ctx context.Context, accountID string, in DoctorInput) (*DoctorProfile, error) {
	if err := validateDoctor(in); err != nil {
		return nil, err
	}
	profile := &DoctorProfile{
		AccountID:          accountID,
		DoctorID:           d.humanID(RoleDoctor),
		Name:               strings.TrimSpace(in.Name),
		Mobile:             in.Mobile,
		Email:              in.Email,
		Specialization:     in.Specialization,
		Qualification:      in.Qualification,
		RegistrationNumber: in.RegistrationNumber,
		ExperienceYears:    in.ExperienceYears,
		ConsultationFee:    in.ConsultationFee,
		City:               strings.TrimSpace(in.City),
		ProfileType:        in.ProfileType,
		IsVerified:         true,
		CreatedAt:          d.now().UTC(),
	}
	if in.ProfileType == ProfileTypeClinicOwner {
		profile.ClinicName = in.ClinicName
		profile.ClinicAddress = in.ClinicAddress
	}
	update := AccountUpdate{DisplayName: &profile.Name, Email: &profile.Email, Phone: &profile.Mobile}
	if err := d.register(ctx, accountID, RoleDoctor, update, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// CreateAmbulanceProfile registers the calling account as an ambulance
// operator. New ambulances start available.
func (d *Directory) CreateAmbulanceProfile(ctx context.Context, accountID string, in AmbulanceInput) (*AmbulanceProfile, error) {
	if err := validateAmbulance(in); err != nil {
		return nil, err
	}
	profile := &AmbulanceProfile{
		AccountID:     accountID,
		AmbulanceID:   d.humanID(RoleAmbulance),
		DriverName:    strings.TrimSpace(in.DriverName),
		VehicleNumber: strings.ToUpper(strings.TrimSpace(in.VehicleNumber)),
		Mobile:        in.Mobile,
		City:          strings.TrimSpace(in.City),
		IsAvailable:   true,
		CreatedAt:     d.now().UTC(),
	}
	update := AccountUpdate{DisplayName: &profile.DriverName, Phone: &profile.Mobile}
	if err := d.register(ctx, accountID, RoleAmbulance, update, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// CreateLabProfile registers the calling account as a lab.
func (d *Directory) CreateLabProfile(ctx context.Context, accountID string, in LabInput) (*LabProfile, error) {
	if err := validateLab(in); err != nil {
		return nil, err
	}
	profile := &LabProfile{
		AccountID:       accountID,
		LabID:           d.humanID(RoleLab),
		LabName:         strings.TrimSpace(in.LabName),
		Mobile:          in.Mobile,
		Email:           in.Email,
		Address:         strings.TrimSpace(in.Address),
		City:            strings.TrimSpace(in.City),
		ServicesOffered: in.ServicesOffered,
		CreatedAt:       d.now().UTC(),
	}
	update := AccountUpdate{DisplayName: &profile.LabName, Email: &profile.Email, Phone: &profile.Mobile}
	if err := d.register(ctx, accountID, RoleLab, update, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// CreatePharmacyProfile registers the calling account as a pharmacy.
func (d *Directory) CreatePharmacyProfile(ctx context.Context, accountID string, in PharmacyInput) (*PharmacyProfile, error) {
	if err := validatePharmacy(in); err != nil {
		return nil, err
	}
	profile := &PharmacyProfile{
		AccountID:     accountID,
		PharmacyID:    d.humanID(RolePharmacy),
		PharmacyName:  strings.TrimSpace(in.PharmacyName),
		Mobile:        in.Mobile,
		Email:         in.Email,
		Address:       strings.TrimSpace(in.Address),
		City:          strings.TrimSpace(in.City),
		LicenseNumber: in.LicenseNumber,
		CreatedAt:     d.now().UTC(),
	}
	update := AccountUpdate{DisplayName: &profile.PharmacyName, Email: &profile.Email, Phone: &profile.Mobile}
	if err := d.register(ctx, accountID, RolePharmacy, update, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// register claims the account for role, pushes the contact details to the
// auth collaborator and persists the profile. A failure after the claim
// releases it so the account can register again.
func (d *Directory) register(ctx context.Context, accountID string, role Role, update AccountUpdate, profile any) (err error) {
	defer d.hooks.Observe("identity", "create_"+string(role)+"_profile", time.Now(), &err)
	if strings.TrimSpace(accountID) == "" {
		return ErrMissingAccount
	}
	ctx, span := tracer.Start(ctx, "identity.register")
	defer span.End()
	span.SetAttributes(
		attribute.String("rams.account_id", accountID),
		attribute.String("rams.role", string(role)),
	)

	if err := d.claimRole(ctx, accountID, role); err != nil {
		span.RecordError(err)
		return err
	}

	if err := d.auth.UpdateAccount(ctx, accountID, update); err != nil {
		d.releaseRole(ctx, accountID, role)
		span.RecordError(err)
		if fe := contactFailure(err); fe != nil {
			return fe
		}
		d.logger.Error("auth update failed during registration", "account_id", accountID, "role", role, "error", err)
		return failure.From(err).Withf(registrationFailed)
	}

	if err := docstore.InsertAs(ctx, d.store, role.Collection(), accountID, profile); err != nil {
		d.releaseRole(ctx, accountID, role)
		span.RecordError(err)
		if errors.Is(err, docstore.ErrConflict) {
			return ErrAlreadyRegistered.Withf("This account is already registered as a %s.", role)
		}
		d.logger.Error("profile insert failed", "account_id", accountID, "role", role, "error", err)
		return storeFailure(err).Withf(registrationFailed)
	}

	d.logger.Info("profile registered", "account_id", accountID, "role", role)
	d.hooks.Record(ctx, audit.Event{
		Action:   audit.ActionProfileCreated,
		ActorID:  accountID,
		Entity:   string(role),
		EntityID: accountID,
		Subjects: []string{accountID},
	})
	if role == RoleDoctor || role == RolePharmacy {
		d.listingChanged(ctx)
	}
	return nil
}

func (d *Directory) listingChanged(ctx context.Context) {
	if d.listed != nil {
		d.listed(context.WithoutCancel(ctx))
	}
}

func (d *Directory) claimRole(ctx context.Context, accountID string, role Role) error {
	claim := roleClaim{AccountID: accountID, Role: role, Status: claimActive, ClaimedAt: d.now().UTC()}
	err := docstore.InsertAs(ctx, d.store, CollectionAccountRoles, accountID, claim)
	if err == nil {
		return nil
	}
	if !errors.Is(err, docstore.ErrConflict) {
		d.logger.Error("role claim failed", "account_id", accountID, "role", role, "error", err)
		return storeFailure(err).Withf(registrationFailed)
	}

	existing, err := docstore.GetAs[roleClaim](ctx, d.store, CollectionAccountRoles, accountID)
	if err != nil {
		return storeFailure(err).Withf(registrationFailed)
	}
	if existing.Status != claimReleased {
		return ErrAlreadyRegistered.Withf("This account is already registered as a %s.", existing.Role)
	}
	err = d.store.Update(ctx, CollectionAccountRoles, accountID, docstore.Patch{
		Expect: []docstore.Eq{{Field: "status", Value: claimReleased}},
		Set: map[string]any{
			"role":      string(role),
			"status":    claimActive,
			"claimedAt": d.now().UTC(),
		},
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrConditionFailed):
		return ErrAlreadyRegistered
	default:
		return storeFailure(err).Withf(registrationFailed)
	}
}

func (d *Directory) releaseRole(ctx context.Context, accountID string, role Role) {
	err := d.store.Update(context.WithoutCancel(ctx), CollectionAccountRoles, accountID, docstore.Patch{
		Expect: []docstore.Eq{{Field: "role", Value: string(role)}, {Field: "status", Value: claimActive}},
		Set:    map[string]any{"status": claimReleased},
	})
	if err != nil {
		d.logger.Error("failed to release role claim", "account_id", accountID, "role", role, "error", err)
	}
}

// UpdateProfile patches the caller's patient or doctor profile and pushes
// name and e-mail changes to the auth collaborator.
func (d *Directory) UpdateProfile(ctx context.Context, accountID string, update ProfileUpdate) (_ Resolution, err error) {
	defer d.hooks.Observe("identity", "update_profile", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "identity.update_profile")
	defer span.End()
	span.SetAttributes(attribute.String("rams.account_id", accountID))

	current := d.ResolveRole(ctx, accountID)
	switch current.Role {
	case RoleUnknown:
		return Resolution{}, ErrProfileNotFound
	case RolePatient, RoleDoctor:
	default:
		return Resolution{}, ErrProfileNotEditable
	}
	if err := validateUpdate(current.Role, update); err != nil {
		return Resolution{}, err
	}
	set := update.fields()
	if len(set) == 0 {
		return current, nil
	}

	var restore *AccountUpdate
	if update.Name != nil || update.Email != nil {
		acct := AccountUpdate{Email: update.Email}
		if update.Name != nil {
			name := set["name"].(string)
			acct.DisplayName = &name
		}
		if err := d.auth.UpdateAccount(ctx, accountID, acct); err != nil {
			span.RecordError(err)
			if fe := contactFailure(err); fe != nil {
				return Resolution{}, fe
			}
			d.logger.Error("auth update failed", "account_id", accountID, "error", err)
			return Resolution{}, failure.From(err).Withf(updateFailed)
		}
		restore = previousContact(current.Profile, acct)
	}

	set["updatedAt"] = d.now().UTC()
	if err := d.store.Update(ctx, current.Role.Collection(), accountID, docstore.Patch{Set: set}); err != nil {
		span.RecordError(err)
		if restore != nil {
			if rerr := d.auth.UpdateAccount(context.WithoutCancel(ctx), accountID, *restore); rerr != nil {
				d.logger.Error("auth rollback failed", "account_id", accountID, "error", rerr)
			}
		}
		if errors.Is(err, docstore.ErrNotFound) {
			return Resolution{}, ErrProfileNotFound
		}
		d.logger.Error("profile update failed", "account_id", accountID, "error", err)
		return Resolution{}, storeFailure(err).Withf(updateFailed)
	}
	fields := make([]string, 0, len(set))
	for k := range set {
		if k != "updatedAt" {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	d.hooks.Record(ctx, audit.Event{
		Action:   audit.ActionProfileUpdated,
		ActorID:  accountID,
		Entity:   string(current.Role),
		EntityID: accountID,
		Subjects: []string{accountID},
		Details:  audit.Details(map[string]any{"fields": fields}),
	})
	if current.Role == RoleDoctor {
		d.listingChanged(ctx)
	}
	return d.ResolveRole(ctx, accountID), nil
}

// previousContact returns the update that puts the auth account back to
// what the stored profile says, touching only the fields in applied.
func previousContact(profile any, applied AccountUpdate) *AccountUpdate {
	var name, email string
	switch p := profile.(type) {
	case *PatientProfile:
		name, email = p.Name, p.Email
	case *DoctorProfile:
		name, email = p.Name, p.Email
	default:
		return nil
	}
	var restore AccountUpdate
	if applied.DisplayName != nil {
		restore.DisplayName = &name
	}
	if applied.Email != nil {
		restore.Email = &email
	}
	return &restore
}

// VerifyCode redeems a one-time code with the auth collaborator and returns
// the signed-in account id.
func (d *Directory) VerifyCode(ctx context.Context, sessionToken, code string) (string, error) {
	if strings.TrimSpace(sessionToken) == "" || strings.TrimSpace(code) == "" {
		return "", failure.Validation("missing_code", "Verification session and code are required.")
	}
	accountID, err := d.auth.VerifyOneTimeCode(ctx, sessionToken, code)
	if errors.Is(err, ErrInvalidCode) {
		return "", ErrCodeRejected.Wrap(err)
	}
	if err != nil {
		d.logger.Error("code verification failed", "error", err)
		return "", failure.From(err)
	}
	return accountID, nil
}

// FindAvailableAmbulance returns the first ambulance marked available.
func (d *Directory) FindAvailableAmbulance(ctx context.Context) (*AmbulanceProfile, bool, error) {
	ctx, span := tracer.Start(ctx, "identity.find_available_ambulance")
	defer span.End()

	found, err := docstore.FindAs[AmbulanceProfile](ctx, d.store, CollectionAmbulances, docstore.Query{
		Where: []docstore.Eq{{Field: "isAvailable", Value: true}},
		Limit: 1,
	})
	if err != nil {
		span.RecordError(err)
		d.logger.Error("ambulance lookup failed", "error", err)
		return nil, false, storeFailure(err).Withf("Could not find an ambulance at this time.")
	}
	if len(found) == 0 {
		return nil, false, nil
	}
	return &found[0], true, nil
}

// SetAmbulanceAvailability toggles the caller's ambulance availability.
func (d *Directory) SetAmbulanceAvailability(ctx context.Context, accountID string, available bool) (*AmbulanceProfile, error) {
	ctx, span := tracer.Start(ctx, "identity.set_ambulance_availability")
	defer span.End()
	span.SetAttributes(
		attribute.String("rams.account_id", accountID),
		attribute.Bool("rams.available", available),
	)

	err := d.store.Update(ctx, CollectionAmbulances, accountID, docstore.Patch{
		Set: map[string]any{"isAvailable": available},
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotAmbulance
	}
	if err != nil {
		span.RecordError(err)
		d.logger.Error("availability update failed", "account_id", accountID, "error", err)
		return nil, storeFailure(err)
	}
	profile, err := docstore.GetAs[AmbulanceProfile](ctx, d.store, CollectionAmbulances, accountID)
	if err != nil {
		return nil, storeFailure(err)
	}
	return profile, nil
}

// storeFailure maps store errors onto the failure taxonomy.
func storeFailure(err error) *failure.Error {
	if errors.Is(err, docstore.ErrTimeout) {
		return failure.Timeout(err)
	}
	return failure.From(err)
}
