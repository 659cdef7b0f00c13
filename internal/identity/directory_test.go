package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/rams-care-platform/internal/audit"
	"github.com/wolfman30/rams-care-platform/internal/docstore"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	"github.com/wolfman30/rams-care-platform/internal/ledger"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

var fixedNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store *docstore.MemoryStore
	auth  *MemoryAuthProvider
	dir   *Directory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	auth := NewMemoryAuthProvider()
	return &fixture{
		store: store,
		auth:  auth,
		dir:   NewDirectory(store, auth, logging.Discard(), WithClock(func() time.Time { return fixedNow })),
	}
}

func (f *fixture) account(t *testing.T, phone string) string {
	t.Helper()
	id, err := f.auth.CreateAccount(context.Background(), phone, "", "")
	require.NoError(t, err)
	return id
}

func patientInput() PatientInput {
	return PatientInput{Name: "Asha Rao", Mobile: "9876543210", Email: "asha@example.com", Age: 34, Gender: "female", City: "Pune"}
}

func doctorInput() DoctorInput {
	return DoctorInput{
		Name: "Dr. Vikram Mehta", Mobile: "9123456780", Email: "vikram@example.com",
		ProfileType: ProfileTypePractitioner, Specialization: "Dermatology", Qualification: "MBBS, MD",
		RegistrationNumber: "MCI-55821", ExperienceYears: 12, ConsultationFee: 600, City: "Mumbai",
	}
}

func TestCreatePatientProfileAndResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.account(t, "+919876543210")

	profile, err := f.dir.CreatePatientProfile(ctx, id, patientInput())
	require.NoError(t, err)
	assert.Equal(t, "RAMS-P-1740821400000", profile.PatientID)
	assert.Equal(t, id, profile.AccountID)

	res := f.dir.ResolveRole(ctx, id)
	require.Equal(t, RolePatient, res.Role)
	got := res.Profile.(*PatientProfile)
	assert.Equal(t, "Asha Rao", got.Name)

	acct, ok := f.auth.Account(id)
	require.True(t, ok)
	assert.Equal(t, "Asha Rao", acct.DisplayName)
	assert.Equal(t, "asha@example.com", acct.Email)
}

func TestResolveRoleUnknown(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, RoleUnknown, f.dir.ResolveRole(context.Background(), "nobody").Role)
	assert.Equal(t, RoleUnknown, f.dir.ResolveRole(context.Background(), "").Role)
}

func TestResolveRolePriorityOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Legacy data can hold two profiles for one account; the patient wins.
	require.NoError(t, docstore.InsertAs(ctx, f.store, CollectionDoctors, "acct-1", DoctorProfile{AccountID: "acct-1", Name: "Dr. A"}))
	require.NoError(t, docstore.InsertAs(ctx, f.store, CollectionPatients, "acct-1", PatientProfile{AccountID: "acct-1", Name: "A"}))

	assert.Equal(t, RolePatient, f.dir.ResolveRole(ctx, "acct-1").Role)
}

type brokenStore struct {
	docstore.Store
}

func (brokenStore) Get(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("connection reset")
}

func TestResolveRoleDegradesOnStoreFailure(t *testing.T) {
	dir := NewDirectory(brokenStore{Store: docstore.NewMemoryStore()}, NewMemoryAuthProvider(), logging.Discard())
	res := dir.ResolveRole(context.Background(), "acct-1")
	assert.Equal(t, RoleUnknown, res.Role)
	assert.Nil(t, res.Profile)
}

func TestSecondRoleIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.account(t, "+919876543210")

	_, err := f.dir.CreatePatientProfile(ctx, id, patientInput())
	require.NoError(t, err)

	_, err = f.dir.CreateDoctorProfile(ctx, id, doctorInput())
	require.Error(t, err)
	assert.Equal(t, failure.KindAlreadyExists, failure.KindOf(err))
	assert.Contains(t, failure.From(err).Message, "patient")

	assertSingleProfile(t, f.store, id)
}

func TestConcurrentRegistrationsClaimOneRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.account(t, "+919876543210")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		in := patientInput()
		in.Email = ""
		_, errs[0] = f.dir.CreatePatientProfile(ctx, id, in)
	}()
	go func() {
		defer wg.Done()
		in := doctorInput()
		in.Mobile = "9876543210"
		_, errs[1] = f.dir.CreateDoctorProfile(ctx, id, in)
	}()
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.Equal(t, failure.KindAlreadyExists, failure.KindOf(err))
	}
	assert.Equal(t, 1, successes)
	assertSingleProfile(t, f.store, id)
}

func TestDuplicateEmailReleasesClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.account(t, "+910000000001")
	second := f.account(t, "+910000000002")

	_, err := f.dir.CreatePatientProfile(ctx, first, patientInput())
	require.NoError(t, err)

	in := patientInput()
	in.Mobile = "9000000002"
	_, err = f.dir.CreatePatientProfile(ctx, second, in)
	require.Error(t, err)
	assert.Equal(t, failure.KindDuplicateContact, failure.KindOf(err))
	assert.Equal(t, "This email address is already in use by another account.", failure.From(err).Message)

	in.Email = "other@example.com"
	_, err = f.dir.CreatePatientProfile(ctx, second, in)
	require.NoError(t, err, "a rejected registration must not block the account")
	assert.Equal(t, RolePatient, f.dir.ResolveRole(ctx, second).Role)
}

func TestDuplicatePhoneIsDuplicateContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "9876543210")
	second := f.account(t, "+910000000002")

	in := patientInput()
	in.Email = ""
	_, err := f.dir.CreatePatientProfile(ctx, second, in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPhoneInUse))
}

func TestCreateProfileValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.account(t, "+919876543210")

	cases := []struct {
		name string
		run  func() error
		code string
	}{
		{"short patient name", func() error {
			in := patientInput()
			in.Name = "A"
			_, err := f.dir.CreatePatientProfile(ctx, id, in)
			return err
		}, "invalid_name"},
		{"bad mobile", func() error {
			in := patientInput()
			in.Mobile = "98765"
			_, err := f.dir.CreatePatientProfile(ctx, id, in)
			return err
		}, "invalid_mobile"},
		{"clinic owner without clinic", func() error {
			in := doctorInput()
			in.ProfileType = ProfileTypeClinicOwner
			_, err := f.dir.CreateDoctorProfile(ctx, id, in)
			return err
		}, "invalid_clinic_name"},
		{"negative fee", func() error {
			in := doctorInput()
			in.ConsultationFee = -1
			_, err := f.dir.CreateDoctorProfile(ctx, id, in)
			return err
		}, "invalid_fee"},
		{"short vehicle number", func() error {
			_, err := f.dir.CreateAmbulanceProfile(ctx, id, AmbulanceInput{DriverName: "Ravi", VehicleNumber: "MH", Mobile: "9876543210", City: "Pune"})
			return err
		}, "invalid_vehicle_number"},
		{"lab without services", func() error {
			_, err := f.dir.CreateLabProfile(ctx, id, LabInput{LabName: "CarePath", Mobile: "9876543210", Email: "lab@example.com", Address: "12 MG Road, Camp", City: "Pune"})
			return err
		}, "invalid_services"},
		{"pharmacy bad email", func() error {
			_, err := f.dir.CreatePharmacyProfile(ctx, id, PharmacyInput{PharmacyName: "City Meds", Mobile: "9876543210", Email: "nope", Address: "4 Station Road, Shivaji Nagar", City: "Pune", LicenseNumber: "DL-20931"})
			return err
		}, "invalid_email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			require.Error(t, err)
			fe := failure.From(err)
			assert.Equal(t, failure.KindValidation, fe.Kind)
			assert.Equal(t, tc.code, fe.Code)
		})
	}
	assert.Equal(t, RoleUnknown, f.dir.ResolveRole(ctx, id).Role, "validation failures write nothing")
}

func TestCreateProfileRequiresAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.dir.CreatePatientProfile(context.Background(), "", patientInput())
	assert.Equal(t, failure.KindUnauthorized, failure.KindOf(err))
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.account(t, "+919123456780")
	_, err := f.dir.CreateDoctorProfile(ctx, id, doctorInput())
	require.NoError(t, err)

	name := "Dr. Vikram S. Mehta"
	fee := 800
	res, err := f.dir.UpdateProfile(ctx, id, ProfileUpdate{Name: &name, ConsultationFee: &fee})
	require.NoError(t, err)
	doc := res.Profile.(*DoctorProfile)
	assert.Equal(t, name, doc.Name)
	assert.Equal(t, 800, doc.ConsultationFee)
	require.NotNil(t, doc.UpdatedAt)

	acct, _ := f.auth.Account(id)
	assert.Equal(t, name, acct.DisplayName)

	age := 40
	_, err = f.dir.UpdateProfile(ctx, id, ProfileUpdate{Age: &age})
	assert.Equal(t, failure.KindValidation, failure.KindOf(err))
}

type failingUpdateStore struct {
	*docstore.MemoryStore
}

func (failingUpdateStore) Update(context.Context, string, string, docstore.Patch) error {
	return errors.New("connection reset")
}

func TestUpdateProfileRestoresAuthWhenStoreFails(t *testing.T) {
	store := docstore.NewMemoryStore()
	auth := NewMemoryAuthProvider()
	ctx := context.Background()
	id, err := auth.CreateAccount(ctx, "+919876543210", "", "")
	require.NoError(t, err)
	_, err = NewDirectory(store, auth, logging.Discard()).CreatePatientProfile(ctx, id, patientInput())
	require.NoError(t, err)

	dir := NewDirectory(failingUpdateStore{store}, auth, logging.Discard())
	name, email := "Asha R. Rao", "asha.rao@example.com"
	_, err = dir.UpdateProfile(ctx, id, ProfileUpdate{Name: &name, Email: &email})
	require.Error(t, err)
	assert.Equal(t, failure.KindUnexpected, failure.KindOf(err))

	acct, ok := auth.Account(id)
	require.True(t, ok)
	assert.Equal(t, "Asha Rao", acct.DisplayName)
	assert.Equal(t, "asha@example.com", acct.Email)

	// The freed address is usable again.
	_, err = auth.CreateAccount(ctx, "+919000000000", "Other", email)
	assert.NoError(t, err)
}

func TestUpdateProfileRoleRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	name := "Someone"

	_, err := f.dir.UpdateProfile(ctx, "ghost", ProfileUpdate{Name: &name})
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))

	id := f.account(t, "+919876543210")
	_, err = f.dir.CreateAmbulanceProfile(ctx, id, AmbulanceInput{DriverName: "Ravi Kumar", VehicleNumber: "MH12AB1234", Mobile: "9876543210", City: "Pune"})
	require.NoError(t, err)
	_, err = f.dir.UpdateProfile(ctx, id, ProfileUpdate{Name: &name})
	assert.Equal(t, failure.KindForbidden, failure.KindOf(err))
}

func TestAmbulanceAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, found, err := f.dir.FindAvailableAmbulance(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	id := f.account(t, "+919876543210")
	_, err = f.dir.CreateAmbulanceProfile(ctx, id, AmbulanceInput{DriverName: "Ravi Kumar", VehicleNumber: "mh12ab1234", Mobile: "9876543210", City: "Pune"})
	require.NoError(t, err)

	amb, found, err := f.dir.FindAvailableAmbulance(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "MH12AB1234", amb.VehicleNumber)

	updated, err := f.dir.SetAmbulanceAvailability(ctx, id, false)
	require.NoError(t, err)
	assert.False(t, updated.IsAvailable)

	_, found, err = f.dir.FindAvailableAmbulance(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = f.dir.SetAmbulanceAvailability(ctx, "patient-1", true)
	assert.True(t, errors.Is(err, ErrNotAmbulance))
}

func TestVerifyCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, code, err := f.auth.StartSignIn(ctx, "+919876543210")
	require.NoError(t, err)

	_, err = f.dir.VerifyCode(ctx, token, "000000x")
	assert.Equal(t, failure.KindUnauthorized, failure.KindOf(err))

	id, err := f.dir.VerifyCode(ctx, token, code)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = f.dir.VerifyCode(ctx, token, code)
	assert.Equal(t, failure.KindUnauthorized, failure.KindOf(err), "codes are single use")

	token, code, err = f.auth.StartSignIn(ctx, "+919876543210")
	require.NoError(t, err)
	again, err := f.dir.VerifyCode(ctx, token, code)
	require.NoError(t, err)
	assert.Equal(t, id, again, "same phone signs into the same account")

	_, err = f.dir.VerifyCode(ctx, "", "")
	assert.Equal(t, failure.KindValidation, failure.KindOf(err))
}

func assertSingleProfile(t *testing.T, store docstore.Store, accountID string) {
	t.Helper()
	count := 0
	for _, role := range resolutionOrder {
		if _, err := store.Get(context.Background(), role.Collection(), accountID); err == nil {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one role profile per account")
}

func TestProfileChangesAreAudited(t *testing.T) {
	store := docstore.NewMemoryStore()
	auth := NewMemoryAuthProvider()
	rec := &audit.MemoryRecorder{}
	dir := NewDirectory(store, auth, logging.Discard(),
		WithClock(func() time.Time { return fixedNow }),
		WithHooks(ledger.Hooks{Audit: rec}))
	ctx := context.Background()

	id, err := auth.CreateAccount(ctx, "+919123456780", "", "")
	require.NoError(t, err)
	_, err = dir.CreateDoctorProfile(ctx, id, doctorInput())
	require.NoError(t, err)

	fee := 900
	city := "Thane"
	_, err = dir.UpdateProfile(ctx, id, ProfileUpdate{ConsultationFee: &fee, City: &city})
	require.NoError(t, err)

	// a rejected registration leaves no trail
	_, err = dir.CreatePatientProfile(ctx, id, patientInput())
	require.Error(t, err)

	got := rec.Events()
	require.Len(t, got, 2)
	assert.Equal(t, audit.ActionProfileCreated, got[0].Action)
	assert.Equal(t, "doctor", got[0].Entity)
	assert.Equal(t, []string{id}, got[0].Subjects)
	assert.Equal(t, audit.ActionProfileUpdated, got[1].Action)
	assert.JSONEq(t, `{"fields":["city","consultationFee"]}`, string(got[1].Details))
}
