package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/wolfman30/rams-care-platform/cmd/mainconfig"
	"github.com/wolfman30/rams-care-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/rams-care-platform/internal/config"
	"github.com/wolfman30/rams-care-platform/internal/directory"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/internal/workflow"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

func main() {
	force := flag.Bool("force", false, "seed even when doctors already exist")
	flag.Parse()

	mainconfig.LoadEnv()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}
	store, closeStore, err := bootstrap.BuildStore(ctx, cfg, awsCfg, pool, logger)
	if err != nil {
		logger.Error("failed to open document store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Seeded accounts only need to exist long enough to register profiles.
	auth := identity.NewMemoryAuthProvider()
	engine := workflow.New(workflow.Deps{
		Store:  store,
		Auth:   auth,
		Logger: logger,
	})
	n, err := seed(ctx, engine, auth, *force)
	if err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("seeded %d profiles\n", n)
}

// seedAuth is the part of the auth collaborator seeding needs.
type seedAuth interface {
	CreateAccount(ctx context.Context, phone, displayName, email string) (string, error)
}

// seed registers the development directory. It is a no-op when doctors are
// already listed, unless force is set.
func seed(ctx context.Context, engine *workflow.Engine, auth seedAuth, force bool) (int, error) {
	if !force {
		existing := engine.SearchDoctors(ctx, directory.DoctorFilter{})
		if !existing.Success {
			return 0, fmt.Errorf("list doctors: %s", existing.Error)
		}
		if len(*existing.Data) > 0 {
			return 0, nil
		}
	}
	count := 0
	account := func(mobile, name, email string) (string, error) {
		return auth.CreateAccount(ctx, "+91"+mobile, name, email)
	}
	check := func(kind, name string, ok bool, msg string) error {
		if !ok {
			return fmt.Errorf("%s %s: %s", kind, name, msg)
		}
		count++
		return nil
	}

	for _, in := range doctors {
		id, err := account(in.Mobile, in.Name, in.Email)
		if err != nil {
			return count, fmt.Errorf("doctor %s: %w", in.Name, err)
		}
		res := engine.CreateDoctorProfile(ctx, id, in)
		if err := check("doctor", in.Name, res.Success, res.Error); err != nil {
			return count, err
		}
	}
	for _, in := range pharmacies {
		id, err := account(in.Mobile, in.PharmacyName, in.Email)
		if err != nil {
			return count, fmt.Errorf("pharmacy %s: %w", in.PharmacyName, err)
		}
		res := engine.CreatePharmacyProfile(ctx, id, in)
		if err := check("pharmacy", in.PharmacyName, res.Success, res.Error); err != nil {
			return count, err
		}
	}
	for _, in := range labs {
		id, err := account(in.Mobile, in.LabName, in.Email)
		if err != nil {
			return count, fmt.Errorf("lab %s: %w", in.LabName, err)
		}
		res := engine.CreateLabProfile(ctx, id, in)
		if err := check("lab", in.LabName, res.Success, res.Error); err != nil {
			return count, err
		}
	}
	for _, in := range ambulances {
		id, err := account(in.Mobile, in.DriverName, "")
		if err != nil {
			return count, fmt.Errorf("ambulance %s: %w", in.VehicleNumber, err)
		}
		res := engine.CreateAmbulanceProfile(ctx, id, in)
		if err := check("ambulance", in.VehicleNumber, res.Success, res.Error); err != nil {
			return count, err
		}
		if _, err := engine.Identity.SetAmbulanceAvailability(ctx, id, true); err != nil {
			return count, fmt.Errorf("ambulance %s availability: %w", in.VehicleNumber, err)
		}
	}
	return count, nil
}

var doctors = []identity.DoctorInput{
	{
		Name: "Dr. Ananya Iyer", Mobile: "9810000001", Email: "ananya.iyer@example.com",
		ProfileType: identity.ProfileTypePractitioner, Specialization: "General Physician",
		Qualification: "MBBS", RegistrationNumber: "MCI-10001", ExperienceYears: 8, ConsultationFee: 400, City: "Pune",
	},
	{
		Name: "Dr. Rohan Kulkarni", Mobile: "9810000002", Email: "rohan.kulkarni@example.com",
		ProfileType: identity.ProfileTypeClinicOwner, Specialization: "Cardiology",
		Qualification: "MBBS, MD, DM", RegistrationNumber: "MCI-10002", ExperienceYears: 15, ConsultationFee: 900, City: "Pune",
		ClinicName: "Kulkarni Heart Clinic", ClinicAddress: "5 Law College Road, Erandwane",
	},
	{
		Name: "Dr. Meera Pillai", Mobile: "9810000003", Email: "meera.pillai@example.com",
		ProfileType: identity.ProfileTypePractitioner, Specialization: "Dermatology",
		Qualification: "MBBS, MD", RegistrationNumber: "MCI-10003", ExperienceYears: 11, ConsultationFee: 700, City: "Mumbai",
	},
	{
		Name: "Dr. Arjun Sethi", Mobile: "9810000004", Email: "arjun.sethi@example.com",
		ProfileType: identity.ProfileTypeClinicOwner, Specialization: "Pediatrics",
		Qualification: "MBBS, DCH", RegistrationNumber: "MCI-10004", ExperienceYears: 9, ConsultationFee: 600, City: "Mumbai",
		ClinicName: "Little Steps Clinic", ClinicAddress: "12 Hill Road, Bandra West",
	},
}

var pharmacies = []identity.PharmacyInput{
	{
		PharmacyName: "Wellness Pharmacy", Mobile: "9820000001", Email: "orders@wellness.example.com",
		Address: "22 MG Road, Camp", City: "Pune", LicenseNumber: "MH-PH-20001",
	},
	{
		PharmacyName: "CarePlus Chemists", Mobile: "9820000002", Email: "rx@careplus.example.com",
		Address: "88 Linking Road, Santacruz", City: "Mumbai", LicenseNumber: "MH-PH-20002",
	},
}

var labs = []identity.LabInput{
	{
		LabName: "Precision Diagnostics", Mobile: "9830000001", Email: "lab@precision.example.com",
		Address: "3 Baner Road, Baner", City: "Pune", ServicesOffered: "Blood tests, X-ray, ECG",
	},
}

var ambulances = []identity.AmbulanceInput{
	{DriverName: "Suresh Patil", VehicleNumber: "MH12AB1234", Mobile: "9840000001", City: "Pune"},
	{DriverName: "Imran Shaikh", VehicleNumber: "MH01CD5678", Mobile: "9840000002", City: "Mumbai"},
}
