package notify

import "github.com/wolfman30/rams-care-platform/internal/identity"

// Contact is where an account's e-mail goes.
type Contact struct {
	AccountID string
	Name      string
	Email     string
}

// ContactOf extracts the display name and e-mail from a resolved profile.
// Ambulance profiles carry no e-mail.
func ContactOf(res identity.Resolution) Contact {
	switch p := res.Profile.(type) {
	case *identity.PatientProfile:
		return Contact{AccountID: p.AccountID, Name: p.Name, Email: p.Email}
	case *identity.DoctorProfile:
		return Contact{AccountID: p.AccountID, Name: p.Name, Email: p.Email}
	case *identity.LabProfile:
		return Contact{AccountID: p.AccountID, Name: p.LabName, Email: p.Email}
	case *identity.PharmacyProfile:
		return Contact{AccountID: p.AccountID, Name: p.PharmacyName, Email: p.Email}
	case *identity.AmbulanceProfile:
		return Contact{AccountID: p.AccountID, Name: p.DriverName}
	}
	return Contact{}
}
