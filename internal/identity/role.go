package identity

// Role is the single business role bound to an account.
type Role string

const (
	RolePatient   Role = "patient"
	RoleDoctor    Role = "doctor"
	RoleAmbulance Role = "ambulance"
	RoleLab       Role = "lab"
	RolePharmacy  Role = "pharmacy"
	RoleUnknown   Role = "unknown"
)

// Collection names of the role profile stores.
const (
	CollectionPatients     = "patients"
	CollectionDoctors      = "doctors"
	CollectionAmbulances   = "ambulances"
	CollectionLabs         = "labs"
	CollectionPharmacies   = "pharmacies"
	CollectionAccountRoles = "account_roles"
)

// resolutionOrder is the order ResolveRole checks profile collections in.
var resolutionOrder = []Role{RolePatient, RoleDoctor, RoleAmbulance, RoleLab, RolePharmacy}

// ParseRole accepts the lowercase role names used in routes and tokens.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePatient, RoleDoctor, RoleAmbulance, RoleLab, RolePharmacy:
		return Role(s), true
	}
	return RoleUnknown, false
}

// Collection returns the profile collection for r, or "" for RoleUnknown.
func (r Role) Collection() string {
	switch r {
	case RolePatient:
		return CollectionPatients
	case RoleDoctor:
		return CollectionDoctors
	case RoleAmbulance:
		return CollectionAmbulances
	case RoleLab:
		return CollectionLabs
	case RolePharmacy:
		return CollectionPharmacies
	}
	return ""
}

func (r Role) idPrefix() string {
	switch r {
	case RolePatient:
		return "RAMS-P-"
	case RoleDoctor:
		return "RAMS-D-"
	case RoleAmbulance:
		return "RAMS-A-"
	case RoleLab:
		return "RAMS-L-"
	case RolePharmacy:
		return "RAMS-PH-"
	}
	return ""
}
