package identity

import "time"

// Doctor profile types.
const (
	ProfileTypePractitioner = "practitioner"
	ProfileTypeClinicOwner  = "clinic_owner"
)

// PatientProfile is keyed by the patient's account id.
type PatientProfile struct {
	AccountID  string     `json:"accountId"`
	PatientID  string     `json:"patientId"`
	Name       string     `json:"name"`
	Mobile     string     `json:"mobile"`
	Email      string     `json:"email,omitempty"`
	Age        int        `json:"age"`
	Gender     string     `json:"gender"`
	City       string     `json:"city"`
	BloodGroup string     `json:"bloodGroup,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

// DoctorProfile is keyed by the doctor's account id.
type DoctorProfile struct {
	AccountID          string     `json:"accountId"`
	DoctorID           string     `json:"doctorId"`
	Name               string     `json:"name"`
	Mobile             string     `json:"mobile"`
	Email              string     `json:"email"`
	Specialization     string     `json:"specialization"`
	Qualification      string     `json:"qualification"`
	RegistrationNumber string     `json:"registrationNumber"`
	ExperienceYears    int        `json:"experienceYears"`
	ConsultationFee    int        `json:"consultationFee"`
	City               string     `json:"city"`
	ProfileType        string     `json:"profileType"`
	ClinicName         string     `json:"clinicName,omitempty"`
	ClinicAddress      string     `json:"clinicAddress,omitempty"`
	IsVerified         bool       `json:"isVerified"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          *time.Time `json:"updatedAt,omitempty"`
}

// AmbulanceProfile is keyed by the operator's account id.
type AmbulanceProfile struct {
	AccountID     string    `json:"accountId"`
	AmbulanceID   string    `json:"ambulanceId"`
	DriverName    string    `json:"driverName"`
	VehicleNumber string    `json:"vehicleNumber"`
	Mobile        string    `json:"mobile"`
	City          string    `json:"city"`
	IsAvailable   bool      `json:"isAvailable"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LabProfile is keyed by the lab's account id.
type LabProfile struct {
	AccountID       string    `json:"accountId"`
	LabID           string    `json:"labId"`
	LabName         string    `json:"labName"`
	Mobile          string    `json:"mobile"`
	Email           string    `json:"email"`
	Address         string    `json:"address"`
	City            string    `json:"city"`
	ServicesOffered string    `json:"servicesOffered"`
	CreatedAt       time.Time `json:"createdAt"`
}

// PharmacyProfile is keyed by the pharmacy's account id.
type PharmacyProfile struct {
	AccountID     string    `json:"accountId"`
	PharmacyID    string    `json:"pharmacyId"`
	PharmacyName  string    `json:"pharmacyName"`
	Mobile        string    `json:"mobile"`
	Email         string    `json:"email"`
	Address       string    `json:"address"`
	City          string    `json:"city"`
	LicenseNumber string    `json:"licenseNumber"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Resolution is the outcome of ResolveRole. Profile holds one of the
// *...Profile types, or nil when Role is RoleUnknown.
type Resolution struct {
	Role    Role `json:"role"`
	Profile any  `json:"profile"`
}

// PatientInput carries the patient registration form.
type PatientInput struct {
	Name       string `json:"name"`
	Mobile     string `json:"mobile"`
	Email      string `json:"email"`
	Age        int    `json:"age"`
	Gender     string `json:"gender"`
	City       string `json:"city"`
	BloodGroup string `json:"bloodGroup"`
}

// DoctorInput carries the doctor registration form.
type DoctorInput struct {
	Name               string `json:"name"`
	Mobile             string `json:"mobile"`
	Email              string `json:"email"`
	ProfileType        string `json:"profileType"`
	Specialization     string `json:"specialization"`
	Qualification      string `json:"qualification"`
	RegistrationNumber string `json:"registrationNumber"`
	ExperienceYears    int    `json:"experienceYears"`
	ConsultationFee    int    `json:"consultationFee"`
	City               string `json:"city"`
	ClinicName         string `json:"clinicName"`
	ClinicAddress      string `json:"clinicAddress"`
}

// AmbulanceInput carries the ambulance registration form.
type AmbulanceInput struct {
	DriverName    string `json:"driverName"`
	VehicleNumber string `json:"vehicleNumber"`
	Mobile        string `json:"mobile"`
	City          string `json:"city"`
}

// LabInput carries the lab registration form.
type LabInput struct {
	LabName         string `json:"labName"`
	Mobile          string `json:"mobile"`
	Email           string `json:"email"`
	Address         string `json:"address"`
	City            string `json:"city"`
	ServicesOffered string `json:"servicesOffered"`
}

// PharmacyInput carries the pharmacy registration form.
type PharmacyInput struct {
	PharmacyName  string `json:"pharmacyName"`
	Mobile        string `json:"mobile"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	City          string `json:"city"`
	LicenseNumber string `json:"licenseNumber"`
}

// ProfileUpdate patches a patient or doctor profile. Nil fields are left
// alone; fields that do not belong to the caller's role are rejected.
type ProfileUpdate struct {
	Name            *string `json:"name,omitempty"`
	Email           *string `json:"email,omitempty"`
	City            *string `json:"city,omitempty"`
	Age             *int    `json:"age,omitempty"`
	Gender          *string `json:"gender,omitempty"`
	BloodGroup      *string `json:"bloodGroup,omitempty"`
	Specialization  *string `json:"specialization,omitempty"`
	Qualification   *string `json:"qualification,omitempty"`
	ExperienceYears *int    `json:"experienceYears,omitempty"`
	ConsultationFee *int    `json:"consultationFee,omitempty"`
	ClinicName      *string `json:"clinicName,omitempty"`
	ClinicAddress   *string `json:"clinicAddress,omitempty"`
}
