package identity

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/wolfman30/rams-care-platform/internal/failure"
)

var mobilePattern = regexp.MustCompile(`^\d{10}$`)

// checks runs field rules in order and keeps the first failure.
type checks struct {
	err *failure.Error
}

func (c *checks) fail(code, message string) {
	if c.err == nil {
		c.err = failure.Validation(code, message)
	}
}

func (c *checks) minLen(value string, n int, code, message string) {
	if utf8.RuneCountInString(strings.TrimSpace(value)) < n {
		c.fail(code, message)
	}
}

func (c *checks) mobile(value string) {
	if !mobilePattern.MatchString(value) {
		c.fail("invalid_mobile", "Please enter a valid 10-digit mobile number.")
	}
}

func (c *checks) email(value string, required bool) {
	if value == "" {
		if required {
			c.fail("invalid_email", "Please enter a valid email address.")
		}
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		c.fail("invalid_email", "Please enter a valid email address.")
	}
}

func (c *checks) result() error {
	if c.err == nil {
		return nil
	}
	return c.err
}

func validatePatient(in PatientInput) error {
	var c checks
	c.minLen(in.Name, 2, "invalid_name", "Name must be at least 2 characters.")
	c.mobile(in.Mobile)
	c.email(in.Email, false)
	if in.Age < 1 || in.Age > 120 {
		c.fail("invalid_age", "Age must be between 1 and 120.")
	}
	switch in.Gender {
	case "male", "female", "other":
	default:
		c.fail("invalid_gender", "Gender must be male, female or other.")
	}
	c.minLen(in.City, 2, "invalid_city", "City must be at least 2 characters.")
	return c.result()
}

func validateDoctor(in DoctorInput) error {
	var c checks
	c.minLen(in.Name, 2, "invalid_name", "Name must be at least 2 characters.")
	c.mobile(in.Mobile)
	c.email(in.Email, true)
	switch in.ProfileType {
	case ProfileTypePractitioner:
	case ProfileTypeClinicOwner:
		c.minLen(in.ClinicName, 2, "invalid_clinic_name", "Clinic name is required for clinic owners.")
		c.minLen(in.ClinicAddress, 10, "invalid_clinic_address", "Please enter a complete clinic address.")
	default:
		c.fail("invalid_profile_type", "Profile type must be practitioner or clinic_owner.")
	}
	c.minLen(in.Specialization, 1, "invalid_specialization", "Please select a specialty.")
	c.minLen(in.Qualification, 2, "invalid_qualification", "Qualification is required.")
	c.minLen(in.RegistrationNumber, 5, "invalid_registration_number", "A valid registration number is required.")
	if in.ExperienceYears < 0 {
		c.fail("invalid_experience", "Experience cannot be negative.")
	}
	if in.ConsultationFee < 0 {
		c.fail("invalid_fee", "Fee cannot be negative.")
	}
	c.minLen(in.City, 2, "invalid_city", "City must be at least 2 characters.")
	return c.result()
}

func validateAmbulance(in AmbulanceInput) error {
	var c checks
	c.minLen(in.DriverName, 2, "invalid_driver_name", "Driver's name must be at least 2 characters.")
	c.minLen(in.VehicleNumber, 4, "invalid_vehicle_number", "Please enter a valid vehicle number.")
	c.mobile(in.Mobile)
	c.minLen(in.City, 2, "invalid_city", "City must be at least 2 characters.")
	return c.result()
}

func validateLab(in LabInput) error {
	var c checks
	c.minLen(in.LabName, 2, "invalid_lab_name", "Lab name must be at least 2 characters.")
	c.mobile(in.Mobile)
	c.email(in.Email, true)
	c.minLen(in.Address, 10, "invalid_address", "Please enter a complete address.")
	c.minLen(in.City, 2, "invalid_city", "City must be at least 2 characters.")
	c.minLen(in.ServicesOffered, 10, "invalid_services", "Please list at least one service offered.")
	return c.result()
}

func validatePharmacy(in PharmacyInput) error {
	var c checks
	c.minLen(in.PharmacyName, 2, "invalid_pharmacy_name", "Pharmacy name must be at least 2 characters.")
	c.mobile(in.Mobile)
	c.email(in.Email, true)
	c.minLen(in.Address, 10, "invalid_address", "Please enter a complete address.")
	c.minLen(in.City, 2, "invalid_city", "City must be at least 2 characters.")
	c.minLen(in.LicenseNumber, 5, "invalid_license_number", "A valid license number is required.")
	return c.result()
}

func validateUpdate(role Role, u ProfileUpdate) error {
	var c checks
	if u.Name != nil {
		c.minLen(*u.Name, 2, "invalid_name", "Name must be at least 2 characters.")
	}
	if u.Email != nil {
		c.email(*u.Email, role == RoleDoctor)
	}
	if u.City != nil {
		c.minLen(*u.City, 2, "invalid_city", "City must be at least 2 characters.")
	}
	patientOnly := u.Age != nil || u.Gender != nil || u.BloodGroup != nil
	doctorOnly := u.Specialization != nil || u.Qualification != nil || u.ExperienceYears != nil ||
		u.ConsultationFee != nil || u.ClinicName != nil || u.ClinicAddress != nil
	switch role {
	case RolePatient:
		if doctorOnly {
			c.fail("field_not_editable", "Only doctor profiles have practice details.")
		}
		if u.Age != nil && (*u.Age < 1 || *u.Age > 120) {
			c.fail("invalid_age", "Age must be between 1 and 120.")
		}
		if u.Gender != nil {
			switch *u.Gender {
			case "male", "female", "other":
			default:
				c.fail("invalid_gender", "Gender must be male, female or other.")
			}
		}
	case RoleDoctor:
		if patientOnly {
			c.fail("field_not_editable", "Only patient profiles have personal health details.")
		}
		if u.Specialization != nil {
			c.minLen(*u.Specialization, 1, "invalid_specialization", "Please select a specialty.")
		}
		if u.Qualification != nil {
			c.minLen(*u.Qualification, 2, "invalid_qualification", "Qualification is required.")
		}
		if u.ExperienceYears != nil && *u.ExperienceYears < 0 {
			c.fail("invalid_experience", "Experience cannot be negative.")
		}
		if u.ConsultationFee != nil && *u.ConsultationFee < 0 {
			c.fail("invalid_fee", "Fee cannot be negative.")
		}
	}
	return c.result()
}

// fields converts an update into the top-level document fields it sets.
func (u ProfileUpdate) fields() map[string]any {
	set := map[string]any{}
	put := func(key string, v any, ok bool) {
		if ok {
			set[key] = v
		}
	}
	if u.Name != nil {
		set["name"] = strings.TrimSpace(*u.Name)
	}
	if u.Email != nil {
		set["email"] = *u.Email
	}
	if u.City != nil {
		set["city"] = strings.TrimSpace(*u.City)
	}
	put("age", deref(u.Age), u.Age != nil)
	put("gender", derefString(u.Gender), u.Gender != nil)
	put("bloodGroup", derefString(u.BloodGroup), u.BloodGroup != nil)
	put("specialization", derefString(u.Specialization), u.Specialization != nil)
	put("qualification", derefString(u.Qualification), u.Qualification != nil)
	put("experienceYears", deref(u.ExperienceYears), u.ExperienceYears != nil)
	put("consultationFee", deref(u.ConsultationFee), u.ConsultationFee != nil)
	put("clinicName", derefString(u.ClinicName), u.ClinicName != nil)
	put("clinicAddress", derefString(u.ClinicAddress), u.ClinicAddress != nil)
	return set
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
