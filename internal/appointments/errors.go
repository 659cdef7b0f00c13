package appointments

import "github.com/wolfman30/rams-care-platform/internal/failure"

var (
	ErrNotFound = failure.New(failure.KindNotFound, "appointment_not_found",
		"The appointment could not be found.")
	ErrDoctorNotFound = failure.New(failure.KindNotFound, "doctor_not_found",
		"The selected doctor could not be found.")
	ErrBookForOther = failure.New(failure.KindUnauthorized, "patient_mismatch",
		"You can only book appointments for yourself.")
	ErrNotPatient = failure.New(failure.KindForbidden, "patient_profile_required",
		"Only patients can book appointments.")
	ErrNotParty = failure.New(failure.KindForbidden, "not_appointment_party",
		"You do not have access to this appointment.")
	ErrSlotInvalid = failure.Validation("slot_invalid",
		"Please choose one of the available time slots.")
	ErrDateInvalid = failure.Validation("date_invalid",
		"Please choose a valid appointment date.")
	ErrDateInPast = failure.Validation("date_in_past",
		"The appointment date cannot be in the past.")
	ErrConsultationType = failure.Validation("consultation_type_invalid",
		"Consultation type must be video or in_clinic.")
	ErrDoctorNotVerified = failure.Validation("doctor_not_verified",
		"This doctor is not accepting appointments yet.")
	ErrInClinicUnavailable = failure.Validation("in_clinic_unavailable",
		"This doctor only offers video consultations.")
	ErrNotCancellable = failure.New(failure.KindInvalidTransition, "appointment_not_confirmed",
		"Only confirmed appointments can be cancelled.")
)
