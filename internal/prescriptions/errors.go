package prescriptions

import "github.com/wolfman30/rams-care-platform/internal/failure"

var (
	ErrNotFound = failure.New(failure.KindNotFound, "prescription_not_found",
		"The prescription could not be found.")
	ErrAppointmentNotFound = failure.New(failure.KindNotFound, "appointment_not_found",
		"The appointment could not be found.")
	ErrNotAppointmentDoctor = failure.New(failure.KindUnauthorized, "not_appointment_doctor",
		"Only the doctor on this appointment can write its prescription.")
	ErrNotPatient = failure.New(failure.KindForbidden, "not_prescription_patient",
		"You do not have access to this prescription.")
	ErrAlreadyPrescribed = failure.New(failure.KindAlreadyExists, "already_prescribed",
		"A prescription already exists for this appointment.")
	ErrAppointmentCancelled = failure.New(failure.KindInvalidTransition, "appointment_cancelled",
		"A cancelled appointment cannot be prescribed.")
	ErrDiagnosisTooShort = failure.Validation("diagnosis_too_short",
		"Diagnosis must be at least 10 characters.")
	ErrNoMedications = failure.Validation("medications_required",
		"Add at least one medication.")
	ErrMedicationIncomplete = failure.Validation("medication_incomplete",
		"Every medication needs a name, dosage, frequency and duration.")
)

// ErrInProgress is returned to the losing side of two simultaneous submissions.
var ErrInProgress = failure.New(failure.KindAlreadyExists, "prescription_in_progress",
	"A prescription for this appointment is already being saved.")
