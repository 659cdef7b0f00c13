package prescriptions

import "time"

// Collection holds one document per prescription.
const Collection = "prescriptions"

// MinDiagnosisLength is the shortest accepted diagnosis text.
const MinDiagnosisLength = 10

// Medication is one line of a prescription. Every field is required.
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Duration  string `json:"duration"`
}

// Prescription is issued by the doctor of exactly one appointment.
type Prescription struct {
	PrescriptionID string       `json:"prescriptionId"`
	AppointmentID  string       `json:"appointmentId"`
	PatientID      string       `json:"patientId"`
	DoctorID       string       `json:"doctorId"`
	Diagnosis      string       `json:"diagnosis"`
	Medications    []Medication `json:"medications"`
	Notes          string       `json:"notes,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Draft is the doctor's input to Create.
type Draft struct {
	Diagnosis   string       `json:"diagnosis"`
	Medications []Medication `json:"medications"`
	Notes       string       `json:"notes,omitempty"`
}
