package appointments

import "time"

// Collection holds one document per appointment.
const Collection = "appointments"

// Status of an appointment.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// ConsultationType is how the consultation takes place.
type ConsultationType string

const (
	ConsultationVideo    ConsultationType = "video"
	ConsultationInClinic ConsultationType = "in_clinic"
)

// DateLayout is the wire format of AppointmentDate.
const DateLayout = "2006-01-02"

// TimeSlots is the fixed daily slot enumeration.
var TimeSlots = []string{
	"10:00 AM",
	"11:00 AM",
	"12:00 PM",
	"02:00 PM",
	"03:00 PM",
	"04:00 PM",
}

// Appointment is a booked consultation. DoctorName is a snapshot taken at
// booking time and is not refreshed afterwards.
type Appointment struct {
	AppointmentID       string           `json:"appointmentId"`
	PatientID           string           `json:"patientId"`
	DoctorID            string           `json:"doctorId"`
	DoctorName          string           `json:"doctorName"`
	AppointmentDate     string           `json:"appointmentDate"`
	AppointmentTimeSlot string           `json:"appointmentTimeSlot"`
	ConsultationType    ConsultationType `json:"consultationType"`
	Status              Status           `json:"status"`
	CreatedAt           time.Time        `json:"createdAt"`
	CancelledAt         *time.Time       `json:"cancelledAt,omitempty"`
	CancelledBy         string           `json:"cancelledBy,omitempty"`
}

// IsParty reports whether accountID is the patient or the doctor.
func (a *Appointment) IsParty(accountID string) bool {
	return accountID != "" && (a.PatientID == accountID || a.DoctorID == accountID)
}

// Listing is an appointment joined with the counterpart's current display
// name at read time.
type Listing struct {
	Appointment
	CounterpartName string `json:"counterpartName"`
}

// BookingRequest is the input to Create. PatientID defaults to the caller.
type BookingRequest struct {
	PatientID        string           `json:"patientId,omitempty"`
	DoctorID         string           `json:"doctorId"`
	Date             string           `json:"appointmentDate"`
	TimeSlot         string           `json:"appointmentTimeSlot"`
	ConsultationType ConsultationType `json:"consultationType"`
}
