package events

import "time"

const (
	TypeAppointmentBooked    = "appointment.booked.v1"
	TypeAppointmentCancelled = "appointment.cancelled.v1"
	TypePrescriptionCreated  = "prescription.created.v1"
	TypeOrderPlaced          = "order.placed.v1"
	TypeOrderStatusChanged   = "order.status_changed.v1"
)

type AppointmentBookedV1 struct {
	AppointmentID    string    `json:"appointment_id"`
	PatientID        string    `json:"patient_id"`
	DoctorID         string    `json:"doctor_id"`
	DoctorName       string    `json:"doctor_name"`
	AppointmentDate  string    `json:"appointment_date"`
	TimeSlot         string    `json:"time_slot"`
	ConsultationType string    `json:"consultation_type"`
	BookedAt         time.Time `json:"booked_at"`
}

func (AppointmentBookedV1) EventType() string { return TypeAppointmentBooked }

type AppointmentCancelledV1 struct {
	AppointmentID   string    `json:"appointment_id"`
	PatientID       string    `json:"patient_id"`
	DoctorID        string    `json:"doctor_id"`
	CancelledBy     string    `json:"cancelled_by"`
	AppointmentDate string    `json:"appointment_date"`
	TimeSlot        string    `json:"time_slot"`
	CancelledAt     time.Time `json:"cancelled_at"`
}

func (AppointmentCancelledV1) EventType() string { return TypeAppointmentCancelled }

type PrescriptionCreatedV1 struct {
	PrescriptionID string    `json:"prescription_id"`
	AppointmentID  string    `json:"appointment_id"`
	PatientID      string    `json:"patient_id"`
	DoctorID       string    `json:"doctor_id"`
	Medications    int       `json:"medications"`
	CreatedAt      time.Time `json:"created_at"`
}

func (PrescriptionCreatedV1) EventType() string { return TypePrescriptionCreated }

type OrderPlacedV1 struct {
	OrderID        string    `json:"order_id"`
	PrescriptionID string    `json:"prescription_id"`
	PatientID      string    `json:"patient_id"`
	PharmacyID     string    `json:"pharmacy_id"`
	PlacedAt       time.Time `json:"placed_at"`
}

func (OrderPlacedV1) EventType() string { return TypeOrderPlaced }

type OrderStatusChangedV1 struct {
	OrderID    string    `json:"order_id"`
	PatientID  string    `json:"patient_id"`
	PharmacyID string    `json:"pharmacy_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ChangedAt  time.Time `json:"changed_at"`
}

func (OrderStatusChangedV1) EventType() string { return TypeOrderStatusChanged }
