package orders

import "time"

// Collection holds one document per order.
const Collection = "orders"

// Status of a pharmacy order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusCancelled
}

// Order asks a pharmacy to fill one of the patient's prescriptions.
type Order struct {
	OrderID        string    `json:"orderId"`
	PharmacyID     string    `json:"pharmacyId"`
	PrescriptionID string    `json:"prescriptionId"`
	PatientID      string    `json:"patientId"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// OrderRequest is the patient's input to Create.
type OrderRequest struct {
	PharmacyID     string `json:"pharmacyId"`
	PrescriptionID string `json:"prescriptionId"`
}

// PharmacyOrder is an order joined with the patient's contact details at
// read time, for the pharmacy dashboard.
type PharmacyOrder struct {
	Order
	PatientName   string `json:"patientName"`
	PatientMobile string `json:"patientMobile"`
}

// PatientOrder is an order joined with the pharmacy's name at read time.
type PatientOrder struct {
	Order
	PharmacyName string `json:"pharmacyName"`
}
