package orders

import "github.com/wolfman30/rams-care-platform/internal/failure"

var (
	ErrNotFound = failure.New(failure.KindNotFound, "order_not_found",
		"The order could not be found.")
	ErrPrescriptionNotFound = failure.New(failure.KindNotFound, "prescription_not_found",
		"The prescription could not be found.")
	ErrPharmacyNotFound = failure.New(failure.KindNotFound, "pharmacy_not_found",
		"The selected pharmacy could not be found.")
	ErrNotPrescriptionPatient = failure.New(failure.KindUnauthorized, "not_prescription_patient",
		"You can only order medicines for your own prescriptions.")
	ErrNotOrderPharmacy = failure.New(failure.KindUnauthorized, "not_order_pharmacy",
		"Only the pharmacy on this order can change it.")
	ErrUnsupportedStatus = failure.New(failure.KindInvalidTransition, "unsupported_status",
		"Orders can only be marked fulfilled or cancelled.")
	ErrNotPending = failure.New(failure.KindInvalidTransition, "order_not_pending",
		"This order has already been completed.")
	ErrOrderFailed = failure.New(failure.KindUnexpected, "order_failed",
		"Could not place order, please try again.")
)
