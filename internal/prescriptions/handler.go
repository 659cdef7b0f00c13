package prescriptions

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/rams-care-platform/internal/caller"
	"github.com/wolfman30/rams-care-platform/internal/http/respond"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// Handler exposes the Prescription Ledger over HTTP.
type Handler struct {
	ledger *Ledger
	logger *logging.Logger
}

// NewHandler creates a prescriptions handler.
func NewHandler(ledger *Ledger, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{ledger: ledger, logger: logger}
}

// Create handles POST /appointments/{appointmentID}/prescription
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrMissingAccount)
		return
	}
	var draft Draft
	if err := respond.Decode(r, &draft); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	rx, err := h.ledger.Create(r.Context(), accountID, chi.URLParam(r, "appointmentID"), draft)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusCreated, rx)
}

type appointmentPrescription struct {
	Found        bool          `json:"found"`
	Prescription *Prescription `json:"prescription,omitempty"`
}

// ForAppointment handles GET /appointments/{appointmentID}/prescription
func (h *Handler) ForAppointment(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrMissingAccount)
		return
	}
	rx, found, err := h.ledger.ForAppointment(r.Context(), accountID, chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, appointmentPrescription{Found: found, Prescription: rx})
}

// List handles GET /prescriptions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrMissingAccount)
		return
	}
	list, err := h.ledger.ListForPatient(r.Context(), accountID)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, list)
}

// Get handles GET /prescriptions/{prescriptionID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrMissingAccount)
		return
	}
	rx, err := h.ledger.Get(r.Context(), accountID, chi.URLParam(r, "prescriptionID"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, rx)
}
