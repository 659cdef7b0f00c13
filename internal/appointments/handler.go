package appointments

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/rams-care-platform/internal/caller"
	"github.com/wolfman30/rams-care-platform/internal/http/respond"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// RoleResolver tells the handler which list a caller should see.
type RoleResolver interface {
	ResolveRole(ctx context.Context, accountID string) identity.Resolution
}

// Handler exposes the Appointment Ledger over HTTP.
type Handler struct {
	ledger *Ledger
	roles  RoleResolver
	logger *logging.Logger
}

// NewHandler creates an appointments handler.
func NewHandler(ledger *Ledger, roles RoleResolver, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{ledger: ledger, roles: roles, logger: logger}
}

// Create handles POST /appointments
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrMissingAccount)
		return
	}
	var req BookingRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	appt, err := h.ledger.Create(r.Context(), accountID, req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusCreated, appt)
}

// List handles GET /appointments. Doctors see their schedule, everyone else
// sees the appointments they booked.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrMissingAccount)
		return
	}
	var (
		list []Listing
		err  error
	)
	if h.roles.ResolveRole(r.Context(), accountID).Role == identity.RoleDoctor {
		list, err = h.ledger.ListForDoctor(r.Context(), accountID)
	} else {
		list, err = h.ledger.ListForPatient(r.Context(), accountID)
	}
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, list)
}

// Get handles GET /appointments/{appointmentID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrMissingAccount)
		return
	}
	appt, err := h.ledger.Get(r.Context(), accountID, chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, appt)
}

// Cancel handles POST /appointments/{appointmentID}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrMissingAccount)
		return
	}
	appt, err := h.ledger.Cancel(r.Context(), accountID, chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, appt)
}
