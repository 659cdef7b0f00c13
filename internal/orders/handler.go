package orders

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/rams-care-platform/internal/caller"
	"github.com/wolfman30/rams-care-platform/internal/http/respond"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// RoleResolver tells the handler which order list a caller should see.
type RoleResolver interface {
	ResolveRole(ctx context.Context, accountID string) identity.Resolution
}

// Handler exposes the Order Ledger over HTTP.
type Handler struct {
	ledger *Ledger
	roles  RoleResolver
	logger *logging.Logger
}

// NewHandler creates an orders handler.
func NewHandler(ledger *Ledger, roles RoleResolver, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{ledger: ledger, roles: roles, logger: logger}
}

// Create handles POST /orders
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrMissingAccount)
		return
	}
	var req OrderRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	order, err := h.ledger.Create(r.Context(), accountID, req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusCreated, order)
}

// List handles GET /orders. Pharmacies see their incoming orders, everyone
// else sees the orders they placed.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrMissingAccount)
		return
	}
	if h.roles.ResolveRole(r.Context(), accountID).Role == identity.RolePharmacy {
		list, err := h.ledger.ListForPharmacy(r.Context(), accountID)
		if err != nil {
			respond.Error(w, r, h.logger, err)
			return
		}
		respond.OK(w, http.StatusOK, list)
		return
	}
	list, err := h.ledger.ListForPatient(r.Context(), accountID)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, list)
}

type statusRequest struct {
	Status Status `json:"status"`
}

// UpdateStatus handles PUT /orders/{orderID}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrMissingAccount)
		return
	}
	var req statusRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	order, err := h.ledger.UpdateStatus(r.Context(), accountID, chi.URLParam(r, "orderID"), req.Status)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, order)
}

// Prescription handles GET /orders/{orderID}/prescription
func (h *Handler) Prescription(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrMissingAccount)
		return
	}
	rx, err := h.ledger.PrescriptionForOrder(r.Context(), accountID, chi.URLParam(r, "orderID"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, rx)
}
