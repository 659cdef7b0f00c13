package triage

import (
	"context"
	"net/http"

	"github.com/wolfman30/rams-care-platform/internal/caller"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	"github.com/wolfman30/rams-care-platform/internal/http/respond"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/internal/prescriptions"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// ErrNotDoctor is returned when a non-doctor asks for medication suggestions.
var ErrNotDoctor = failure.New(failure.KindForbidden, "doctor_only",
	"Only doctors can request medication suggestions.")

// RoleResolver gates the doctor-only endpoint.
type RoleResolver interface {
	ResolveRole(ctx context.Context, accountID string) identity.Resolution
}

// Handler exposes the AI collaborators over HTTP.
type Handler struct {
	symptoms SymptomChecker
	meds     PrescriptionAssistant
	roles    RoleResolver
	logger   *logging.Logger
}

// NewHandler creates a triage handler.
func NewHandler(symptoms SymptomChecker, meds PrescriptionAssistant, roles RoleResolver, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{symptoms: symptoms, meds: meds, roles: roles, logger: logger}
}

type specialtyRequest struct {
	Symptoms string `json:"symptoms"`
}

// RecommendSpecialty handles POST /triage/specialty
func (h *Handler) RecommendSpecialty(w http.ResponseWriter, r *http.Request) {
	var req specialtyRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	rec, err := h.symptoms.RecommendSpecialty(r.Context(), req.Symptoms)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, rec)
}

type medicationsRequest struct {
	Diagnosis string `json:"diagnosis"`
}

type medicationsResponse struct {
	Medications []prescriptions.Medication `json:"medications"`
}

// SuggestMedications handles POST /triage/medications
func (h *Handler) SuggestMedications(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrMissingAccount)
		return
	}
	if h.roles.ResolveRole(r.Context(), accountID).Role != identity.RoleDoctor {
		respond.Error(w, r, h.logger, ErrNotDoctor)
		return
	}
	var req medicationsRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	meds, err := h.meds.SuggestMedications(r.Context(), req.Diagnosis)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, medicationsResponse{Medications: meds})
}
