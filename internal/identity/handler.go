package identity

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/rams-care-platform/internal/caller"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	"github.com/wolfman30/rams-care-platform/internal/http/respond"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// TokenIssuer signs caller tokens after a successful code verification.
type TokenIssuer interface {
	IssueToken(accountID string) (string, error)
}

// Handler exposes the Identity Directory over HTTP.
type Handler struct {
	directory *Directory
	tokens    TokenIssuer
	logger    *logging.Logger
}

// NewHandler creates a new identity handler
func NewHandler(directory *Directory, tokens TokenIssuer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{directory: directory, tokens: tokens, logger: logger}
}

var errSignInDisabled = failure.New(failure.KindUnavailable, "sign_in_disabled",
	"Sign-in is not available right now.")

type verifyRequest struct {
	SessionToken string `json:"sessionToken"`
	Code         string `json:"code"`
}

type verifyResponse struct {
	AccountID string `json:"accountId"`
	Token     string `json:"token"`
	Role      Role   `json:"role"`
}

// Verify handles POST /auth/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		respond.Error(w, r, h.logger, errSignInDisabled)
		return
	}
	var req verifyRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	accountID, err := h.directory.VerifyCode(r.Context(), req.SessionToken, req.Code)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	token, err := h.tokens.IssueToken(accountID)
	if err != nil {
		respond.Error(w, r, h.logger, failure.Unexpected(err))
		return
	}
	resolution := h.directory.ResolveRole(r.Context(), accountID)
	respond.OK(w, http.StatusOK, verifyResponse{AccountID: accountID, Token: token, Role: resolution.Role})
}

// Me handles GET /me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, ErrMissingAccount)
		return
	}
	respond.OK(w, http.StatusOK, h.directory.ResolveRole(r.Context(), accountID))
}

// UpdateMe handles PATCH /me
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, ErrMissingAccount)
		return
	}
	var update ProfileUpdate
	if err := respond.Decode(r, &update); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	resolution, err := h.directory.UpdateProfile(r.Context(), accountID, update)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, resolution)
}

// CreateProfile handles POST /profiles/{role}
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, ErrMissingAccount)
		return
	}
	role, ok := ParseRole(chi.URLParam(r, "role"))
	if !ok {
		respond.Error(w, r, h.logger, failure.New(failure.KindNotFound, "unknown_role", "Unknown registration type."))
		return
	}

	var (
		profile any
		err     error
	)
	ctx := r.Context()
	switch role {
	case RolePatient:
		var in PatientInput
		if err = respond.Decode(r, &in); err == nil {
			profile, err = h.directory.CreatePatientProfile(ctx, accountID, in)
		}
	case RoleDoctor:
		var in DoctorInput
		if err = respond.Decode(r, &in); err == nil {
			profile, err = h.directory.CreateDoctorProfile(ctx, accountID, in)
		}
	case RoleAmbulance:
		var in AmbulanceInput
		if err = respond.Decode(r, &in); err == nil {
			profile, err = h.directory.CreateAmbulanceProfile(ctx, accountID, in)
		}
	case RoleLab:
		var in LabInput
		if err = respond.Decode(r, &in); err == nil {
			profile, err = h.directory.CreateLabProfile(ctx, accountID, in)
		}
	case RolePharmacy:
		var in PharmacyInput
		if err = respond.Decode(r, &in); err == nil {
			profile, err = h.directory.CreatePharmacyProfile(ctx, accountID, in)
		}
	}
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusCreated, Resolution{Role: role, Profile: profile})
}

type availabilityRequest struct {
	IsAvailable *bool `json:"isAvailable"`
}

// SetAvailability handles PUT /me/availability
func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller.AccountIDFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, ErrMissingAccount)
		return
	}
	var req availabilityRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if req.IsAvailable == nil {
		respond.Error(w, r, h.logger, failure.Validation("missing_availability", "isAvailable is required."))
		return
	}
	profile, err := h.directory.SetAmbulanceAvailability(r.Context(), accountID, *req.IsAvailable)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, profile)
}

type ambulanceResponse struct {
	Found     bool              `json:"found"`
	Ambulance *AmbulanceProfile `json:"ambulance,omitempty"`
}

// AvailableAmbulance handles GET /ambulances/available
func (h *Handler) AvailableAmbulance(w http.ResponseWriter, r *http.Request) {
	ambulance, found, err := h.directory.FindAvailableAmbulance(r.Context())
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, ambulanceResponse{Found: found, Ambulance: ambulance})
}
