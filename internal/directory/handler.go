package directory

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/rams-care-platform/internal/http/respond"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// Handler exposes directory queries over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a directory handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// SearchDoctors handles GET /doctors?q=&city=&specialty=
func (h *Handler) SearchDoctors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doctors, err := h.service.SearchDoctors(r.Context(), DoctorFilter{
		Query:     q.Get("q"),
		City:      q.Get("city"),
		Specialty: q.Get("specialty"),
	})
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, doctors)
}

// GetDoctor handles GET /doctors/{doctorID}
func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	doctor, err := h.service.GetDoctor(r.Context(), chi.URLParam(r, "doctorID"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, doctor)
}

// Specialties handles GET /specialties
func (h *Handler) Specialties(w http.ResponseWriter, r *http.Request) {
	respond.OK(w, http.StatusOK, Specialties)
}

// ListPharmacies handles GET /pharmacies
func (h *Handler) ListPharmacies(w http.ResponseWriter, r *http.Request) {
	pharmacies, err := h.service.ListPharmacies(r.Context())
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.OK(w, http.StatusOK, pharmacies)
}
