package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/rams-care-platform/internal/appointments"
	"github.com/wolfman30/rams-care-platform/internal/directory"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	httpmiddleware "github.com/wolfman30/rams-care-platform/internal/http/middleware"
	"github.com/wolfman30/rams-care-platform/internal/http/respond"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/internal/orders"
	"github.com/wolfman30/rams-care-platform/internal/prescriptions"
	"github.com/wolfman30/rams-care-platform/internal/triage"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Auth               *httpmiddleware.CallerJWT
	Identity           *identity.Handler
	Directory          *directory.Handler
	Appointments       *appointments.Handler
	Prescriptions      *prescriptions.Handler
	Orders             *orders.Handler
	Triage             *triage.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per client IP limits on the AI endpoints. Zero disables limiting.
	AIRateLimitRPS   float64
	AIRateLimitBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusNotFound, notFound)
	})

	aiLimit := func(next http.Handler) http.Handler { return next }
	if cfg.AIRateLimitRPS > 0 {
		aiLimit = httpmiddleware.RateLimit(cfg.AIRateLimitRPS, cfg.AIRateLimitBurst)
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Identity != nil {
			public.Post("/auth/verify", cfg.Identity.Verify)
			public.Get("/ambulances/available", cfg.Identity.AvailableAmbulance)
		}
		if cfg.Directory != nil {
			public.Get("/specialties", cfg.Directory.Specialties)
			public.Get("/doctors", cfg.Directory.SearchDoctors)
			public.Get("/doctors/{doctorID}", cfg.Directory.GetDoctor)
		}
		if cfg.Triage != nil {
			public.With(aiLimit).Post("/triage/specialty", cfg.Triage.RecommendSpecialty)
		}
	})

	if cfg.Auth == nil {
		return r
	}

	// Signed-in callers
	r.Group(func(authed chi.Router) {
		authed.Use(cfg.Auth.Authenticate)

		if cfg.Identity != nil {
			authed.Get("/me", cfg.Identity.Me)
			authed.Patch("/me", cfg.Identity.UpdateMe)
			authed.Put("/me/availability", cfg.Identity.SetAvailability)
			authed.Post("/profiles/{role}", cfg.Identity.CreateProfile)
		}
		if cfg.Directory != nil {
			authed.Get("/pharmacies", cfg.Directory.ListPharmacies)
		}
		if cfg.Triage != nil {
			authed.With(aiLimit).Post("/triage/medications", cfg.Triage.SuggestMedications)
		}

		authed.Route("/appointments", func(ar chi.Router) {
			if cfg.Appointments != nil {
				ar.Post("/", cfg.Appointments.Create)
				ar.Get("/", cfg.Appointments.List)
				ar.Get("/{appointmentID}", cfg.Appointments.Get)
				ar.Post("/{appointmentID}/cancel", cfg.Appointments.Cancel)
			}
			if cfg.Prescriptions != nil {
				ar.Post("/{appointmentID}/prescription", cfg.Prescriptions.Create)
				ar.Get("/{appointmentID}/prescription", cfg.Prescriptions.ForAppointment)
			}
		})

		if cfg.Prescriptions != nil {
			authed.Get("/prescriptions", cfg.Prescriptions.List)
			authed.Get("/prescriptions/{prescriptionID}", cfg.Prescriptions.Get)
		}

		if cfg.Orders != nil {
			authed.Route("/orders", func(or chi.Router) {
				or.Post("/", cfg.Orders.Create)
				or.Get("/", cfg.Orders.List)
				or.Put("/{orderID}/status", cfg.Orders.UpdateStatus)
				or.Get("/{orderID}/prescription", cfg.Orders.Prescription)
			})
		}
	})

	return r
}

var notFound = failure.Result[struct{}]{Error: "Not found.", Code: "route_not_found"}

func health(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
