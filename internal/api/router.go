package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/automlpro/internal/api/middleware"
	"github.com/kiranshivaraju/automlpro/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth            *mw.Auth
	RateLimit       *mw.RateLimit // per token, authenticated routes
	PublicRateLimit *mw.RateLimit // per client IP, unauthenticated routes

	HealthHandler  http.Handler
	MetricsHandler http.Handler

	SignUpHandler  http.HandlerFunc
	SignInHandler  http.HandlerFunc
	MeHandler      http.HandlerFunc
	SignOutHandler http.HandlerFunc

	RegistrationEmailHandler http.HandlerFunc

	CreateJobHandler     http.HandlerFunc
	ListJobsHandler      http.HandlerFunc
	GetJobHandler        http.HandlerFunc
	GetJobResultHandler  http.HandlerFunc
	JobEventsHandler     http.HandlerFunc
	JobListEventsHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Method(http.MethodGet, "/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Public routes, limited per client address
	r.Group(func(r chi.Router) {
		if deps.PublicRateLimit != nil {
			r.Use(deps.PublicRateLimit.Limit)
		}

		r.Post("/api/v1/auth/signup", orNotImplementedFunc(deps.SignUpHandler))
		r.Post("/api/v1/auth/signin", orNotImplementedFunc(deps.SignInHandler))
		r.Post("/api/v1/emails/registration", orNotImplementedFunc(deps.RegistrationEmailHandler))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/auth/me", orNotImplementedFunc(deps.MeHandler))
		r.Post("/api/v1/auth/signout", orNotImplementedFunc(deps.SignOutHandler))

		r.Post("/api/v1/jobs", orNotImplementedFunc(deps.CreateJobHandler))
		r.Get("/api/v1/jobs", orNotImplementedFunc(deps.ListJobsHandler))
		r.Get("/api/v1/jobs/events", orNotImplementedFunc(deps.JobListEventsHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplementedFunc(deps.GetJobHandler))
		r.Get("/api/v1/jobs/{jobID}/result", orNotImplementedFunc(deps.GetJobResultHandler))
		r.Get("/api/v1/jobs/{jobID}/events", orNotImplementedFunc(deps.JobEventsHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.Handler) http.Handler {
	if h != nil {
		return h
	}
	return notImplemented()
}

func orNotImplementedFunc(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return notImplemented()
}

func notImplemented() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
