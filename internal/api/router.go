package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/intervue/internal/api/middleware"
	"github.com/kiranshivaraju/intervue/internal/api/response"
	"github.com/kiranshivaraju/intervue/internal/metrics"
	"github.com/kiranshivaraju/intervue/pkg/models"
	"go.uber.org/zap"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Logger    *zap.Logger

	HealthHandler       http.HandlerFunc
	MetricsHandler      http.Handler
	ScheduleHandler     http.HandlerFunc
	ListInterviews      http.HandlerFunc
	GetInterview        http.HandlerFunc
	SetStatusHandler    http.HandlerFunc
	SubmitFeedback      http.HandlerFunc
	MyFeedback          http.HandlerFunc
	SignalHandler       http.HandlerFunc
	WebRTCConfigHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger(deps.Logger))
	r.Use(mw.Recovery)
	r.Use(metrics.Middleware)

	// Public endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.With(deps.Auth.RequireRole(models.AccountAssociate)).
			Post("/api/v1/interviews", orNotImplemented(deps.ScheduleHandler))
		r.Get("/api/v1/interviews", orNotImplemented(deps.ListInterviews))
		r.Get("/api/v1/interviews/{id}", orNotImplemented(deps.GetInterview))
		r.Patch("/api/v1/interviews/{id}/status", orNotImplemented(deps.SetStatusHandler))
		r.Post("/api/v1/interviews/{id}/feedback", orNotImplemented(deps.SubmitFeedback))
		r.Get("/api/v1/interviews/{id}/signal", orNotImplemented(deps.SignalHandler))

		r.Get("/api/v1/feedback/me", orNotImplemented(deps.MyFeedback))
		r.Get("/api/v1/webrtc/config", orNotImplemented(deps.WebRTCConfigHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
