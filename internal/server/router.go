// Package server assembles the HTTP router.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Stewz00/apisecure/internal/handler"
	"github.com/Stewz00/apisecure/internal/metrics"
	"github.com/Stewz00/apisecure/internal/middleware"
	"github.com/Stewz00/apisecure/internal/model"
	"github.com/Stewz00/apisecure/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Global per-IP throttle applied to every route.
const (
	ThrottleRequests = 100
	ThrottleWindow   = time.Minute
)

// Deps are the collaborators of the router.
type Deps struct {
	Accounts *service.AccountService
	Verifier middleware.Verifier
	Users    middleware.UserFinder
	Logger   logrus.FieldLogger
	Metrics  *metrics.Metrics
	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
	// Health is probed by /health; nil always reports healthy.
	Health  func(ctx context.Context) error
	Version string
}

// NewRouter creates the router with the global middleware and all routes.
func NewRouter(deps Deps) http.Handler {
	authHandler := handler.NewAuthHandler(deps.Accounts, deps.Version, deps.Logger)
	accountHandler := handler.NewAccountHandler(deps.Accounts, deps.Logger)
	gate := middleware.AuthGate(deps.Verifier, deps.Users, deps.Logger, deps.Metrics)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RateLimiter(ThrottleRequests, ThrottleWindow))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(r.Context()); err != nil {
				deps.Logger.WithError(err).Error("health check failed")
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/public", func(r chi.Router) {
		r.Get("/ping", authHandler.Ping)
		r.Post("/login", authHandler.Login)
		r.Post("/register", authHandler.Register)
		r.Post("/recovery", authHandler.Recovery)
		r.Post("/reset-password/{token}", authHandler.ResetPassword)
	})

	r.Route("/user", func(r chi.Router) {
		r.Use(gate)
		accountRoutes(r, accountHandler)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(gate)
		r.Use(middleware.RequireRole(model.RoleAdmin))
		accountRoutes(r, accountHandler)
	})

	return r
}

func accountRoutes(r chi.Router, h *handler.AccountHandler) {
	r.Get("/me", h.Me)
	r.Put("/profile", h.UpdateProfile)
	r.Post("/change-password", h.ChangePassword)
	r.Get("/login-history", h.LoginHistory)
}
