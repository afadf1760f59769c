package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/bookshelf/internal/auth"
	"github.com/utafrali/bookshelf/internal/service"
	"github.com/utafrali/bookshelf/pkg/health"
	"github.com/utafrali/bookshelf/pkg/middleware"
)

// Deps are the collaborators the router mounts.
type Deps struct {
	Users      *service.UserService
	Auth       *service.AuthService
	Authorizer *auth.Authorizer
	Health     *health.Handler
	// Metrics and Gatherer are optional; without them no request metrics are
	// recorded and /metrics is not served.
	Metrics  *middleware.HTTPMetrics
	Gatherer prometheus.Gatherer
	CORS     middleware.CORSConfig
	// PprofCIDRs gates /debug/pprof; empty leaves it unmounted.
	PprofCIDRs []string
	Logger     *slog.Logger
}

// NewRouter creates a chi router with every route registered.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Tracing)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.RequestLogging(d.Logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(middleware.CORS(d.CORS))

	// Health check endpoints
	r.Get("/health/live", d.Health.LivenessHandler())
	r.Get("/health/ready", d.Health.ReadinessHandler())
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	middleware.RegisterPprof(r, d.PprofCIDRs, d.Logger)

	authHandler := NewAuthHandler(d.Auth, d.Logger)
	userHandler := NewUserHandler(d.Users, d.Logger)
	requireAuth := d.Authorizer.Middleware()

	r.Route("/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
	})

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", userHandler.Register)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", userHandler.Me)
			r.Put("/me/password", userHandler.ChangePassword)

			r.Get("/", userHandler.List)
			r.Put("/{userID}/role", userHandler.UpdateRole)
			r.Delete("/{userID}", userHandler.Delete)
		})
	})

	return r
}
