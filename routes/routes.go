package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/llm-failover-router/app"
	"github.com/upb/llm-failover-router/handlers"
	"github.com/upb/llm-failover-router/middleware"
	"github.com/upb/llm-failover-router/utils"
)

// adminTimeout bounds admin and health requests. The chat endpoint is
// bounded by the per-provider timeout instead.
const adminTimeout = 30 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	logger := deps.Logger

	// Core middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Observe(logger, deps.Metrics))
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// set before mounting so sub-routers inherit them
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	health := handlers.NewHealthHandler(deps.DB.DB, deps.Catalog, deps.Exclusion, logger)
	chat := handlers.NewChatHandler(deps.Router, logger)
	admin := handlers.NewAdminHandler(deps.Auth, deps.Config.Admin.CookieSecure, logger)
	keys := handlers.NewKeysHandler(deps.Keys, logger)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(adminTimeout))
		r.Get("/healthz", health.HandleLiveness)
		r.Get("/readyz", health.HandleReadiness)
	})

	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if deps.Limiter != nil {
				r.Use(middleware.NewRateLimitMiddleware(deps.Limiter, logger).Limit)
			}
			r.Post("/chat", chat.HandleChat)
		})

		r.With(chimiddleware.Timeout(adminTimeout)).Get("/health", health.HandleProviders)

		r.Route("/admin", func(r chi.Router) {
			r.Use(chimiddleware.Timeout(adminTimeout))

			r.Post("/login", admin.HandleLogin)
			r.Post("/logout", admin.HandleLogout)

			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireAdmin)

				r.Get("/session", admin.HandleSession)

				r.Route("/keys", func(r chi.Router) {
					r.Get("/", keys.HandleList)
					r.Post("/", keys.HandleCreate)
					r.Patch("/{id}", keys.HandleUpdate)
					r.Delete("/{id}", keys.HandleDelete)
					r.Get("/{id}/logs", keys.HandleKeyLogs)
				})
				r.Get("/logs", keys.HandleRecentLogs)
			})
		})
	})

	return r
}
