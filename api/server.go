/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request count/duration by route pattern
  5. CORS:       Cross-origin requests for the staff and customer apps

ROUTE GROUPS:
  /healthz                Liveness (public)
  /metrics                Prometheus (public)
  POST /api/customers     Signup (public)
  /api/scans              Staff
  /api/redemptions        Staff
  /api/customers/*        Staff
  /api/scenarios/*        Staff, demo data

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: RequireStaff
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/stampcard/metrics"
)

// RouterConfig carries the router's non-handler dependencies.
type RouterConfig struct {
	Auth        *Authenticator
	CORSOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		staff := r.With(cfg.Auth.RequireStaff)
		staff.Post("/scans", h.ProcessScan)
		staff.Post("/redemptions", h.RedeemReward)

		// Customer routes
		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.CreateCustomer)

			r.Group(func(r chi.Router) {
				r.Use(cfg.Auth.RequireStaff)
				r.Get("/", h.ListCustomers)
				r.Get("/{id}", h.GetCustomer)
				r.Get("/{id}/card", h.GetCard)
				r.Get("/{id}/events", h.ListEvents)
				r.Get("/{id}/notifications", h.ListNotifications)
				r.Post("/{id}/claims", h.ClaimReward)
			})
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Use(cfg.Auth.RequireStaff)
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
