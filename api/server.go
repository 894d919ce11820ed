/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the mobile/web clients
  5. Auth:       Bearer token (HS256) when a secret is configured

ROUTE GROUPS:
  /healthz                      Liveness
  /api/employees/{id}/events    Clock events (employee or admin)
  /api/employees/{id}/accounting Hours accounting (employee or admin)
  /api/employees/*              Profiles (admin)
  /api/tenants/{id}/settings    Tenant policy (admin)
  /api/holidays/*               Holiday calendar (admin)
  /api/scenarios/*              Demo scenarios (admin)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures cross-cutting middleware.
type RouterOptions struct {
	CORSOrigins []string
	JWTSecret   string // empty disables authentication
	LogRequests bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if opts.LogRequests {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireToken(opts.JWTSecret))

		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.With(RequireAdmin).Get("/", h.ListEmployees)
			r.With(RequireAdmin).Post("/", h.CreateEmployee)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(RequireSelf)
				r.Get("/", h.GetEmployee)
				r.Post("/events", h.SubmitEvent)
				r.Get("/events", h.ListEvents)
				r.Get("/accounting", h.GetAccounting)

				r.Group(func(r chi.Router) {
					r.Use(RequireAdmin)
					r.Put("/schedule", h.UpdateSchedule)
					r.Put("/zones", h.UpdateZones)
					r.Put("/photo", h.EnrollPhoto)
					r.Post("/absences", h.CreateAbsence)
				})
			})
		})

		// Tenant routes
		r.Route("/tenants/{id}", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/settings", h.GetTenantSettings)
			r.Put("/settings", h.PutTenantSettings)
		})

		// Holiday routes
		r.Route("/holidays", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
