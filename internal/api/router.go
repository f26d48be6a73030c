// Package api builds the HTTP router. Handlers and middleware come in as
// dependencies so tests can assemble a router from stubs.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/mbreslin/voicesync/internal/api/middleware"
	"github.com/mbreslin/voicesync/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	UploadRecording    http.HandlerFunc
	ListRecordings     http.HandlerFunc
	GetRecording       http.HandlerFunc
	ReprocessRecording http.HandlerFunc

	CreateMapping     http.HandlerFunc
	ListMappings      http.HandlerFunc
	GetMapping        http.HandlerFunc
	UpdateMapping     http.HandlerFunc
	DeactivateMapping http.HandlerFunc

	CreateTenant http.HandlerFunc
	ListTenants  http.HandlerFunc
	GetTenant    http.HandlerFunc
	UpdateTenant http.HandlerFunc
	CreateKey    http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/recordings/upload", orNotImplemented(deps.UploadRecording))
		r.Get("/api/v1/recordings", orNotImplemented(deps.ListRecordings))
		r.Get("/api/v1/recordings/{recordingID}", orNotImplemented(deps.GetRecording))
		r.Post("/api/v1/recordings/{recordingID}/reprocess", orNotImplemented(deps.ReprocessRecording))

		r.Post("/api/v1/schema-mappings", orNotImplemented(deps.CreateMapping))
		r.Get("/api/v1/schema-mappings", orNotImplemented(deps.ListMappings))
		r.Get("/api/v1/schema-mappings/{mappingID}", orNotImplemented(deps.GetMapping))
		r.Put("/api/v1/schema-mappings/{mappingID}", orNotImplemented(deps.UpdateMapping))
		r.Delete("/api/v1/schema-mappings/{mappingID}", orNotImplemented(deps.DeactivateMapping))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/tenants", orNotImplemented(deps.CreateTenant))
			r.Get("/api/v1/admin/tenants", orNotImplemented(deps.ListTenants))
			r.Get("/api/v1/admin/tenants/{tenantID}", orNotImplemented(deps.GetTenant))
			r.Put("/api/v1/admin/tenants/{tenantID}", orNotImplemented(deps.UpdateTenant))
			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKey))
		})
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
