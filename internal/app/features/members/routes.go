// internal/app/features/members/routes.go
package members

import (
	"github.com/dalemusser/eventhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// OrgRoutes is mounted at "/organizations/{id}/members".
func OrgRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Get("/", h.ServeOrgMembers)
	r.Put("/{userID}", h.HandleAssign)
	r.Delete("/{userID}", h.HandleRemove)

	return r
}

// EventRoutes is mounted at "/events/{id}/members".
func EventRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Get("/", h.ServeRoster)
	r.Post("/", h.HandleAdd)

	return r
}

// LeadRoutes is mounted at "/leads".
func LeadRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Patch("/{id}/status", h.HandleLeadStatus)

	return r
}
