// internal/app/features/authgoogle/routes.go
package authgoogle

import "github.com/go-chi/chi/v5"

// Routes mounts the sign-in endpoints under /auth/google. They are public;
// bootstrap wraps the mount with the per-IP sign-in limiter.
//
//	GET /          redirect to Google with a stored single-use state
//	GET /callback  exchange the code, upsert the User, set the session cookie
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeLogin)
	r.Get("/callback", h.ServeCallback)
	return r
}
