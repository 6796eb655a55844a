// Package shared holds helpers used by more than one feature.
package shared

import (
	"context"
	"net/http"

	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/auth"
	"github.com/dalemusser/eventhub/internal/app/system/tenancy"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sessions hands out the tenancy session of a signed-in user.
// Implemented by *tenancy.Manager.
type Sessions interface {
	Session(ctx context.Context, userID string) (*tenancy.Session, error)
}

// CurrentSession returns the loaded tenancy session of the request's user.
func CurrentSession(r *http.Request, sessions Sessions) (*tenancy.Session, error) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		return nil, apperr.ErrAuthenticationRequired
	}
	return sessions.Session(r.Context(), u.ID)
}

// ObjectIDParam parses the named chi URL parameter as an ObjectID.
func ObjectIDParam(r *http.Request, name string) (primitive.ObjectID, error) {
	raw := chi.URLParam(r, name)
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperr.Invalid("%s %q is not a valid id", name, raw)
	}
	return id, nil
}
