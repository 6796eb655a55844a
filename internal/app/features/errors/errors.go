// internal/app/features/errors/errors.go
package errors

import (
	"net/http"
	"runtime/debug"

	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
	"go.uber.org/zap"
)

// Handler answers requests that reach no route, and recovers panics, with
// the JSON error envelope.
type Handler struct {
	Log *zap.Logger
}

// NewHandler constructs an errors Handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{Log: logger}
}

// NotFound handles unknown routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	respond.Error(w, h.Log, apperr.NotFound("route", r.URL.Path))
}

// MethodNotAllowed handles a known route with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusMethodNotAllowed, map[string]any{
		"error": map[string]string{
			"code":     "method_not_allowed",
			"category": apperr.CategoryInvalid,
			"message":  r.Method + " is not supported on " + r.URL.Path,
		},
	})
}

// Recoverer turns a handler panic into a logged 503 envelope.
func (h *Handler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.Log.Error("handler panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()))
				respond.Error(w, nil, apperr.Transient("internal error", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
