// internal/app/features/organizations/edit.go
package organizations

import (
	"net/http"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
)

// HandleUpdate handles PATCH /organizations/{id}. The body is a JSON merge
// patch; null removes a field.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	s, err := shared.CurrentSession(r, h.Sessions)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	id, err := shared.ObjectIDParam(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	patch, err := respond.ReadPatch(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	org, err := h.Lifecycle.Update(r.Context(), s, id, patch)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, org)
}
