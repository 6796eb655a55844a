// internal/app/features/members/orgmembers.go
package members

import (
	"net/http"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

type assignRequest struct {
	Role string `json:"role"`
}

// ServeOrgMembers handles GET /organizations/{id}/members. Reading the list
// also repairs any role mirrors that disagree with the member records.
func (h *Handler) ServeOrgMembers(w http.ResponseWriter, r *http.Request) {
	s, err := shared.CurrentSession(r, h.Sessions)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	orgID, err := shared.ObjectIDParam(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	list, err := h.Directory.LoadOrganizationMembers(r.Context(), s.Actor(), orgID)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	if list == nil {
		list = []models.Member{}
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"members": list})
}

// HandleAssign handles PUT /organizations/{id}/members/{userID}.
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	s, err := shared.CurrentSession(r, h.Sessions)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	orgID, err := shared.ObjectIDParam(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	var req assignRequest
	if err := respond.ReadJSON(r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	m, err := h.Directory.Assign(r.Context(), s.Actor(), chi.URLParam(r, "userID"), orgID, req.Role)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, m)
}

// HandleRemove handles DELETE /organizations/{id}/members/{userID}. A member
// may remove themselves.
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	s, err := shared.CurrentSession(r, h.Sessions)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	orgID, err := shared.ObjectIDParam(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	if err := h.Directory.Remove(r.Context(), s.Actor(), chi.URLParam(r, "userID"), orgID); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
