// internal/app/features/members/leadstatus.go
package members

import (
	"net/http"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
)

type statusRequest struct {
	Status string `json:"status"`
}

// HandleLeadStatus handles PATCH /leads/{id}/status.
func (h *Handler) HandleLeadStatus(w http.ResponseWriter, r *http.Request) {
	s, err := shared.CurrentSession(r, h.Sessions)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	leadID, err := shared.ObjectIDParam(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	var req statusRequest
	if err := respond.ReadJSON(r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	lead, err := h.Directory.UpdateMemberStatus(r.Context(), s.Actor(), leadID, req.Status)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, lead)
}
