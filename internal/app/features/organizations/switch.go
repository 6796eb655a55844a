// internal/app/features/organizations/switch.go
package organizations

import (
	"net/http"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
	"go.uber.org/zap"
)

// HandleSwitch handles POST /organizations/{id}/switch.
func (h *Handler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
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

	org, err := s.SwitchOrganization(r.Context(), id)
	if err != nil {
		h.Log.Debug("organization switch failed",
			zap.String("user_id", s.UserID()),
			zap.String("org_id", id.Hex()),
			zap.Error(err))
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, org)
}

// HandleRefresh handles POST /organizations/{id}/refresh.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
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

	org, err := s.RefreshOrganization(r.Context(), id)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, org)
}
