// internal/app/features/organizations/list.go
package organizations

import (
	"net/http"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type listResponse struct {
	Organizations []models.Organization `json:"organizations"`
	CurrentID     *primitive.ObjectID   `json:"current_id"`
}

// ServeList handles GET /organizations. It performs the automatic reload,
// which is skipped once right after this session created an organization.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	s, err := shared.CurrentSession(r, h.Sessions)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	if _, err := s.AutoReload(r.Context()); err != nil {
		h.Log.Warn("organization list reload failed", zap.String("user_id", s.UserID()), zap.Error(err))
		respond.Error(w, h.Log, err)
		return
	}

	resp := listResponse{Organizations: s.UserOrganizations()}
	if resp.Organizations == nil {
		resp.Organizations = []models.Organization{}
	}
	if cur := s.CurrentOrganization(); cur != nil {
		id := cur.ID
		resp.CurrentID = &id
	}
	respond.JSON(w, http.StatusOK, resp)
}
