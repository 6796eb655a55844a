// internal/app/features/organizations/new.go
package organizations

import (
	"net/http"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/orglifecycle"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
	"github.com/dalemusser/eventhub/internal/domain/models"
)

type createResponse struct {
	Organization models.Organization `json:"organization"`
	Warning      string              `json:"warning,omitempty"`
}

// HandleCreate handles POST /organizations.
//
// When the organization was written but the creator's role mirror was not,
// the response is still 201 and carries a warning; the mirror is repaired on
// the next membership read.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	s, err := shared.CurrentSession(r, h.Sessions)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	var in orglifecycle.CreateInput
	if err := respond.ReadJSON(r, &in); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	org, err := h.Lifecycle.Create(r.Context(), s, in)
	if err != nil && org.ID.IsZero() {
		respond.Error(w, h.Log, err)
		return
	}
	resp := createResponse{Organization: org}
	if err != nil {
		resp.Warning = "organization created; role mirror update pending"
	}
	respond.JSON(w, http.StatusCreated, resp)
}
