// internal/app/features/members/roster.go
package members

import (
	"net/http"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/directory"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
	"go.uber.org/zap"
)

// ServeRoster handles GET /events/{id}/members: the leads and registered
// users of the organization that owns the event.
func (h *Handler) ServeRoster(w http.ResponseWriter, r *http.Request) {
	s, err := shared.CurrentSession(r, h.Sessions)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	eventID, err := shared.ObjectIDParam(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	roster, err := h.Directory.LoadMembers(r.Context(), s.Actor(), eventID)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	if roster.Registered == nil {
		roster.Registered = []directory.RegisteredMember{}
	}
	respond.JSON(w, http.StatusOK, roster)
}

// HandleAdd handles POST /events/{id}/members. The body's type selects
// between recording a lead and assigning an existing user.
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	s, err := shared.CurrentSession(r, h.Sessions)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	eventID, err := shared.ObjectIDParam(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	var in directory.AddMemberInput
	if err := respond.ReadJSON(r, &in); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	res, err := h.Directory.AddMember(r.Context(), s.Actor(), eventID, in)
	if err != nil {
		h.Log.Debug("add member rejected",
			zap.String("event_id", eventID.Hex()),
			zap.String("type", in.Type),
			zap.Error(err))
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, res)
}
