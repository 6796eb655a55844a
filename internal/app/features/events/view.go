// internal/app/features/events/view.go
package events

import (
	"context"
	"net/http"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"github.com/dalemusser/eventhub/internal/domain/models"
)

// ServeView handles GET /events/{id}.
func (h *Handler) ServeView(w http.ResponseWriter, r *http.Request) {
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
	ev, err := h.loadEvent(r.Context(), id)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	if !s.Resolver().CanAccessOrganization(ev.OrganizationID) {
		respond.Error(w, h.Log, apperr.Denied("no access to event %s", id.Hex()))
		return
	}
	respond.JSON(w, http.StatusOK, ev)
}

// ServeNotifications handles GET /events/{id}/notifications, ordered by
// fire time.
func (h *Handler) ServeNotifications(w http.ResponseWriter, r *http.Request) {
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
	ctx := r.Context()
	ev, err := h.loadEvent(ctx, id)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	if !s.Resolver().CanAccessOrganization(ev.OrganizationID) {
		respond.Error(w, h.Log, apperr.Denied("no access to event %s", id.Hex()))
		return
	}

	lctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	ns, err := h.Notifications.ListByEvent(lctx, id)
	cancel()
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	if ns == nil {
		ns = []models.ScheduledNotification{}
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"notifications": ns})
}
