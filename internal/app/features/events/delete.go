// internal/app/features/events/delete.go
package events

import (
	"context"
	"net/http"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// HandleDelete handles DELETE /events/{id}. The event's notifications are
// cancelled after the event itself is gone.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
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
	if !canEdit(s, ev) {
		respond.Error(w, h.Log, apperr.Denied("not allowed to delete event %s", id.Hex()))
		return
	}

	log := h.Log.With(zap.String("user_id", s.UserID()), zap.String("event_id", id.Hex()))
	dctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	n, err := h.Events.Delete(dctx, id)
	cancel()
	if err != nil {
		log.Error("delete event failed", zap.Error(err))
		respond.Error(w, h.Log, err)
		return
	}
	if n == 0 {
		respond.Error(w, h.Log, apperr.NotFound("event", id.Hex()))
		return
	}

	removed, err := h.Scheduler.CancelAll(ctx, id)
	if err != nil {
		// Orphaned notifications are removed by `eventhubctl resync-event`.
		log.Error("event deleted but notifications not cancelled", zap.Error(err))
	}
	log.Info("event deleted", zap.Int64("notifications_removed", removed))
	w.WriteHeader(http.StatusNoContent)
}
