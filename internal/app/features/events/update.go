// internal/app/features/events/update.go
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/reminders"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.uber.org/zap"
)

// updateRequest holds the fields a client may change. Absent fields keep
// their stored value; "end": null clears the end time.
type updateRequest struct {
	Title                *string                      `json:"title,omitempty"`
	Start                *time.Time                   `json:"start,omitempty"`
	End                  nullableTime                 `json:"end"`
	NotificationSettings *models.NotificationSettings `json:"notification_settings,omitempty"`
}

// nullableTime tells an absent field apart from an explicit null.
type nullableTime struct {
	Set   bool
	Value *time.Time
}

func (n *nullableTime) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	n.Value = &t
	return nil
}

type updateResponse struct {
	Event    models.Event   `json:"event"`
	Schedule reminders.Diff `json:"schedule"`
	Warning  string         `json:"warning,omitempty"`
}

// HandleUpdate handles PATCH /events/{id}. After the event is saved its
// notifications are reconciled: offsets that stay keep their document, and a
// moved start re-times them in place.
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
	var req updateRequest
	if err := respond.ReadJSON(r, &req); err != nil {
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
		respond.Error(w, h.Log, apperr.Denied("not allowed to change event %s", id.Hex()))
		return
	}

	if req.Title != nil {
		ev.Title = *req.Title
	}
	if req.Start != nil {
		ev.Start = *req.Start
	}
	if req.End.Set {
		ev.End = req.End.Value
	}
	if req.NotificationSettings != nil {
		ev.NotificationSettings = req.NotificationSettings
	}
	if err := validate(&ev); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	log := h.Log.With(zap.String("user_id", s.UserID()), zap.String("event_id", id.Hex()))
	wctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	saved, err := h.Events.Replace(wctx, ev)
	cancel()
	if err != nil {
		log.Error("update event failed", zap.Error(err))
		respond.Error(w, h.Log, apperr.FromStore(err, "event", id.Hex()))
		return
	}

	resp := updateResponse{Event: saved}
	diff, err := h.Scheduler.Reconcile(ctx, saved, saved.ReminderTimes())
	if err != nil {
		log.Error("event updated but reminders not reconciled", zap.Error(err))
		resp.Warning = schedulePending
	} else {
		resp.Schedule = diff
	}
	respond.JSON(w, http.StatusOK, resp)
}
