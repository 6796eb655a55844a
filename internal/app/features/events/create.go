// internal/app/features/events/create.go
package events

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type createRequest struct {
	OrganizationID       string                       `json:"org_id"`
	Title                string                       `json:"title"`
	Start                time.Time                    `json:"start"`
	End                  *time.Time                   `json:"end,omitempty"`
	NotificationSettings *models.NotificationSettings `json:"notification_settings,omitempty"`
}

type createResponse struct {
	Event         models.Event                   `json:"event"`
	Notifications []models.ScheduledNotification `json:"notifications"`
	Warning       string                         `json:"warning,omitempty"`
}

// HandleCreate handles POST /events. Any member of the organization may
// create an event. Without notification settings the organization's default
// reminder times apply.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	s, err := shared.CurrentSession(r, h.Sessions)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	var req createRequest
	if err := respond.ReadJSON(r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	orgID, err := primitive.ObjectIDFromHex(req.OrganizationID)
	if err != nil {
		respond.Error(w, h.Log, apperr.Invalid("invalid org_id %q", req.OrganizationID))
		return
	}
	if !s.Resolver().CanAccessOrganization(orgID) {
		respond.Error(w, h.Log, apperr.Denied("no access to organization %s", orgID.Hex()))
		return
	}

	ctx := r.Context()
	log := h.Log.With(zap.String("user_id", s.UserID()), zap.String("org_id", orgID.Hex()))

	ev := models.Event{
		OrganizationID:       orgID,
		OwnerID:              s.UserID(),
		Title:                req.Title,
		Start:                req.Start,
		End:                  req.End,
		NotificationSettings: req.NotificationSettings,
	}
	if ev.NotificationSettings == nil {
		defaults, err := h.defaultReminders(ctx, orgID)
		if err != nil {
			respond.Error(w, h.Log, err)
			return
		}
		ev.NotificationSettings = defaults
	}
	if err := validate(&ev); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	created, err := h.Events.Create(cctx, ev)
	cancel()
	if err != nil {
		log.Error("create event failed", zap.Error(err))
		respond.Error(w, h.Log, err)
		return
	}
	log = log.With(zap.String("event_id", created.ID.Hex()))

	resp := createResponse{Event: created, Notifications: []models.ScheduledNotification{}}
	ns, err := h.Scheduler.ScheduleFor(ctx, created)
	if err != nil {
		log.Error("event created but reminders not scheduled", zap.Error(err))
		resp.Warning = schedulePending
	} else if ns != nil {
		resp.Notifications = ns
	}
	log.Info("event created", zap.Int("reminders", len(resp.Notifications)))
	respond.JSON(w, http.StatusCreated, resp)
}

// defaultReminders returns enabled settings carrying the organization's
// default reminder times, or nil when it has none.
func (h *Handler) defaultReminders(ctx context.Context, orgID primitive.ObjectID) (*models.NotificationSettings, error) {
	gctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	org, err := h.Orgs.GetByID(gctx, orgID)
	if err != nil {
		return nil, apperr.FromStore(err, "organization", orgID.Hex())
	}
	if len(org.Settings.DefaultReminderTimes) == 0 {
		return nil, nil
	}
	times := append([]int(nil), org.Settings.DefaultReminderTimes...)
	return &models.NotificationSettings{Enabled: true, ReminderTimes: times}, nil
}
