// internal/app/features/events/handler.go
package events

import (
	"context"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/eventhub/internal/app/system/reminders"
	"github.com/dalemusser/eventhub/internal/app/system/tenancy"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// EventStore is the events collection.
type EventStore interface {
	Create(ctx context.Context, e models.Event) (models.Event, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Event, error)
	Replace(ctx context.Context, e models.Event) (models.Event, error)
	Delete(ctx context.Context, id primitive.ObjectID) (int64, error)
}

// OrgStore supplies the organization's default reminder times.
type OrgStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Organization, error)
}

// Scheduler keeps scheduled notifications in step with event writes.
// Implemented by *reminders.Scheduler.
type Scheduler interface {
	ScheduleFor(ctx context.Context, e models.Event) ([]models.ScheduledNotification, error)
	Reconcile(ctx context.Context, e models.Event, newTimes []int) (reminders.Diff, error)
	CancelAll(ctx context.Context, eventID primitive.ObjectID) (int64, error)
}

// NotificationLister reads an event's scheduled notifications.
type NotificationLister interface {
	ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]models.ScheduledNotification, error)
}

// Handler serves event writes and the notifications derived from them.
type Handler struct {
	Sessions      shared.Sessions
	Events        EventStore
	Orgs          OrgStore
	Scheduler     Scheduler
	Notifications NotificationLister
	Log           *zap.Logger
}

func NewHandler(sessions shared.Sessions, events EventStore, orgs OrgStore, sched Scheduler, notes NotificationLister, logger *zap.Logger) *Handler {
	return &Handler{
		Sessions:      sessions,
		Events:        events,
		Orgs:          orgs,
		Scheduler:     sched,
		Notifications: notes,
		Log:           logger,
	}
}

// schedulePending is attached to a write that succeeded while the matching
// scheduler call did not. `eventhubctl resync-event` repairs it.
const schedulePending = "event saved; reminder schedule update pending"

// canEdit reports whether the session user may change ev: its owner while
// still a member of the organization, or anyone who manages the organization.
func canEdit(s *tenancy.Session, ev models.Event) bool {
	r := s.Resolver()
	if r.CanManageOrganization(ev.OrganizationID) {
		return true
	}
	return ev.OwnerID == s.UserID() && r.CanAccessOrganization(ev.OrganizationID)
}

// validate cleans ev in place and checks it is storable.
func validate(ev *models.Event) error {
	ev.Title = htmlsanitize.PlainText(ev.Title)
	if ev.Title == "" {
		return apperr.Invalid("title is required")
	}
	if ev.Start.IsZero() {
		return apperr.Invalid("start is required")
	}
	ev.Start = ev.Start.UTC()
	if ev.End != nil {
		end := ev.End.UTC()
		if end.Before(ev.Start) {
			return apperr.Invalid("end is before start")
		}
		ev.End = &end
	}
	if ns := ev.NotificationSettings; ns != nil {
		offsets, err := reminders.NormalizeOffsets(ns.ReminderTimes)
		if err != nil {
			return err
		}
		ns.ReminderTimes = offsets
		if ns.Enabled && len(offsets) == 0 {
			return apperr.Invalid("reminders are enabled but no reminder times are set")
		}
	}
	return nil
}

// loadEvent reads an event, mapping a missing document to NotFound.
func (h *Handler) loadEvent(ctx context.Context, id primitive.ObjectID) (models.Event, error) {
	gctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	ev, err := h.Events.GetByID(gctx, id)
	if err != nil {
		return models.Event{}, apperr.FromStore(err, "event", id.Hex())
	}
	return ev, nil
}
