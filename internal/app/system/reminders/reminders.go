// Package reminders keeps each event's scheduled_notifications in step with
// its notification settings: one document per reminder offset, no more and no
// fewer. It never looks at the wall clock; deciding whether a fire time has
// passed belongs to whatever dispatches the notifications.
package reminders

import (
	"context"
	"sort"
	"time"

	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/metrics"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store is the scheduled_notifications store.
type Store interface {
	InsertMany(ctx context.Context, ns []models.ScheduledNotification) ([]models.ScheduledNotification, error)
	ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]models.ScheduledNotification, error)
	DeleteByEventOffsets(ctx context.Context, eventID primitive.ObjectID, offsets []int) (int64, error)
	DeleteByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error)
	SetNextNotification(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

// MaxOffsetMinutes is the largest reminder offset accepted: one year.
const MaxOffsetMinutes = 365 * 24 * 60

// NormalizeOffsets validates reminder offsets (minutes before start) and
// returns them sorted. Negative, duplicate and out-of-range offsets are
// rejected.
func NormalizeOffsets(offsets []int) ([]int, error) {
	seen := make(map[int]bool, len(offsets))
	out := make([]int, 0, len(offsets))
	for _, o := range offsets {
		if o < 0 {
			return nil, apperr.Invalid("reminder offset %d is negative", o)
		}
		if o > MaxOffsetMinutes {
			return nil, apperr.Invalid("reminder offset %d exceeds %d minutes", o, MaxOffsetMinutes)
		}
		if seen[o] {
			return nil, apperr.Invalid("duplicate reminder offset %d", o)
		}
		seen[o] = true
		out = append(out, o)
	}
	sort.Ints(out)
	return out, nil
}

// FireTime is start minus offset minutes.
func FireTime(start time.Time, offset int) time.Time {
	return start.Add(-time.Duration(offset) * time.Minute).UTC()
}

// Diff reports what Reconcile changed, by offset.
type Diff struct {
	Added       []int `json:"added"`
	Removed     []int `json:"removed"`
	Rescheduled []int `json:"rescheduled"`
}

// Scheduler derives notification documents from events.
type Scheduler struct {
	store   Store
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(store Store, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{store: store, log: logger, metrics: m}
}

// ScheduleFor creates one notification per reminder offset of a newly
// created event. Events with reminders disabled get none.
func (s *Scheduler) ScheduleFor(ctx context.Context, e models.Event) ([]models.ScheduledNotification, error) {
	if !e.RemindersEnabled() {
		return nil, nil
	}
	offsets, err := NormalizeOffsets(e.ReminderTimes())
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, e, offsets)
}

func (s *Scheduler) insert(ctx context.Context, e models.Event, offsets []int) ([]models.ScheduledNotification, error) {
	if len(offsets) == 0 {
		return nil, nil
	}
	ns := make([]models.ScheduledNotification, 0, len(offsets))
	for _, o := range offsets {
		ns = append(ns, models.ScheduledNotification{
			EventID:          e.ID,
			OrganizationID:   e.OrganizationID,
			Owner:            e.OwnerID,
			TimeBeforeEvent:  o,
			NextNotification: FireTime(e.Start, o),
		})
	}

	ictx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "insert notifications")
	defer cancel()
	inserted, err := s.store.InsertMany(ictx, ns)
	if err != nil {
		s.log.Error("insert notifications failed", zap.String("event_id", e.ID.Hex()), zap.Error(err))
		return nil, err
	}
	s.metrics.AddSchedulerOps("created", len(inserted))
	return inserted, nil
}

// Reconcile brings the event's notifications in line with newTimes (nil or
// empty when reminders are off). Offsets only in the store are deleted,
// offsets only in newTimes are created, and offsets in both keep their
// document; if e.Start moved, those documents get a new fire time in place.
func (s *Scheduler) Reconcile(ctx context.Context, e models.Event, newTimes []int) (Diff, error) {
	want, err := NormalizeOffsets(newTimes)
	if err != nil {
		return Diff{}, err
	}

	lctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "list notifications")
	existing, err := s.store.ListByEvent(lctx, e.ID)
	cancel()
	if err != nil {
		return Diff{}, err
	}

	have := make(map[int]models.ScheduledNotification, len(existing))
	for _, n := range existing {
		have[n.TimeBeforeEvent] = n
	}
	wanted := make(map[int]bool, len(want))
	var diff Diff
	for _, o := range want {
		wanted[o] = true
		if _, ok := have[o]; !ok {
			diff.Added = append(diff.Added, o)
		}
	}
	for _, n := range existing {
		if !wanted[n.TimeBeforeEvent] {
			diff.Removed = append(diff.Removed, n.TimeBeforeEvent)
		}
	}

	if len(diff.Removed) > 0 {
		dctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "delete notifications")
		n, err := s.store.DeleteByEventOffsets(dctx, e.ID, diff.Removed)
		cancel()
		if err != nil {
			return Diff{}, err
		}
		s.metrics.AddSchedulerOps("deleted", int(n))
	}

	if _, err := s.insert(ctx, e, diff.Added); err != nil {
		return Diff{}, err
	}

	for _, o := range want {
		n, ok := have[o]
		if !ok {
			continue
		}
		at := FireTime(e.Start, o)
		if n.NextNotification.Equal(at) {
			continue
		}
		uctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "reschedule notification")
		err := s.store.SetNextNotification(uctx, n.ID, at)
		cancel()
		if err != nil {
			return Diff{}, err
		}
		diff.Rescheduled = append(diff.Rescheduled, o)
	}
	s.metrics.AddSchedulerOps("rescheduled", len(diff.Rescheduled))

	s.log.Debug("notifications reconciled",
		zap.String("event_id", e.ID.Hex()),
		zap.Ints("added", diff.Added),
		zap.Ints("removed", diff.Removed),
		zap.Ints("rescheduled", diff.Rescheduled))
	return diff, nil
}

// CancelAll removes every notification of the event and returns how many
// were deleted.
func (s *Scheduler) CancelAll(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	dctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "cancel notifications")
	defer cancel()
	n, err := s.store.DeleteByEvent(dctx, eventID)
	if err != nil {
		return 0, err
	}
	s.metrics.AddSchedulerOps("deleted", int(n))
	return n, nil
}
