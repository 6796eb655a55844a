package reminders_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/metrics"
	"github.com/dalemusser/eventhub/internal/app/system/reminders"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/dalemusser/eventhub/internal/testutil/memstore"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var start = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func event(offsets ...int) models.Event {
	return models.Event{
		ID:             primitive.NewObjectID(),
		OrganizationID: primitive.NewObjectID(),
		OwnerID:        "u1",
		Start:          start,
		NotificationSettings: &models.NotificationSettings{
			Enabled:       true,
			ReminderTimes: offsets,
		},
	}
}

func byOffset(ns []models.ScheduledNotification) map[int]models.ScheduledNotification {
	out := make(map[int]models.ScheduledNotification, len(ns))
	for _, n := range ns {
		out[n.TimeBeforeEvent] = n
	}
	return out
}

func TestNormalizeOffsets(t *testing.T) {
	tests := []struct {
		name    string
		in      []int
		want    []int
		invalid bool
	}{
		{"empty", nil, []int{}, false},
		{"sorted copy", []int{1440, 10, 60}, []int{10, 60, 1440}, false},
		{"zero allowed", []int{0}, []int{0}, false},
		{"negative", []int{10, -5}, nil, true},
		{"duplicate", []int{10, 60, 10}, nil, true},
		{"one year allowed", []int{reminders.MaxOffsetMinutes}, []int{reminders.MaxOffsetMinutes}, false},
		{"beyond one year", []int{reminders.MaxOffsetMinutes + 1}, nil, true},
		{"overflowing duration", []int{10, 200000000}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reminders.NormalizeOffsets(tt.in)
			if tt.invalid {
				if !errors.Is(err, apperr.ErrValidation) {
					t.Fatalf("err = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestFireTime_LargestOffsetPrecedesStart(t *testing.T) {
	got := reminders.FireTime(start, reminders.MaxOffsetMinutes)
	if !got.Before(start) {
		t.Fatalf("FireTime = %v, not before %v", got, start)
	}
	if want := start.AddDate(-1, 0, 0); !got.Equal(want) {
		t.Errorf("FireTime = %v, want %v", got, want)
	}
}

func TestScheduleFor_OnePerOffset(t *testing.T) {
	db := memstore.New()
	s := reminders.New(db.Notifications, zap.NewNop(), nil)
	e := event(10, 60)

	created, err := s.ScheduleFor(context.Background(), e)
	if err != nil {
		t.Fatalf("ScheduleFor: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d, want 2", len(created))
	}
	got := byOffset(db.Notifications.All())
	if want := start.Add(-10 * time.Minute); !got[10].NextNotification.Equal(want) {
		t.Errorf("offset 10 fires at %v, want %v", got[10].NextNotification, want)
	}
	if want := start.Add(-time.Hour); !got[60].NextNotification.Equal(want) {
		t.Errorf("offset 60 fires at %v, want %v", got[60].NextNotification, want)
	}
	if got[10].Owner != "u1" || got[10].EventID != e.ID {
		t.Errorf("unexpected notification %+v", got[10])
	}

	// A retry does not create a second document per offset.
	if _, err := s.ScheduleFor(context.Background(), e); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n := len(db.Notifications.All()); n != 2 {
		t.Errorf("after retry %d notifications, want 2", n)
	}
}

func TestScheduleFor_DisabledOrInvalid(t *testing.T) {
	db := memstore.New()
	s := reminders.New(db.Notifications, zap.NewNop(), nil)

	e := event(10)
	e.NotificationSettings.Enabled = false
	if ns, err := s.ScheduleFor(context.Background(), e); err != nil || len(ns) != 0 {
		t.Errorf("disabled: got %v, %v", ns, err)
	}

	_, err := s.ScheduleFor(context.Background(), event(10, 10))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("duplicate offsets: err = %v", err)
	}
	if db.Notifications.Calls("InsertMany") != 0 {
		t.Error("store written despite invalid offsets")
	}
}

func TestReconcile_DiffPreservesUnchanged(t *testing.T) {
	db := memstore.New()
	m := metrics.New()
	s := reminders.New(db.Notifications, zap.NewNop(), m)
	e := event(10, 60)
	if _, err := s.ScheduleFor(context.Background(), e); err != nil {
		t.Fatalf("ScheduleFor: %v", err)
	}
	before := byOffset(db.Notifications.All())

	diff, err := s.Reconcile(context.Background(), e, []int{60, 1440})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(diff.Added) != 1 || diff.Added[0] != 1440 {
		t.Errorf("added = %v, want [1440]", diff.Added)
	}
	if len(diff.Removed) != 1 || diff.Removed[0] != 10 {
		t.Errorf("removed = %v, want [10]", diff.Removed)
	}
	if len(diff.Rescheduled) != 0 {
		t.Errorf("rescheduled = %v, want none", diff.Rescheduled)
	}

	after := byOffset(db.Notifications.All())
	if len(after) != 2 {
		t.Fatalf("have %d notifications, want 2", len(after))
	}
	if _, ok := after[10]; ok {
		t.Error("offset 10 still present")
	}
	if after[60].ID != before[60].ID || !after[60].CreatedAt.Equal(before[60].CreatedAt) {
		t.Error("offset 60 document was recreated")
	}
	if _, ok := after[1440]; !ok {
		t.Error("offset 1440 not created")
	}
	if got := testutil.ToFloat64(m.SchedulerOpsTotal.WithLabelValues("deleted")); got != 1 {
		t.Errorf("deleted metric = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SchedulerOpsTotal.WithLabelValues("created")); got != 3 {
		t.Errorf("created metric = %v, want 3", got)
	}
}

func TestReconcile_StartChangeReschedulesInPlace(t *testing.T) {
	db := memstore.New()
	s := reminders.New(db.Notifications, zap.NewNop(), nil)
	e := event(30)
	if _, err := s.ScheduleFor(context.Background(), e); err != nil {
		t.Fatalf("ScheduleFor: %v", err)
	}
	id := db.Notifications.All()[0].ID

	e.Start = start.Add(24 * time.Hour)
	diff, err := s.Reconcile(context.Background(), e, []int{30})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(diff.Rescheduled) != 1 {
		t.Errorf("rescheduled = %v, want [30]", diff.Rescheduled)
	}
	n := db.Notifications.All()[0]
	if n.ID != id {
		t.Error("notification recreated instead of moved")
	}
	if want := e.Start.Add(-30 * time.Minute); !n.NextNotification.Equal(want) {
		t.Errorf("fires at %v, want %v", n.NextNotification, want)
	}
}

func TestReconcile_DisableRemovesAll(t *testing.T) {
	db := memstore.New()
	s := reminders.New(db.Notifications, zap.NewNop(), nil)
	e := event(10, 60)
	if _, err := s.ScheduleFor(context.Background(), e); err != nil {
		t.Fatalf("ScheduleFor: %v", err)
	}
	if _, err := s.Reconcile(context.Background(), e, nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if n := len(db.Notifications.All()); n != 0 {
		t.Errorf("%d notifications left, want 0", n)
	}
}

func TestReconcile_InvalidLeavesStoreUntouched(t *testing.T) {
	db := memstore.New()
	s := reminders.New(db.Notifications, zap.NewNop(), nil)
	e := event(10)
	if _, err := s.ScheduleFor(context.Background(), e); err != nil {
		t.Fatalf("ScheduleFor: %v", err)
	}
	if _, err := s.Reconcile(context.Background(), e, []int{-1}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if db.Notifications.Calls("ListByEvent") != 0 {
		t.Error("store read before validation")
	}
}

func TestReconcile_StoreErrorPropagates(t *testing.T) {
	db := memstore.New()
	s := reminders.New(db.Notifications, zap.NewNop(), nil)
	boom := errors.New("write conflict")
	db.Notifications.FailNext("ListByEvent", boom)
	if _, err := s.Reconcile(context.Background(), event(), []int{5}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestCancelAll_OnlyThatEvent(t *testing.T) {
	db := memstore.New()
	s := reminders.New(db.Notifications, zap.NewNop(), nil)
	doomed, kept := event(10, 60, 1440), event(10, 60)
	for _, e := range []models.Event{doomed, kept} {
		if _, err := s.ScheduleFor(context.Background(), e); err != nil {
			t.Fatalf("ScheduleFor: %v", err)
		}
	}

	n, err := s.CancelAll(context.Background(), doomed.ID)
	if err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted %d, want 3", n)
	}
	left := db.Notifications.All()
	if len(left) != 2 {
		t.Fatalf("%d notifications left, want 2", len(left))
	}
	for _, ln := range left {
		if ln.EventID != kept.ID {
			t.Errorf("notification of deleted event survived: %+v", ln)
		}
	}
}
