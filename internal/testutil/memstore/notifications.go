package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Notifications mirrors notificationstore.Store, including the unique
// (event_id, time_before_event) constraint.
type Notifications struct {
	faults
	mu sync.Mutex
	ns []models.ScheduledNotification
}

// All returns every stored notification ordered by event then offset.
func (s *Notifications) All() []models.ScheduledNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.ScheduledNotification(nil), s.ns...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID.Hex() < out[j].EventID.Hex()
		}
		return out[i].TimeBeforeEvent < out[j].TimeBeforeEvent
	})
	return out
}

func (s *Notifications) InsertMany(ctx context.Context, ns []models.ScheduledNotification) ([]models.ScheduledNotification, error) {
	if err := s.hit("InsertMany"); err != nil {
		return nil, err
	}
	if len(ns) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := make([]models.ScheduledNotification, 0, len(ns))
	for i := range ns {
		ns[i].ID = primitive.NewObjectID()
		ns[i].CreatedAt = now
		ns[i].NextNotification = ns[i].NextNotification.UTC()
		if s.exists(ns[i].EventID, ns[i].TimeBeforeEvent) {
			continue
		}
		s.ns = append(s.ns, ns[i])
		inserted = append(inserted, ns[i])
	}
	return inserted, nil
}

func (s *Notifications) exists(eventID primitive.ObjectID, offset int) bool {
	for _, n := range s.ns {
		if n.EventID == eventID && n.TimeBeforeEvent == offset {
			return true
		}
	}
	return false
}

func (s *Notifications) ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]models.ScheduledNotification, error) {
	if err := s.hit("ListByEvent"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduledNotification
	for _, n := range s.ns {
		if n.EventID == eventID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeBeforeEvent < out[j].TimeBeforeEvent })
	return out, nil
}

func (s *Notifications) DeleteByEventOffsets(ctx context.Context, eventID primitive.ObjectID, offsets []int) (int64, error) {
	if err := s.hit("DeleteByEventOffsets"); err != nil {
		return 0, err
	}
	if len(offsets) == 0 {
		return 0, nil
	}
	drop := make(map[int]bool, len(offsets))
	for _, o := range offsets {
		drop[o] = true
	}
	return s.remove(func(n models.ScheduledNotification) bool {
		return n.EventID == eventID && drop[n.TimeBeforeEvent]
	}), nil
}

func (s *Notifications) DeleteByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	if err := s.hit("DeleteByEvent"); err != nil {
		return 0, err
	}
	return s.remove(func(n models.ScheduledNotification) bool { return n.EventID == eventID }), nil
}

func (s *Notifications) remove(match func(models.ScheduledNotification) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.ns[:0]
	var n int64
	for _, sn := range s.ns {
		if match(sn) {
			n++
			continue
		}
		kept = append(kept, sn)
	}
	s.ns = kept
	return n
}

func (s *Notifications) SetNextNotification(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	if err := s.hit("SetNextNotification"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ns {
		if s.ns[i].ID == id {
			s.ns[i].NextNotification = at.UTC()
			return nil
		}
	}
	return mongo.ErrNoDocuments
}
