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

// Events mirrors eventstore.Store.
type Events struct {
	faults
	mu        sync.Mutex
	events    map[primitive.ObjectID]models.Event
	countFail map[string]error
}

func cloneEvent(e models.Event) models.Event {
	if e.End != nil {
		end := *e.End
		e.End = &end
	}
	if e.NotificationSettings != nil {
		ns := *e.NotificationSettings
		ns.ReminderTimes = append([]int(nil), ns.ReminderTimes...)
		e.NotificationSettings = &ns
	}
	return e
}

// FailCountFor makes CountByOrganization fail for one organization only.
func (s *Events) FailCountFor(orgID primitive.ObjectID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countFail[orgID.Hex()] = err
}

// Put stores e as-is.
func (s *Events) Put(e models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		s.events = map[primitive.ObjectID]models.Event{}
	}
	s.events[e.ID] = cloneEvent(e)
}

func (s *Events) Create(ctx context.Context, e models.Event) (models.Event, error) {
	if err := s.hit("Create"); err != nil {
		return models.Event{}, err
	}
	now := time.Now().UTC()
	e.ID = primitive.NewObjectID()
	e.Start = e.Start.UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	s.Put(e)
	return cloneEvent(e), nil
}

func (s *Events) GetByID(ctx context.Context, id primitive.ObjectID) (models.Event, error) {
	if err := s.hit("GetByID"); err != nil {
		return models.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return models.Event{}, mongo.ErrNoDocuments
	}
	return cloneEvent(e), nil
}

func (s *Events) Replace(ctx context.Context, e models.Event) (models.Event, error) {
	if err := s.hit("Replace"); err != nil {
		return models.Event{}, err
	}
	e.Start = e.Start.UTC()
	e.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; !ok {
		return models.Event{}, mongo.ErrNoDocuments
	}
	s.events[e.ID] = cloneEvent(e)
	return cloneEvent(e), nil
}

func (s *Events) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	if err := s.hit("Delete"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return 0, nil
	}
	delete(s.events, id)
	return 1, nil
}

func (s *Events) ListByOrganization(ctx context.Context, orgID primitive.ObjectID) ([]models.Event, error) {
	if err := s.hit("ListByOrganization"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, e := range s.events {
		if e.OrganizationID == orgID {
			out = append(out, cloneEvent(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Events) CountByOrganization(ctx context.Context, orgID primitive.ObjectID) (int64, error) {
	if err := s.hit("CountByOrganization"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.countFail[orgID.Hex()]; err != nil {
		return 0, err
	}
	var n int64
	for _, e := range s.events {
		if e.OrganizationID == orgID {
			n++
		}
	}
	return n, nil
}
