package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type memberKey struct {
	org  primitive.ObjectID
	user string
}

// Members mirrors memberstore.Store.
type Members struct {
	faults
	mu   sync.Mutex
	recs map[memberKey]models.Member
}

// Put stores m as-is, without filling defaults, so tests can seed the
// incomplete records found in older data.
func (s *Members) Put(m models.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recs == nil {
		s.recs = map[memberKey]models.Member{}
	}
	s.recs[memberKey{m.OrganizationID, m.UserID}] = m
}

// Peek returns the stored record without normalizing or counting a call.
func (s *Members) Peek(orgID primitive.ObjectID, userID string) (models.Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.recs[memberKey{orgID, userID}]
	return m, ok
}

func (s *Members) Set(ctx context.Context, m models.Member) error {
	if err := s.hit("Set"); err != nil {
		return err
	}
	if m.OrganizationID.IsZero() || m.UserID == "" {
		return errors.New("member requires org_id and user_id")
	}
	m.ID = primitive.NilObjectID
	m.NeedsBackfill = false
	s.Put(m)
	return nil
}

func (s *Members) Get(ctx context.Context, orgID primitive.ObjectID, userID string) (models.Member, error) {
	if err := s.hit("Get"); err != nil {
		return models.Member{}, err
	}
	m, ok := s.Peek(orgID, userID)
	if !ok {
		return models.Member{}, mongo.ErrNoDocuments
	}
	m.Normalize()
	return m, nil
}

func (s *Members) Delete(ctx context.Context, orgID primitive.ObjectID, userID string) error {
	if err := s.hit("Delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, memberKey{orgID, userID})
	return nil
}

func (s *Members) ListByOrg(ctx context.Context, orgID primitive.ObjectID) ([]models.Member, error) {
	if err := s.hit("ListByOrg"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Member
	for k, m := range s.recs {
		if k.org == orgID {
			m.Normalize()
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}
