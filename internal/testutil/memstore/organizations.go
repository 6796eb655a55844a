package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	organizationstore "github.com/dalemusser/eventhub/internal/app/store/organizations"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Organizations mirrors organizationstore.Store. Documents are kept as BSON
// so GetDocument/UpdateFields behave like the real collection.
type Organizations struct {
	faults
	mu   sync.Mutex
	docs map[primitive.ObjectID][]byte

	// BeforeCreate, when set, runs at the start of every Create call outside
	// the store lock. Tests use it to hold a create in flight.
	BeforeCreate func()
}

func (s *Organizations) decode(raw []byte) models.Organization {
	var org models.Organization
	_ = bson.Unmarshal(raw, &org)
	org.Normalize()
	return org
}

func (s *Organizations) store(org models.Organization) error {
	raw, err := bson.Marshal(org)
	if err != nil {
		return err
	}
	if s.docs == nil {
		s.docs = map[primitive.ObjectID][]byte{}
	}
	s.docs[org.ID] = raw
	return nil
}

// Put stores org as-is.
func (s *Organizations) Put(org models.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.store(org)
}

// Peek returns the stored organization without counting a call.
func (s *Organizations) Peek(id primitive.ObjectID) (models.Organization, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[id]
	if !ok {
		return models.Organization{}, false
	}
	return s.decode(raw), true
}

// Count returns the number of stored organizations.
func (s *Organizations) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

func (s *Organizations) Create(ctx context.Context, org models.Organization) (models.Organization, error) {
	if s.BeforeCreate != nil {
		s.BeforeCreate()
	}
	if err := s.hit("Create"); err != nil {
		return models.Organization{}, err
	}
	now := time.Now().UTC()
	org.ID = primitive.NewObjectID()
	org.NameLower = strings.ToLower(org.Name)
	org.NameCI = text.Fold(org.Name)
	if org.Members == nil {
		org.Members = map[string]string{}
	}
	org.CreatedAt = now
	org.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if org.IdempotencyKey != "" {
		for _, raw := range s.docs {
			if s.decode(raw).IdempotencyKey == org.IdempotencyKey {
				return models.Organization{}, organizationstore.ErrDuplicateOrganization
			}
		}
	}
	if err := s.store(org); err != nil {
		return models.Organization{}, err
	}
	return org, nil
}

func (s *Organizations) GetByID(ctx context.Context, id primitive.ObjectID) (models.Organization, error) {
	if err := s.hit("GetByID"); err != nil {
		return models.Organization{}, err
	}
	org, ok := s.Peek(id)
	if !ok {
		return models.Organization{}, mongo.ErrNoDocuments
	}
	return org, nil
}

func (s *Organizations) GetByIdempotencyKey(ctx context.Context, key string) (models.Organization, error) {
	if err := s.hit("GetByIdempotencyKey"); err != nil {
		return models.Organization{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range s.docs {
		if org := s.decode(raw); org.IdempotencyKey == key {
			return org, nil
		}
	}
	return models.Organization{}, mongo.ErrNoDocuments
}

func (s *Organizations) GetDocument(ctx context.Context, id primitive.ObjectID) (bson.M, error) {
	if err := s.hit("GetDocument"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Organizations) UpdateFields(ctx context.Context, id primitive.ObjectID, set bson.M, unset []string) (bson.M, error) {
	if err := s.hit("UpdateFields"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for k, v := range set {
		doc[k] = v
	}
	for _, k := range unset {
		delete(doc, k)
	}
	var err error
	if raw, err = bson.Marshal(doc); err != nil {
		return nil, err
	}
	s.docs[id] = raw

	// Round-trip so callers see stored types, as with the real collection.
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Organizations) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	if err := s.hit("Delete"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return 0, nil
	}
	delete(s.docs, id)
	return 1, nil
}

func (s *Organizations) ListAll(ctx context.Context) ([]models.Organization, error) {
	if err := s.hit("ListAll"); err != nil {
		return nil, err
	}
	return s.list(func(models.Organization) bool { return true }), nil
}

func (s *Organizations) ListByMember(ctx context.Context, userID string) ([]models.Organization, error) {
	if err := s.hit("ListByMember"); err != nil {
		return nil, err
	}
	return s.list(func(o models.Organization) bool {
		_, ok := o.Members[userID]
		return ok
	}), nil
}

func (s *Organizations) list(keep func(models.Organization) bool) []models.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Organization
	for _, raw := range s.docs {
		if org := s.decode(raw); keep(org) {
			out = append(out, org)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NameCI != out[j].NameCI {
			return out[i].NameCI < out[j].NameCI
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out
}

func (s *Organizations) SetMemberRole(ctx context.Context, id primitive.ObjectID, userID, role string) error {
	if err := s.hit("SetMemberRole"); err != nil {
		return err
	}
	return s.update(id, func(o *models.Organization) { o.Members[userID] = role })
}

func (s *Organizations) UnsetMember(ctx context.Context, id primitive.ObjectID, userID string) error {
	if err := s.hit("UnsetMember"); err != nil {
		return err
	}
	return s.update(id, func(o *models.Organization) { delete(o.Members, userID) })
}

func (s *Organizations) update(id primitive.ObjectID, fn func(*models.Organization)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	org := s.decode(raw)
	fn(&org)
	org.UpdatedAt = time.Now().UTC()
	return s.store(org)
}
