package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type userRec struct {
	u   models.User
	seq int
}

// Users mirrors userstore.Store.
type Users struct {
	faults
	mu   sync.Mutex
	byID map[string]userRec
	seq  int
}

func cloneUser(u models.User) models.User {
	orgs := make(map[string]string, len(u.Organizations))
	for k, v := range u.Organizations {
		orgs[k] = v
	}
	u.Organizations = orgs
	u.ReferralOrganizations = append([]string(nil), u.ReferralOrganizations...)
	if u.IsOnboard != nil {
		b := *u.IsOnboard
		u.IsOnboard = &b
	}
	return u
}

// Put stores u as-is, replacing any existing user with the same id.
func (s *Users) Put(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.byID[u.ID] = userRec{u: cloneUser(u), seq: s.seq}
}

// Peek returns the stored user without normalizing or counting a call.
func (s *Users) Peek(id string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	return cloneUser(r.u), ok
}

func (s *Users) GetByID(ctx context.Context, id string) (models.User, error) {
	if err := s.hit("GetByID"); err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return models.User{}, mongo.ErrNoDocuments
	}
	u := cloneUser(r.u)
	u.Normalize()
	return u, nil
}

func (s *Users) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if err := s.hit("GetByEmail"); err != nil {
		return models.User{}, err
	}
	key := text.Fold(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.byID {
		if r.u.EmailCI == key {
			u := cloneUser(r.u)
			u.Normalize()
			return u, nil
		}
	}
	return models.User{}, mongo.ErrNoDocuments
}

func (s *Users) EnsureDefault(ctx context.Context, id string, p models.Profile) (models.User, error) {
	if err := s.hit("EnsureDefault"); err != nil {
		return models.User{}, err
	}
	if id == "" {
		return models.User{}, errors.New("user id is required")
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		s.seq++
		r = userRec{seq: s.seq, u: models.User{
			ID:            id,
			SystemRole:    models.SystemRoleUser,
			Organizations: map[string]string{},
			FirstName:     strings.TrimSpace(p.FirstName),
			LastName:      strings.TrimSpace(p.LastName),
			CreatedAt:     now,
		}}
	}
	if email := strings.TrimSpace(p.Email); email != "" {
		r.u.Email = email
		r.u.EmailCI = text.Fold(email)
	}
	r.u.UpdatedAt = now
	s.byID[id] = r
	u := cloneUser(r.u)
	u.Normalize()
	return u, nil
}

func (s *Users) SetOrganizationRole(ctx context.Context, id string, orgID primitive.ObjectID, role string) error {
	if err := s.hit("SetOrganizationRole"); err != nil {
		return err
	}
	if !models.IsOrgRole(role) {
		return errors.New(`role must be "owner", "admin" or "member"`)
	}
	return s.update(id, func(u *models.User) {
		if u.Organizations == nil {
			u.Organizations = map[string]string{}
		}
		u.Organizations[orgID.Hex()] = role
	})
}

func (s *Users) UnsetOrganization(ctx context.Context, id string, orgID primitive.ObjectID) error {
	if err := s.hit("UnsetOrganization"); err != nil {
		return err
	}
	return s.update(id, func(u *models.User) { delete(u.Organizations, orgID.Hex()) })
}

func (s *Users) SetSystemRole(ctx context.Context, id, role string) error {
	if err := s.hit("SetSystemRole"); err != nil {
		return err
	}
	if role != models.SystemRoleAdmin && role != models.SystemRoleUser {
		return errors.New(`system role must be "system_admin" or "user"`)
	}
	return s.update(id, func(u *models.User) { u.SystemRole = role })
}

func (s *Users) update(id string, fn func(*models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	fn(&r.u)
	r.u.UpdatedAt = time.Now().UTC()
	s.byID[id] = r
	return nil
}

func (s *Users) ListByReferralOrg(ctx context.Context, orgID primitive.ObjectID) ([]models.User, error) {
	if err := s.hit("ListByReferralOrg"); err != nil {
		return nil, err
	}
	hex := orgID.Hex()
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []userRec
	for _, r := range s.byID {
		if r.u.OnboardExplicitlyFalse() {
			continue
		}
		for _, ref := range r.u.ReferralOrganizations {
			if ref == hex {
				recs = append(recs, r)
				break
			}
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	users := make([]models.User, 0, len(recs))
	for _, r := range recs {
		u := cloneUser(r.u)
		u.Normalize()
		users = append(users, u)
	}
	return users, nil
}
