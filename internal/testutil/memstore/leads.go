package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	leadstore "github.com/dalemusser/eventhub/internal/app/store/leads"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Leads mirrors leadstore.Store. Insertion order stands in for created_at order.
type Leads struct {
	faults
	mu    sync.Mutex
	leads []models.Lead
}

func cloneLead(l models.Lead) models.Lead {
	l.ReferralOrgs = append([]string(nil), l.ReferralOrgs...)
	if l.ConvertedTo != nil {
		c := *l.ConvertedTo
		l.ConvertedTo = &c
	}
	return l
}

// Put stores l as-is.
func (s *Leads) Put(l models.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.leads {
		if s.leads[i].ID == l.ID {
			s.leads[i] = cloneLead(l)
			return
		}
	}
	s.leads = append(s.leads, cloneLead(l))
}

// Peek returns the stored lead without counting a call.
func (s *Leads) Peek(id primitive.ObjectID) (models.Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leads {
		if l.ID == id {
			return cloneLead(l), true
		}
	}
	return models.Lead{}, false
}

func (s *Leads) Create(ctx context.Context, l models.Lead) (models.Lead, error) {
	if err := s.hit("Create"); err != nil {
		return models.Lead{}, err
	}
	now := time.Now().UTC()
	l.ID = primitive.NewObjectID()
	l.Email = strings.TrimSpace(l.Email)
	l.EmailCI = text.Fold(l.Email)
	l.Normalize()
	l.CreatedAt = now
	l.UpdatedAt = now
	s.Put(l)
	return l, nil
}

func (s *Leads) GetByID(ctx context.Context, id primitive.ObjectID) (models.Lead, error) {
	if err := s.hit("GetByID"); err != nil {
		return models.Lead{}, err
	}
	l, ok := s.Peek(id)
	if !ok {
		return models.Lead{}, mongo.ErrNoDocuments
	}
	l.Normalize()
	return l, nil
}

func (s *Leads) ListByOrg(ctx context.Context, orgID primitive.ObjectID) ([]models.Lead, error) {
	if err := s.hit("ListByOrg"); err != nil {
		return nil, err
	}
	return s.filter(func(l models.Lead) bool { return l.OrganizationID == orgID }), nil
}

func (s *Leads) ListOpenByContact(ctx context.Context, orgID primitive.ObjectID, phone, email string) ([]models.Lead, error) {
	if err := s.hit("ListOpenByContact"); err != nil {
		return nil, err
	}
	phone = strings.TrimSpace(phone)
	email = strings.TrimSpace(email)
	if phone == "" && email == "" {
		return nil, nil
	}
	emailCI := text.Fold(email)
	return s.filter(func(l models.Lead) bool {
		if l.OrganizationID != orgID || l.Status == models.LeadTransformed {
			return false
		}
		return (phone != "" && l.PhoneNumber == phone) || (email != "" && l.EmailCI == emailCI)
	}), nil
}

func (s *Leads) filter(keep func(models.Lead) bool) []models.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lead
	for _, l := range s.leads {
		if keep(l) {
			l = cloneLead(l)
			l.Normalize()
			out = append(out, l)
		}
	}
	return out
}

func (s *Leads) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string, convertedTo *string) error {
	if err := s.hit("UpdateStatus"); err != nil {
		return err
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.leads {
		l := &s.leads[i]
		if l.ID != id {
			continue
		}
		if l.Status == models.LeadTransformed {
			return leadstore.ErrLeadTransformed
		}
		l.Status = status
		l.UpdatedAt = now
		if convertedTo != nil {
			c := *convertedTo
			l.ConvertedTo = &c
		}
		if status == models.LeadInvited {
			l.InvitedAt = &now
		}
		return nil
	}
	return mongo.ErrNoDocuments
}
