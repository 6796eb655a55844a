// internal/app/store/leads/leadstore.go
package leadstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("leads")}
}

// ErrLeadTransformed is returned when a status change would move a lead out
// of the transformed state.
var ErrLeadTransformed = errors.New("lead has already been transformed")

// Create inserts a new lead. Status defaults to pending.
func (s *Store) Create(ctx context.Context, l models.Lead) (models.Lead, error) {
	now := time.Now().UTC()
	l.ID = primitive.NewObjectID()
	l.Email = strings.TrimSpace(l.Email)
	l.EmailCI = text.Fold(l.Email)
	l.Normalize()
	l.CreatedAt = now
	l.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, l); err != nil {
		return models.Lead{}, err
	}
	return l, nil
}

// GetByID loads a lead. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Lead, error) {
	var l models.Lead
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&l); err != nil {
		return models.Lead{}, err
	}
	l.Normalize()
	return l, nil
}

// ListByOrg returns every lead of an organization regardless of status.
func (s *Store) ListByOrg(ctx context.Context, orgID primitive.ObjectID) ([]models.Lead, error) {
	cur, err := s.c.Find(ctx, bson.M{"org_id": orgID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var leads []models.Lead
	if err := cur.All(ctx, &leads); err != nil {
		return nil, err
	}
	for i := range leads {
		leads[i].Normalize()
	}
	return leads, nil
}

// ListOpenByContact returns the organization's leads that are not yet
// transformed and match the phone number or the email.
func (s *Store) ListOpenByContact(ctx context.Context, orgID primitive.ObjectID, phone, email string) ([]models.Lead, error) {
	var or bson.A
	if phone = strings.TrimSpace(phone); phone != "" {
		or = append(or, bson.M{"phone_number": phone})
	}
	if email = strings.TrimSpace(email); email != "" {
		or = append(or, bson.M{"email_ci": text.Fold(email)})
	}
	if len(or) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{
		"org_id": orgID,
		"status": bson.M{"$ne": models.LeadTransformed},
		"$or":    or,
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var leads []models.Lead
	if err := cur.All(ctx, &leads); err != nil {
		return nil, err
	}
	for i := range leads {
		leads[i].Normalize()
	}
	return leads, nil
}

// UpdateStatus sets the lead's status (and converted_to when given). The
// filter excludes transformed leads, so the store itself refuses to move a
// lead out of transformed even under concurrent writers.
// Returns mongo.ErrNoDocuments if the lead does not exist and
// ErrLeadTransformed if it exists but is already transformed.
func (s *Store) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string, convertedTo *string) error {
	now := time.Now().UTC()
	set := bson.M{"status": status, "updated_at": now}
	if convertedTo != nil {
		set["converted_to"] = *convertedTo
	}
	if status == models.LeadInvited {
		set["invited_at"] = now
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$ne": models.LeadTransformed}},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrLeadTransformed
}
