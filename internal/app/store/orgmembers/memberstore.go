// internal/app/store/orgmembers/memberstore.go
package memberstore

// organization_members is the authoritative record of org-scoped roles.
// users.organizations and organizations.members are mirrors of it.

import (
	"context"
	"errors"

	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("organization_members")}
}

var errMissingKey = errors.New("member requires org_id and user_id")

// Set writes the full member record for (org_id, user_id), inserting it when
// absent. Repeating the same call leaves the same document behind.
func (s *Store) Set(ctx context.Context, m models.Member) error {
	if m.OrganizationID.IsZero() || m.UserID == "" {
		return errMissingKey
	}
	m.ID = primitive.NilObjectID
	_, err := s.c.ReplaceOne(ctx,
		bson.M{"org_id": m.OrganizationID, "user_id": m.UserID},
		m,
		options.Replace().SetUpsert(true),
	)
	return err
}

// Get loads the member record for (orgID, userID). Returns mongo.ErrNoDocuments if not found.
func (s *Store) Get(ctx context.Context, orgID primitive.ObjectID, userID string) (models.Member, error) {
	var m models.Member
	if err := s.c.FindOne(ctx, bson.M{"org_id": orgID, "user_id": userID}).Decode(&m); err != nil {
		return models.Member{}, err
	}
	m.Normalize()
	return m, nil
}

// Delete removes the member record for (orgID, userID). Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, orgID primitive.ObjectID, userID string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"org_id": orgID, "user_id": userID})
	return err
}

// ListByOrg returns every member record of an organization.
func (s *Store) ListByOrg(ctx context.Context, orgID primitive.ObjectID) ([]models.Member, error) {
	cur, err := s.c.Find(ctx, bson.M{"org_id": orgID}, options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var members []models.Member
	if err := cur.All(ctx, &members); err != nil {
		return nil, err
	}
	for i := range members {
		members[i].Normalize()
	}
	return members, nil
}
