// internal/app/store/organizations/organizationstore.go
package organizationstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/eventhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

// ErrDuplicateOrganization is returned when an organization with the same
// idempotency key already exists.
var ErrDuplicateOrganization = errors.New("an organization with this idempotency key already exists")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("organizations")}
}

// Create assigns an ID, derives name_lower/name_ci and timestamps, and inserts.
// Members is stored as given; callers seed the owner entry.
func (s *Store) Create(ctx context.Context, org models.Organization) (models.Organization, error) {
	now := time.Now().UTC()
	org.ID = primitive.NewObjectID()
	org.NameLower = strings.ToLower(org.Name)
	org.NameCI = text.Fold(org.Name)
	if org.Members == nil {
		org.Members = map[string]string{}
	}
	org.CreatedAt = now
	org.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, org); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Organization{}, ErrDuplicateOrganization
		}
		return models.Organization{}, err
	}
	return org, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Organization, error) {
	var org models.Organization
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&org); err != nil {
		return models.Organization{}, err
	}
	org.Normalize()
	return org, nil
}

// GetByIdempotencyKey finds the organization created with the given key.
func (s *Store) GetByIdempotencyKey(ctx context.Context, key string) (models.Organization, error) {
	var org models.Organization
	if err := s.c.FindOne(ctx, bson.M{"idempotency_key": key}).Decode(&org); err != nil {
		return models.Organization{}, err
	}
	org.Normalize()
	return org, nil
}

// GetDocument loads the raw stored document so callers can merge partial
// patches without losing fields the typed model does not know about.
func (s *Store) GetDocument(ctx context.Context, id primitive.ObjectID) (bson.M, error) {
	var doc bson.M
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateFields applies $set and $unset to the named top-level keys only and
// returns the document as stored afterwards. Keys outside set and unset,
// such as the members map, keep whatever value the store holds at write time.
func (s *Store) UpdateFields(ctx context.Context, id primitive.ObjectID, set bson.M, unset []string) (bson.M, error) {
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		u := make(bson.M, len(unset))
		for _, k := range unset {
			u[k] = ""
		}
		update["$unset"] = u
	}
	if len(update) == 0 {
		return s.GetDocument(ctx, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc bson.M
	if err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes an organization by ID. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ListAll returns every organization sorted by name.
func (s *Store) ListAll(ctx context.Context) ([]models.Organization, error) {
	return s.find(ctx, bson.M{})
}

// ListByMember returns organizations whose members map contains userID.
func (s *Store) ListByMember(ctx context.Context, userID string) ([]models.Organization, error) {
	return s.find(ctx, bson.M{"members." + userID: bson.M{"$exists": true}})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Organization, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var orgs []models.Organization
	if err := cur.All(ctx, &orgs); err != nil {
		return nil, err
	}
	for i := range orgs {
		orgs[i].Normalize()
	}
	return orgs, nil
}

// SetMemberRole writes members.<userID> = role on the summary map.
func (s *Store) SetMemberRole(ctx context.Context, id primitive.ObjectID, userID, role string) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"members." + userID: role,
		"updated_at":        time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// UnsetMember removes userID from the summary map.
func (s *Store) UnsetMember(ctx context.Context, id primitive.ObjectID, userID string) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$unset": bson.M{"members." + userID: ""},
		"$set":   bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
