// internal/app/store/users/userstore.go
package userstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: the stable id issued by the authentication provider,
//     stored as the document _id
//   - Email: a profile claim, not an identifier

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
	return &Store{c: db.Collection("users")}
}

var (
	errEmptyID    = errors.New("user id is required")
	errBadSysRole = errors.New(`system role must be "system_admin" or "user"`)
	errBadOrgRole = errors.New(`role must be "owner", "admin" or "member"`)
)

// GetByID loads a user by id. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByID(ctx context.Context, id string) (models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return models.User{}, err
	}
	u.Normalize()
	return u, nil
}

// GetByEmail looks up a user by case-insensitive email. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"email_ci": text.Fold(strings.TrimSpace(email))}).Decode(&u); err != nil {
		return models.User{}, err
	}
	u.Normalize()
	return u, nil
}

// EnsureDefault returns the user with the given id, creating it with
// system_role=user and an empty organizations map when absent.
// Profile claims refresh the stored email on every call; names are only
// written on insert so user edits survive later sign-ins.
func (s *Store) EnsureDefault(ctx context.Context, id string, p models.Profile) (models.User, error) {
	if id == "" {
		return models.User{}, errEmptyID
	}
	now := time.Now().UTC()

	set := bson.M{"updated_at": now}
	if email := strings.TrimSpace(p.Email); email != "" {
		set["email"] = email
		set["email_ci"] = text.Fold(email)
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"system_role":   models.SystemRoleUser,
			"organizations": bson.M{},
			"first_name":    strings.TrimSpace(p.FirstName),
			"last_name":     strings.TrimSpace(p.LastName),
			"created_at":    now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var u models.User
	if err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&u); err != nil {
		return models.User{}, err
	}
	u.Normalize()
	return u, nil
}

// SetOrganizationRole writes organizations.<orgID> = role. The write is a
// full-value set and safe to repeat. Returns mongo.ErrNoDocuments when the
// user does not exist.
func (s *Store) SetOrganizationRole(ctx context.Context, id string, orgID primitive.ObjectID, role string) error {
	if !models.IsOrgRole(role) {
		return errBadOrgRole
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"organizations." + orgID.Hex(): role,
		"updated_at":                   time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// UnsetOrganization removes orgID from the user's organizations map.
// Removing an absent key is not an error.
func (s *Store) UnsetOrganization(ctx context.Context, id string, orgID primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$unset": bson.M{"organizations." + orgID.Hex(): ""},
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

// ListByReferralOrg returns users whose referral_organizations contains orgID
// and who are not explicitly marked is_onboard=false.
func (s *Store) ListByReferralOrg(ctx context.Context, orgID primitive.ObjectID) ([]models.User, error) {
	cur, err := s.c.Find(ctx, bson.M{
		"referral_organizations": orgID.Hex(),
		"is_onboard":             bson.M{"$ne": false},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Normalize()
	}
	return users, nil
}

// SetSystemRole changes a user's system-scoped role.
func (s *Store) SetSystemRole(ctx context.Context, id, role string) error {
	if role != models.SystemRoleAdmin && role != models.SystemRoleUser {
		return errBadSysRole
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"system_role": role,
		"updated_at":  time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
