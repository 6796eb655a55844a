// internal/app/store/prefs/prefstore.go
package prefstore

// session_prefs is a small key/value collection that lets a user's tenancy
// session survive sign-out and server restarts. Keys follow the
// "lastOrg_{uid}" and "currentOrg_{uid}" convention.

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type entry struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("session_prefs")}
}

// LastOrgKey is the key holding the id of the user's last selected organization.
func LastOrgKey(uid string) string { return "lastOrg_" + uid }

// CurrentOrgKey is the key holding a serialized snapshot of the user's current organization.
func CurrentOrgKey(uid string) string { return "currentOrg_" + uid }

// Get returns the stored value and whether it existed.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var e entry
	err := s.c.FindOne(ctx, bson.M{"_id": key}).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return e.Value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.c.ReplaceOne(ctx,
		bson.M{"_id": key},
		entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()},
		options.Replace().SetUpsert(true),
	)
	return err
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": key})
	return err
}
