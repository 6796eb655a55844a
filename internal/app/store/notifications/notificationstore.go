// internal/app/store/notifications/notificationstore.go
package notificationstore

import (
	"context"
	"time"

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
	return &Store{c: db.Collection("scheduled_notifications")}
}

// InsertMany stores new notifications, assigning IDs and CreatedAt.
// Offsets that already exist for the event (unique index) are skipped, so a
// retried reconcile never produces a second document per offset.
// Returns the notifications that were actually inserted.
func (s *Store) InsertMany(ctx context.Context, ns []models.ScheduledNotification) ([]models.ScheduledNotification, error) {
	if len(ns) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(ns))
	for i := range ns {
		ns[i].ID = primitive.NewObjectID()
		ns[i].CreatedAt = now
		ns[i].NextNotification = ns[i].NextNotification.UTC()
		docs = append(docs, ns[i])
	}

	_, err := s.c.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return ns, nil
	}

	bulkErr, ok := err.(mongo.BulkWriteException)
	if !ok {
		return nil, err
	}
	failed := make(map[int]bool, len(bulkErr.WriteErrors))
	for _, we := range bulkErr.WriteErrors {
		if we.Code != 11000 {
			return nil, err
		}
		failed[we.Index] = true
	}
	inserted := make([]models.ScheduledNotification, 0, len(ns))
	for i, n := range ns {
		if !failed[i] {
			inserted = append(inserted, n)
		}
	}
	return inserted, nil
}

// ListByEvent returns the event's notifications ordered by offset.
func (s *Store) ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]models.ScheduledNotification, error) {
	cur, err := s.c.Find(ctx, bson.M{"event_id": eventID}, options.Find().SetSort(bson.D{{Key: "time_before_event", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ns []models.ScheduledNotification
	if err := cur.All(ctx, &ns); err != nil {
		return nil, err
	}
	return ns, nil
}

// DeleteByEventOffsets removes the event's notifications for the given offsets only.
func (s *Store) DeleteByEventOffsets(ctx context.Context, eventID primitive.ObjectID, offsets []int) (int64, error) {
	if len(offsets) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{
		"event_id":          eventID,
		"time_before_event": bson.M{"$in": offsets},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteByEvent removes every notification of the event.
func (s *Store) DeleteByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"event_id": eventID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// SetNextNotification moves one notification's fire time in place.
func (s *Store) SetNextNotification(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"next_notification": at.UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
