// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScheduledNotification is one materialized reminder. Exactly one document per
// (event_id, time_before_event).
type ScheduledNotification struct {
	ID               primitive.ObjectID `bson:"_id" json:"id"`
	EventID          primitive.ObjectID `bson:"event_id" json:"event_id"`
	OrganizationID   primitive.ObjectID `bson:"org_id" json:"org_id"`
	Owner            string             `bson:"owner" json:"owner"`
	TimeBeforeEvent  int                `bson:"time_before_event" json:"time_before_event"` // minutes
	NextNotification time.Time          `bson:"next_notification" json:"next_notification"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
}
