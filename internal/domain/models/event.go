// internal/domain/models/event.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event belongs to one organization. Reminder offsets are minutes before Start.
type Event struct {
	ID                   primitive.ObjectID    `bson:"_id" json:"id"`
	OrganizationID       primitive.ObjectID    `bson:"org_id" json:"org_id"`
	OwnerID              string                `bson:"owner_id" json:"owner_id"`
	Title                string                `bson:"title" json:"title"`
	Start                time.Time             `bson:"start" json:"start"`
	End                  *time.Time            `bson:"end,omitempty" json:"end,omitempty"`
	NotificationSettings *NotificationSettings `bson:"notification_settings,omitempty" json:"notification_settings,omitempty"`
	CreatedAt            time.Time             `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time             `bson:"updated_at" json:"updated_at"`
}

// NotificationSettings controls reminder scheduling for an event.
type NotificationSettings struct {
	Enabled       bool  `bson:"enabled" json:"enabled"`
	ReminderTimes []int `bson:"reminder_times,omitempty" json:"reminder_times,omitempty"`
}

// RemindersEnabled reports whether the event wants reminders at all.
func (e Event) RemindersEnabled() bool {
	return e.NotificationSettings != nil && e.NotificationSettings.Enabled
}

// ReminderTimes returns the configured offsets, or nil when disabled.
func (e Event) ReminderTimes() []int {
	if !e.RemindersEnabled() {
		return nil
	}
	return e.NotificationSettings.ReminderTimes
}
