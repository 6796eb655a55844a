// internal/domain/models/organization.go
package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Organization is the tenant boundary.
//
// Members is a denormalized summary of organization_members keyed by user id.
// Non-admin users discover their organizations through it, so every membership
// mutation must keep it current.
type Organization struct {
	ID             primitive.ObjectID   `bson:"_id" json:"id"`
	ParentID       *primitive.ObjectID  `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	Name           string               `bson:"name" json:"name"`
	NameLower      string               `bson:"name_lower" json:"name_lower"`
	NameCI         string               `bson:"name_ci" json:"-"` // lowercase, diacritics-stripped
	Description    string               `bson:"description,omitempty" json:"description,omitempty"`
	OwnerID        string               `bson:"owner_id" json:"owner_id"`
	Members        map[string]string    `bson:"members" json:"members"`
	Settings       OrganizationSettings `bson:"settings" json:"settings"`
	IdempotencyKey string               `bson:"idempotency_key,omitempty" json:"-"`
	CreatedAt      time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time            `bson:"updated_at" json:"updated_at"`

	// EventCount is computed per session load, never stored.
	EventCount int64 `bson:"-" json:"event_count"`
}

// OrganizationSettings holds the known settings plus any free-form keys a
// client stored through a patch.
type OrganizationSettings struct {
	TimeZone             string                 `bson:"time_zone,omitempty" json:"time_zone,omitempty"`
	ContactInfo          string                 `bson:"contact_info,omitempty" json:"contact_info,omitempty"`
	DefaultReminderTimes []int                  `bson:"default_reminder_times,omitempty" json:"default_reminder_times,omitempty"`
	Extra                map[string]interface{} `bson:",inline" json:"extra,omitempty"`
}

// Normalize fills defaults for fields that may be missing on older documents.
func (o *Organization) Normalize() {
	if o.Members == nil {
		o.Members = map[string]string{}
	}
	if o.NameLower == "" && o.Name != "" {
		o.NameLower = strings.ToLower(o.Name)
	}
	for uid, role := range o.Members {
		o.Members[uid] = strings.ToLower(strings.TrimSpace(role))
	}
}
