// internal/domain/models/member.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Member statuses.
const (
	MemberActive   = "active"
	MemberInactive = "inactive"
)

// Member is the authoritative record of a user's role within one organization.
// Exactly one document per (org_id, user_id).
type Member struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	OrganizationID primitive.ObjectID `bson:"org_id" json:"org_id"`
	UserID         string             `bson:"user_id" json:"user_id"`
	Role           string             `bson:"role" json:"role"`
	Status         string             `bson:"status" json:"status"`
	AddedBy        string             `bson:"added_by,omitempty" json:"added_by,omitempty"`
	AddedAt        time.Time          `bson:"added_at" json:"added_at"`
	FirstName      string             `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName       string             `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Email          string             `bson:"email,omitempty" json:"email,omitempty"`
	PhoneNumber    string             `bson:"phone_number,omitempty" json:"phone_number,omitempty"`

	// NeedsBackfill is set by Normalize when the stored document lacked
	// required fields. Role is left empty for the caller to resolve.
	NeedsBackfill bool `bson:"-" json:"-"`
}

// Normalize records whether the document was incomplete and fills the
// defaults that do not depend on other documents.
func (m *Member) Normalize() {
	m.NeedsBackfill = m.Role == "" || m.Status == "" || m.AddedAt.IsZero()
	if m.Status == "" {
		m.Status = MemberActive
	}
}
