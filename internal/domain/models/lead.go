// internal/domain/models/lead.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Lead statuses. Transformed is terminal.
const (
	LeadPending     = "pending"
	LeadInvited     = "invited"
	LeadTransformed = "transformed"
)

// Lead is a prospective member entered by an organization operator before any
// account is linked.
type Lead struct {
	ID             primitive.ObjectID `bson:"_id" json:"id"`
	OrganizationID primitive.ObjectID `bson:"org_id" json:"org_id"`
	FirstName      string             `bson:"first_name" json:"first_name"`
	LastName       string             `bson:"last_name" json:"last_name"`
	PhoneNumber    string             `bson:"phone_number,omitempty" json:"phone_number,omitempty"`
	Email          string             `bson:"email,omitempty" json:"email,omitempty"`
	EmailCI        string             `bson:"email_ci,omitempty" json:"-"`
	Status         string             `bson:"status" json:"status"`
	ConvertedTo    *string            `bson:"converted_to,omitempty" json:"converted_to,omitempty"`
	ReferralOrgs   []string           `bson:"referral_orgs,omitempty" json:"referral_orgs,omitempty"`
	CreatedBy      string             `bson:"created_by,omitempty" json:"created_by,omitempty"`
	InvitedAt      *time.Time         `bson:"invited_at,omitempty" json:"invited_at,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// Normalize fills defaults for fields that may be missing on older documents.
func (l *Lead) Normalize() {
	if l.Status == "" {
		l.Status = LeadPending
	}
}

// IsLeadStatus reports whether s is a known lead status.
func IsLeadStatus(s string) bool {
	switch s {
	case LeadPending, LeadInvited, LeadTransformed:
		return true
	}
	return false
}

// LeadTransitionAllowed reports whether a lead may move from one status to
// another. Nothing leaves transformed; re-setting transformed is a no-op.
func LeadTransitionAllowed(from, to string) bool {
	if !IsLeadStatus(to) {
		return false
	}
	if from == LeadTransformed {
		return to == LeadTransformed
	}
	return true
}
