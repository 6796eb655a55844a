// internal/domain/models/user.go
package models

import (
	"strings"
	"time"
)

// User is keyed by the stable id issued by the authentication provider.
//
// NOTE:
//   - Organizations mirrors the authoritative organization_members records.
//     It is a denormalized copy and may lag behind after a partial write.
//   - IsOnboard is a pointer because "absent" and "false" mean different things:
//     only an explicit false hides a referral user from an organization's roster.
type User struct {
	ID                    string            `bson:"_id" json:"id"`
	Email                 string            `bson:"email,omitempty" json:"email,omitempty"`
	EmailCI               string            `bson:"email_ci,omitempty" json:"-"`
	FirstName             string            `bson:"first_name" json:"first_name"`
	LastName              string            `bson:"last_name" json:"last_name"`
	PhoneNumber           string            `bson:"phone_number,omitempty" json:"phone_number,omitempty"`
	SystemRole            string            `bson:"system_role" json:"system_role"` // system_admin | user
	Organizations         map[string]string `bson:"organizations" json:"organizations"`
	ReferralOrganizations []string          `bson:"referral_organizations,omitempty" json:"referral_organizations,omitempty"`
	IsOnboard             *bool             `bson:"is_onboard,omitempty" json:"is_onboard,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Profile carries the claims the authentication provider hands us at sign-in.
type Profile struct {
	Email     string
	FirstName string
	LastName  string
}

// Normalize fills defaults for fields that may be missing on older documents.
func (u *User) Normalize() {
	if u.Organizations == nil {
		u.Organizations = map[string]string{}
	}
	u.SystemRole = strings.ToLower(strings.TrimSpace(u.SystemRole))
	if u.SystemRole != SystemRoleAdmin {
		u.SystemRole = SystemRoleUser
	}
	for org, role := range u.Organizations {
		u.Organizations[org] = strings.ToLower(strings.TrimSpace(role))
	}
}

// OnboardExplicitlyFalse reports whether the user was marked as not onboarded.
func (u User) OnboardExplicitlyFalse() bool {
	return u.IsOnboard != nil && !*u.IsOnboard
}
