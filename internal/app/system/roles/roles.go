// Package roles answers authorization questions against a role snapshot that
// is already in memory. Nothing here performs I/O.
//
// A Resolver over a snapshot that has not finished loading denies everything:
// every predicate returns false and CurrentUserRole reports no role.
package roles

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dalemusser/eventhub/internal/domain/models"
)

// Snapshot is the subset of the User document authorization needs.
type Snapshot struct {
	Loaded        bool
	UserID        string
	SystemRole    string
	Organizations map[string]string // org id hex -> role
}

// SnapshotFromUser copies the role fields of u into a loaded snapshot.
func SnapshotFromUser(u models.User) Snapshot {
	orgs := make(map[string]string, len(u.Organizations))
	for k, v := range u.Organizations {
		orgs[k] = v
	}
	return Snapshot{
		Loaded:        true,
		UserID:        u.ID,
		SystemRole:    u.SystemRole,
		Organizations: orgs,
	}
}

// WithRole returns a copy of s with orgID set to role (or removed when role
// is empty). The receiver is not modified.
func (s Snapshot) WithRole(orgID primitive.ObjectID, role string) Snapshot {
	orgs := make(map[string]string, len(s.Organizations)+1)
	for k, v := range s.Organizations {
		orgs[k] = v
	}
	if role == "" {
		delete(orgs, orgID.Hex())
	} else {
		orgs[orgID.Hex()] = role
	}
	s.Organizations = orgs
	return s
}

// Resolver evaluates role policy for one snapshot.
type Resolver struct {
	snap Snapshot
}

// Actor is the signed-in user on whose behalf a service call runs.
type Actor struct {
	UserID string
	Resolver
}

// New returns a Resolver for snap.
func New(snap Snapshot) Resolver {
	return Resolver{snap: snap}
}

// CurrentUserRole returns the user's role in orgID and whether one exists.
func (r Resolver) CurrentUserRole(orgID primitive.ObjectID) (string, bool) {
	if !r.snap.Loaded {
		return "", false
	}
	role, ok := r.snap.Organizations[orgID.Hex()]
	if !ok || role == "" {
		return "", false
	}
	return role, true
}

// IsSystemAdmin reports whether the user holds the system_admin role.
func (r Resolver) IsSystemAdmin() bool {
	return r.snap.Loaded && r.snap.SystemRole == models.SystemRoleAdmin
}

// CanCreateOrganization is true for system admins and for accounts on the
// baseline "user" tier. Quota gating would hook in here.
func (r Resolver) CanCreateOrganization() bool {
	if !r.snap.Loaded {
		return false
	}
	return r.IsSystemAdmin() || r.snap.SystemRole == models.SystemRoleUser
}

// CanCreateSubOrganization is true for system admins and for owners/admins
// of the parent organization.
func (r Resolver) CanCreateSubOrganization(parentOrgID primitive.ObjectID) bool {
	if r.IsSystemAdmin() {
		return true
	}
	role, ok := r.CurrentUserRole(parentOrgID)
	return ok && models.IsManagerRole(role)
}

// CanManageOrganization is true for system admins and for owners/admins of orgID.
func (r Resolver) CanManageOrganization(orgID primitive.ObjectID) bool {
	return r.CanCreateSubOrganization(orgID)
}

// CanDeleteOrganization is true for system admins and for the owner of orgID.
func (r Resolver) CanDeleteOrganization(orgID primitive.ObjectID) bool {
	if r.IsSystemAdmin() {
		return true
	}
	role, ok := r.CurrentUserRole(orgID)
	return ok && role == models.RoleOwner
}

// CanAccessOrganization is true for system admins and for any member of orgID.
func (r Resolver) CanAccessOrganization(orgID primitive.ObjectID) bool {
	if r.IsSystemAdmin() {
		return true
	}
	_, ok := r.CurrentUserRole(orgID)
	return ok
}
