package roles_test

import (
	"testing"

	"github.com/dalemusser/eventhub/internal/app/system/roles"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func snapshot(sysRole string, orgs map[primitive.ObjectID]string) roles.Snapshot {
	m := map[string]string{}
	for id, r := range orgs {
		m[id.Hex()] = r
	}
	return roles.SnapshotFromUser(models.User{ID: "u1", SystemRole: sysRole, Organizations: m})
}

func TestUnloadedSnapshot_DeniesEverything(t *testing.T) {
	r := roles.New(roles.Snapshot{})
	org := primitive.NewObjectID()

	if _, ok := r.CurrentUserRole(org); ok {
		t.Error("expected no role for unloaded snapshot")
	}
	if r.IsSystemAdmin() {
		t.Error("expected IsSystemAdmin false")
	}
	if r.CanCreateOrganization() {
		t.Error("expected CanCreateOrganization false")
	}
	if r.CanCreateSubOrganization(org) {
		t.Error("expected CanCreateSubOrganization false")
	}
	if r.CanDeleteOrganization(org) {
		t.Error("expected CanDeleteOrganization false")
	}
}

func TestUnloadedSnapshot_IgnoresStaleData(t *testing.T) {
	org := primitive.NewObjectID()
	r := roles.New(roles.Snapshot{
		SystemRole:    models.SystemRoleAdmin,
		Organizations: map[string]string{org.Hex(): models.RoleOwner},
	})
	if r.IsSystemAdmin() || r.CanDeleteOrganization(org) {
		t.Error("unloaded snapshot must not grant access even when fields are populated")
	}
}

func TestCanCreateOrganization(t *testing.T) {
	if !roles.New(snapshot(models.SystemRoleUser, nil)).CanCreateOrganization() {
		t.Error("baseline user should be able to create an organization")
	}
	if !roles.New(snapshot(models.SystemRoleAdmin, nil)).CanCreateOrganization() {
		t.Error("system admin should be able to create an organization")
	}
}

func TestCanCreateSubOrganization(t *testing.T) {
	parent := primitive.NewObjectID()
	other := primitive.NewObjectID()

	cases := []struct {
		name string
		snap roles.Snapshot
		want bool
	}{
		{"system admin without membership", snapshot(models.SystemRoleAdmin, nil), true},
		{"owner of parent", snapshot(models.SystemRoleUser, map[primitive.ObjectID]string{parent: models.RoleOwner}), true},
		{"admin of parent", snapshot(models.SystemRoleUser, map[primitive.ObjectID]string{parent: models.RoleAdmin}), true},
		{"plain member of parent", snapshot(models.SystemRoleUser, map[primitive.ObjectID]string{parent: models.RoleMember}), false},
		{"owner of another org", snapshot(models.SystemRoleUser, map[primitive.ObjectID]string{other: models.RoleOwner}), false},
		{"non-member", snapshot(models.SystemRoleUser, nil), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := roles.New(tc.snap).CanCreateSubOrganization(parent); got != tc.want {
				t.Errorf("CanCreateSubOrganization = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanDeleteOrganization_OwnerOnly(t *testing.T) {
	org := primitive.NewObjectID()
	owner := roles.New(snapshot(models.SystemRoleUser, map[primitive.ObjectID]string{org: models.RoleOwner}))
	admin := roles.New(snapshot(models.SystemRoleUser, map[primitive.ObjectID]string{org: models.RoleAdmin}))

	if !owner.CanDeleteOrganization(org) {
		t.Error("owner should be able to delete")
	}
	if admin.CanDeleteOrganization(org) {
		t.Error("admin should not be able to delete")
	}
	if !admin.CanManageOrganization(org) {
		t.Error("admin should be able to manage")
	}
}

func TestWithRole_DoesNotMutateReceiver(t *testing.T) {
	org := primitive.NewObjectID()
	base := snapshot(models.SystemRoleUser, nil)
	next := base.WithRole(org, models.RoleAdmin)

	if _, ok := roles.New(base).CurrentUserRole(org); ok {
		t.Error("WithRole must not change the original snapshot")
	}
	if role, _ := roles.New(next).CurrentUserRole(org); role != models.RoleAdmin {
		t.Errorf("expected admin in new snapshot, got %q", role)
	}
	if _, ok := roles.New(next.WithRole(org, "")).CurrentUserRole(org); ok {
		t.Error("WithRole with empty role should remove the entry")
	}
}
