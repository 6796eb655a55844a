package organizationstore_test

import (
	"errors"
	"testing"

	organizationstore "github.com/dalemusser/eventhub/internal/app/store/organizations"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/dalemusser/eventhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := organizationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.Organization{
		Name:    "Río Runners",
		OwnerID: "owner-1",
		Members: map[string]string{"owner-1": models.RoleOwner},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if created.ID == primitive.NilObjectID {
		t.Error("expected ID to be assigned")
	}
	if created.NameLower != "río runners" {
		t.Errorf("NameLower: got %q, want %q", created.NameLower, "río runners")
	}
	if created.NameCI != "rio runners" {
		t.Errorf("NameCI: got %q, want %q", created.NameCI, "rio runners")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}

	got, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Members["owner-1"] != models.RoleOwner {
		t.Errorf("expected owner seeded in members, got %v", got.Members)
	}
}

func TestStore_Create_DuplicateIdempotencyKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.EnsureIndexes(t, db)
	store := organizationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	org := models.Organization{Name: "Once", OwnerID: "u1", IdempotencyKey: "7a1f7c52-3a55-4a57-9d3a-0b8e8cf1f0e1"}
	if _, err := store.Create(ctx, org); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, err := store.Create(ctx, org); !errors.Is(err, organizationstore.ErrDuplicateOrganization) {
		t.Fatalf("expected ErrDuplicateOrganization, got %v", err)
	}

	// Organizations without a key never collide.
	for i := 0; i < 2; i++ {
		if _, err := store.Create(ctx, models.Organization{Name: "No key", OwnerID: "u1"}); err != nil {
			t.Fatalf("keyless Create %d failed: %v", i, err)
		}
	}
}

func TestStore_ListByMember(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := organizationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a, _ := store.Create(ctx, models.Organization{Name: "Alpha", OwnerID: "u1", Members: map[string]string{"u1": models.RoleOwner}})
	_, _ = store.Create(ctx, models.Organization{Name: "Beta", OwnerID: "u2", Members: map[string]string{"u2": models.RoleOwner}})

	orgs, err := store.ListByMember(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByMember failed: %v", err)
	}
	if len(orgs) != 1 || orgs[0].ID != a.ID {
		t.Fatalf("expected only Alpha, got %+v", orgs)
	}

	if err := store.SetMemberRole(ctx, a.ID, "u3", models.RoleMember); err != nil {
		t.Fatalf("SetMemberRole failed: %v", err)
	}
	orgs, _ = store.ListByMember(ctx, "u3")
	if len(orgs) != 1 {
		t.Fatalf("expected u3 to see Alpha after SetMemberRole, got %d orgs", len(orgs))
	}

	if err := store.UnsetMember(ctx, a.ID, "u3"); err != nil {
		t.Fatalf("UnsetMember failed: %v", err)
	}
	orgs, _ = store.ListByMember(ctx, "u3")
	if len(orgs) != 0 {
		t.Fatalf("expected u3 to see nothing after UnsetMember, got %d orgs", len(orgs))
	}
}

func TestStore_UpdateFields_TouchesOnlyNamedKeys(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := organizationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	org, _ := store.Create(ctx, models.Organization{
		Name:        "Gamma",
		Description: "old",
		OwnerID:     "u1",
		Members:     map[string]string{"u1": models.RoleOwner},
	})

	// A membership write that lands after the caller read the document.
	if err := store.SetMemberRole(ctx, org.ID, "u2", models.RoleMember); err != nil {
		t.Fatalf("SetMemberRole failed: %v", err)
	}

	doc, err := store.UpdateFields(ctx, org.ID,
		bson.M{"settings": bson.M{"time_zone": "Europe/Paris", "banner_color": "teal"}},
		[]string{"description"})
	if err != nil {
		t.Fatalf("UpdateFields failed: %v", err)
	}
	if _, ok := doc["description"]; ok {
		t.Errorf("expected description unset in returned document, got %v", doc["description"])
	}

	got, err := store.GetByID(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Settings.TimeZone != "Europe/Paris" {
		t.Errorf("TimeZone: got %q", got.Settings.TimeZone)
	}
	if got.Settings.Extra["banner_color"] != "teal" {
		t.Errorf("expected free-form setting preserved, got %v", got.Settings.Extra)
	}
	if got.Members["u2"] != models.RoleMember {
		t.Errorf("members map lost concurrent entry: %v", got.Members)
	}

	if _, err := store.UpdateFields(ctx, primitive.NewObjectID(), bson.M{"description": "x"}, nil); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("unknown org: expected mongo.ErrNoDocuments, got %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := organizationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	org, _ := store.Create(ctx, models.Organization{Name: "Doomed", OwnerID: "u1"})
	n, err := store.Delete(ctx, org.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
	if _, err := store.GetByID(ctx, org.ID); err != mongo.ErrNoDocuments {
		t.Errorf("expected ErrNoDocuments after delete, got %v", err)
	}
}
