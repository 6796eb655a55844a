package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts a user with system_role=user and the given memberships.
func (f *Fixtures) CreateUser(ctx context.Context, id, first, last string, orgs map[string]string) models.User {
	f.t.Helper()

	if orgs == nil {
		orgs = map[string]string{}
	}
	now := time.Now().UTC()
	email := id + "@test.com"
	u := models.User{
		ID:            id,
		Email:         email,
		EmailCI:       text.Fold(email),
		FirstName:     first,
		LastName:      last,
		SystemRole:    models.SystemRoleUser,
		Organizations: orgs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateSystemAdmin inserts a system administrator.
func (f *Fixtures) CreateSystemAdmin(ctx context.Context, id string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:            id,
		FirstName:     "System",
		LastName:      "Admin",
		SystemRole:    models.SystemRoleAdmin,
		Organizations: map[string]string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test admin: %v", err)
	}
	return u
}

// CreateOrganization inserts an organization owned by ownerID with the owner
// seeded in its members map.
func (f *Fixtures) CreateOrganization(ctx context.Context, name, ownerID string) models.Organization {
	f.t.Helper()

	now := time.Now().UTC()
	org := models.Organization{
		ID:        primitive.NewObjectID(),
		Name:      name,
		NameLower: strings.ToLower(name),
		NameCI:    text.Fold(name),
		OwnerID:   ownerID,
		Members:   map[string]string{ownerID: models.RoleOwner},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("organizations").InsertOne(ctx, org); err != nil {
		f.t.Fatalf("failed to create test organization: %v", err)
	}
	return org
}

// CreateMember inserts a complete organization_members record.
func (f *Fixtures) CreateMember(ctx context.Context, orgID primitive.ObjectID, userID, role string) models.Member {
	f.t.Helper()

	m := models.Member{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
		Status:         models.MemberActive,
		AddedAt:        time.Now().UTC(),
	}
	if _, err := f.db.Collection("organization_members").InsertOne(ctx, m); err != nil {
		f.t.Fatalf("failed to create test member: %v", err)
	}
	return m
}

// CreateLead inserts a lead with the given status.
func (f *Fixtures) CreateLead(ctx context.Context, orgID primitive.ObjectID, first, last, phone, status string) models.Lead {
	f.t.Helper()

	now := time.Now().UTC()
	l := models.Lead{
		ID:             primitive.NewObjectID(),
		OrganizationID: orgID,
		FirstName:      first,
		LastName:       last,
		PhoneNumber:    phone,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := f.db.Collection("leads").InsertOne(ctx, l); err != nil {
		f.t.Fatalf("failed to create test lead: %v", err)
	}
	return l
}

// CreateEvent inserts an event starting at start with the given reminder offsets.
// A nil offsets slice leaves notifications disabled.
func (f *Fixtures) CreateEvent(ctx context.Context, orgID primitive.ObjectID, owner string, start time.Time, offsets []int) models.Event {
	f.t.Helper()

	now := time.Now().UTC()
	e := models.Event{
		ID:             primitive.NewObjectID(),
		OrganizationID: orgID,
		OwnerID:        owner,
		Title:          "Test Event",
		Start:          start.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if offsets != nil {
		e.NotificationSettings = &models.NotificationSettings{Enabled: true, ReminderTimes: offsets}
	}
	if _, err := f.db.Collection("events").InsertOne(ctx, e); err != nil {
		f.t.Fatalf("failed to create test event: %v", err)
	}
	return e
}
