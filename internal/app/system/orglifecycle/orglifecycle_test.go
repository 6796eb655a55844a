package orglifecycle_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/eventhub/internal/app/store/audit"
	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/auditlog"
	"github.com/dalemusser/eventhub/internal/app/system/orglifecycle"
	"github.com/dalemusser/eventhub/internal/app/system/tenancy"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/dalemusser/eventhub/internal/testutil/memstore"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fixture struct {
	db  *memstore.DB
	mgr *tenancy.Manager
	svc *orglifecycle.Service
}

func newFixture(t *testing.T, cooldown time.Duration) *fixture {
	t.Helper()
	db := memstore.New()
	al := auditlog.New(db.Audit, zap.NewNop(), auditlog.Config{Auth: "all", Admin: "all"})
	return &fixture{
		db:  db,
		mgr: tenancy.NewManager(db.Users, db.Orgs, db.Events, db.Prefs, zap.NewNop(), nil, tenancy.Config{}),
		svc: orglifecycle.New(db.Orgs, db.Members, db.Users, al, nil, zap.NewNop(), orglifecycle.Config{CreateCooldown: cooldown}),
	}
}

func (f *fixture) signIn(t *testing.T, uid string) *tenancy.Session {
	t.Helper()
	s, err := f.mgr.SignIn(context.Background(), uid, models.Profile{FirstName: "Test"})
	if err != nil {
		t.Fatalf("SignIn %s: %v", uid, err)
	}
	return s
}

func (f *fixture) seedOrg(name string, members map[string]string, settings models.OrganizationSettings) models.Organization {
	org := models.Organization{
		ID:        primitive.NewObjectID(),
		Name:      name,
		NameLower: strings.ToLower(name),
		NameCI:    strings.ToLower(name),
		Members:   members,
		Settings:  settings,
	}
	for uid, role := range members {
		if role == models.RoleOwner {
			org.OwnerID = uid
		}
		u, ok := f.db.Users.Peek(uid)
		if !ok {
			u = models.User{ID: uid, SystemRole: models.SystemRoleUser, Organizations: map[string]string{}}
		}
		u.Organizations[org.ID.Hex()] = role
		f.db.Users.Put(u)
	}
	f.db.Orgs.Put(org)
	return org
}

func TestCreate_WritesOrganizationMemberAndMirror(t *testing.T) {
	f := newFixture(t, 0)
	sess := f.signIn(t, "u1")

	org, err := f.svc.Create(context.Background(), sess, orglifecycle.CreateInput{
		Name:        "  <b>Chess</b> Club ",
		Description: "Weekly games",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if org.Name != "Chess Club" || org.NameLower != "chess club" {
		t.Errorf("name = %q / %q", org.Name, org.NameLower)
	}

	stored, ok := f.db.Orgs.Peek(org.ID)
	if !ok {
		t.Fatal("organization not stored")
	}
	if stored.OwnerID != "u1" || stored.Members["u1"] != models.RoleOwner {
		t.Errorf("stored org owner/members = %q %v", stored.OwnerID, stored.Members)
	}
	if m, ok := f.db.Members.Peek(org.ID, "u1"); !ok || m.Role != models.RoleOwner || m.Status != models.MemberActive {
		t.Errorf("owner member record = %+v (found %v)", m, ok)
	}
	if m, _ := f.db.Members.Peek(org.ID, "u1"); m.FirstName != "Test" {
		t.Errorf("owner member record names = %q %q", m.FirstName, m.LastName)
	}
	if u, _ := f.db.Users.Peek("u1"); u.Organizations[org.ID.Hex()] != models.RoleOwner {
		t.Errorf("user mirror = %v", u.Organizations)
	}

	if role, ok := sess.Resolver().CurrentUserRole(org.ID); !ok || role != models.RoleOwner {
		t.Errorf("session role = %q %v", role, ok)
	}
	if ran, _ := sess.AutoReload(context.Background()); ran {
		t.Error("reload after create was not skipped")
	}
	if types := f.db.Audit.Types(); len(types) != 1 || types[0] != audit.EventOrgCreated {
		t.Errorf("audit = %v", types)
	}
}

func TestCreate_ValidationBeforeWrite(t *testing.T) {
	f := newFixture(t, 0)
	sess := f.signIn(t, "u1")

	cases := []orglifecycle.CreateInput{
		{Name: "   "},
		{Name: "<script></script>"},
		{Name: "Ok", IdempotencyKey: "not-a-uuid"},
		{Name: "Ok", Settings: models.OrganizationSettings{DefaultReminderTimes: []int{10, 10}}},
	}
	for _, in := range cases {
		if _, err := f.svc.Create(context.Background(), sess, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Create(%+v) err = %v, want validation", in, err)
		}
	}
	if f.db.Orgs.Calls("Create") != 0 {
		t.Error("store written despite invalid input")
	}
}

func TestCreate_SubOrganizationRequiresManagerOfParent(t *testing.T) {
	f := newFixture(t, 0)
	parent := f.seedOrg("Parent", map[string]string{"boss": models.RoleOwner, "pleb": models.RoleMember, "helper": models.RoleAdmin}, models.OrganizationSettings{})

	pleb := f.signIn(t, "pleb")
	_, err := f.svc.Create(context.Background(), pleb, orglifecycle.CreateInput{Name: "Child", ParentID: &parent.ID})
	if !errors.Is(err, apperr.ErrAuthorizationDenied) {
		t.Fatalf("member err = %v, want denied", err)
	}

	helper := f.signIn(t, "helper")
	child, err := f.svc.Create(context.Background(), helper, orglifecycle.CreateInput{Name: "Child", ParentID: &parent.ID})
	if err != nil {
		t.Fatalf("admin create: %v", err)
	}
	if child.ParentID == nil || *child.ParentID != parent.ID {
		t.Errorf("parent = %v", child.ParentID)
	}
}

func TestCreate_ConcurrentCallsYieldOneOrganization(t *testing.T) {
	f := newFixture(t, 0)
	sess := f.signIn(t, "u1")

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.db.Orgs.BeforeCreate = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Create(context.Background(), sess, orglifecycle.CreateInput{Name: "First"})
		firstErr <- err
	}()
	<-entered

	_, err := f.svc.Create(context.Background(), sess, orglifecycle.CreateInput{Name: "Second"})
	if err != apperr.ErrCreationInProgress {
		t.Errorf("second create err = %v, want creation in progress", err)
	}
	if apperr.Category(err) != apperr.CategoryTryAgain {
		t.Errorf("category = %q, want try_again", apperr.Category(err))
	}

	close(release)
	if err := <-firstErr; err != nil {
		t.Fatalf("first create: %v", err)
	}
	if n := f.db.Orgs.Count(); n != 1 {
		t.Errorf("organizations = %d, want 1", n)
	}
}

func TestCreate_CooldownHoldsLatch(t *testing.T) {
	f := newFixture(t, time.Hour)
	sess := f.signIn(t, "u1")

	if _, err := f.svc.Create(context.Background(), sess, orglifecycle.CreateInput{Name: "One"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := f.svc.Create(context.Background(), sess, orglifecycle.CreateInput{Name: "Two"}); err != apperr.ErrCreationInProgress {
		t.Errorf("create during cooldown err = %v", err)
	}

	other := f.signIn(t, "u2")
	if _, err := f.svc.Create(context.Background(), other, orglifecycle.CreateInput{Name: "Three"}); err != nil {
		t.Errorf("latch leaked across sessions: %v", err)
	}
}

func TestCreate_IdempotencyKeyReturnsExisting(t *testing.T) {
	f := newFixture(t, 0)
	sess := f.signIn(t, "u1")
	key := uuid.NewString()

	first, err := f.svc.Create(context.Background(), sess, orglifecycle.CreateInput{Name: "Once", IdempotencyKey: key})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.svc.Create(context.Background(), sess, orglifecycle.CreateInput{Name: "Once", IdempotencyKey: key})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("ids differ: %s vs %s", first.ID.Hex(), second.ID.Hex())
	}
	if n := f.db.Orgs.Count(); n != 1 {
		t.Errorf("organizations = %d, want 1", n)
	}
}

func TestCreate_MirrorFailureIsReportedWithoutRollback(t *testing.T) {
	f := newFixture(t, 0)
	sess := f.signIn(t, "u1")
	boom := errors.New("primary stepped down")
	f.db.Users.FailNext("SetOrganizationRole", boom)

	org, err := f.svc.Create(context.Background(), sess, orglifecycle.CreateInput{Name: "Half"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if org.ID.IsZero() {
		t.Fatal("created organization not returned")
	}
	if _, ok := f.db.Orgs.Peek(org.ID); !ok {
		t.Error("organization rolled back")
	}
}

func TestCreate_StoreErrorPropagatesUnmodified(t *testing.T) {
	f := newFixture(t, 0)
	sess := f.signIn(t, "u1")
	boom := errors.New("disk full")
	f.db.Orgs.FailNext("Create", boom)

	if _, err := f.svc.Create(context.Background(), sess, orglifecycle.CreateInput{Name: "X"}); err != boom {
		t.Errorf("err = %v, want the store error itself", err)
	}
	// The latch is released (cooldown 0), so a retry goes through.
	if _, err := f.svc.Create(context.Background(), sess, orglifecycle.CreateInput{Name: "X"}); err != nil {
		t.Errorf("retry: %v", err)
	}
}

func TestUpdate_DeepMergesAndRecomputesName(t *testing.T) {
	f := newFixture(t, 0)
	org := f.seedOrg("Old Name", map[string]string{"u1": models.RoleOwner}, models.OrganizationSettings{
		TimeZone: "America/Chicago",
		Extra:    map[string]interface{}{"theme": "dark"},
	})
	sess := f.signIn(t, "u1")

	got, err := f.svc.Update(context.Background(), sess, org.ID, map[string]interface{}{
		"name": "Évian Runners",
		"settings": map[string]interface{}{
			"contact_info":           "desk@example.com",
			"default_reminder_times": []interface{}{float64(60), float64(15)},
		},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "Évian Runners" || got.NameLower != "évian runners" {
		t.Errorf("name = %q / %q", got.Name, got.NameLower)
	}
	if got.NameCI != text.Fold("Évian Runners") {
		t.Errorf("name_ci = %q", got.NameCI)
	}
	if got.Settings.TimeZone != "America/Chicago" {
		t.Errorf("time zone lost: %q", got.Settings.TimeZone)
	}
	if got.Settings.Extra["theme"] != "dark" {
		t.Errorf("free-form setting lost: %v", got.Settings.Extra)
	}
	if got.Settings.ContactInfo != "desk@example.com" {
		t.Errorf("contact = %q", got.Settings.ContactInfo)
	}
	if rt := got.Settings.DefaultReminderTimes; len(rt) != 2 || rt[0] != 15 || rt[1] != 60 {
		t.Errorf("reminder times = %v", rt)
	}
	if got.Members["u1"] != models.RoleOwner {
		t.Errorf("members lost: %v", got.Members)
	}

	stored, _ := f.db.Orgs.Peek(org.ID)
	if stored.Name != "Évian Runners" || stored.Settings.TimeZone != "America/Chicago" {
		t.Errorf("stored = %+v", stored)
	}
	if cur := sess.CurrentOrganization(); cur == nil || cur.Name != "Évian Runners" {
		t.Errorf("session copy not updated: %v", cur)
	}
}

func TestUpdate_Rejections(t *testing.T) {
	f := newFixture(t, 0)
	org := f.seedOrg("Org", map[string]string{"u1": models.RoleOwner, "u2": models.RoleMember}, models.OrganizationSettings{})
	owner := f.signIn(t, "u1")
	member := f.signIn(t, "u2")
	ctx := context.Background()

	if _, err := f.svc.Update(ctx, member, org.ID, map[string]interface{}{"name": "Mine"}); !errors.Is(err, apperr.ErrAuthorizationDenied) {
		t.Errorf("member update err = %v", err)
	}
	for _, patch := range []map[string]interface{}{
		{},
		{"members": map[string]interface{}{"u2": "owner"}},
		{"owner_id": "u2"},
		{"name": ""},
		{"settings": "flat"},
		{"settings": map[string]interface{}{"default_reminder_times": []interface{}{float64(-5)}}},
		{"settings": map[string]interface{}{"time_zone": "Mars/Olympus"}},
	} {
		if _, err := f.svc.Update(ctx, owner, org.ID, patch); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("patch %v err = %v, want validation", patch, err)
		}
	}
	if f.db.Orgs.Calls("UpdateFields") != 0 {
		t.Error("store written despite rejected patches")
	}
}

// racingOrgs applies a membership write right after Update reads the
// organization document, the window a concurrent Assign can land in.
type racingOrgs struct {
	*memstore.Organizations
	afterRead func()
}

func (r *racingOrgs) GetDocument(ctx context.Context, id primitive.ObjectID) (bson.M, error) {
	doc, err := r.Organizations.GetDocument(ctx, id)
	if err == nil && r.afterRead != nil {
		r.afterRead()
		r.afterRead = nil
	}
	return doc, err
}

func TestUpdate_KeepsMembershipWrittenDuringUpdate(t *testing.T) {
	f := newFixture(t, 0)
	org := f.seedOrg("Org", map[string]string{"u1": models.RoleOwner}, models.OrganizationSettings{})
	f.db.Users.Put(models.User{ID: "u2", FirstName: "Grace", SystemRole: models.SystemRoleUser})
	owner := f.signIn(t, "u1")

	ctx := context.Background()
	orgs := &racingOrgs{Organizations: f.db.Orgs, afterRead: func() {
		if err := f.db.Orgs.SetMemberRole(ctx, org.ID, "u2", models.RoleMember); err != nil {
			t.Errorf("SetMemberRole: %v", err)
		}
		if err := f.db.Users.SetOrganizationRole(ctx, "u2", org.ID, models.RoleMember); err != nil {
			t.Errorf("SetOrganizationRole: %v", err)
		}
	}}
	al := auditlog.New(f.db.Audit, zap.NewNop(), auditlog.Config{})
	svc := orglifecycle.New(orgs, f.db.Members, f.db.Users, al, nil, zap.NewNop(), orglifecycle.Config{})

	got, err := svc.Update(ctx, owner, org.ID, map[string]interface{}{"description": "new"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Description != "new" {
		t.Errorf("description = %q", got.Description)
	}
	if got.Members["u2"] != models.RoleMember {
		t.Errorf("returned members = %v, want u2 kept", got.Members)
	}
	if stored, _ := f.db.Orgs.Peek(org.ID); stored.Members["u2"] != models.RoleMember {
		t.Fatalf("stored members = %v, want u2 kept", stored.Members)
	}

	member := f.signIn(t, "u2")
	if orgs := member.UserOrganizations(); len(orgs) != 1 || orgs[0].ID != org.ID {
		t.Errorf("orgs visible to u2 = %v", orgs)
	}
}

func TestUpdate_NullRemovesKey(t *testing.T) {
	f := newFixture(t, 0)
	org := f.seedOrg("Org", map[string]string{"u1": models.RoleOwner}, models.OrganizationSettings{})
	org.Description = "to be cleared"
	f.db.Orgs.Put(org)
	sess := f.signIn(t, "u1")

	got, err := f.svc.Update(context.Background(), sess, org.ID, map[string]interface{}{"description": nil})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Description != "" {
		t.Errorf("description = %q, want cleared", got.Description)
	}
	if got.Name != "Org" || got.Members["u1"] != models.RoleOwner {
		t.Errorf("untouched fields changed: %+v", got)
	}
}

func TestUpdate_SystemAdminNotMember(t *testing.T) {
	f := newFixture(t, 0)
	org := f.seedOrg("Org", map[string]string{"u1": models.RoleOwner}, models.OrganizationSettings{})
	f.db.Users.Put(models.User{ID: "root", SystemRole: models.SystemRoleAdmin})
	root := f.signIn(t, "root")

	if _, err := f.svc.Update(context.Background(), root, org.ID, map[string]interface{}{"description": "curated"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	stored, _ := f.db.Orgs.Peek(org.ID)
	if stored.Description != "curated" {
		t.Errorf("description = %q", stored.Description)
	}
}

func TestDelete_OwnerOnlyAndNoCascade(t *testing.T) {
	f := newFixture(t, 0)
	org := f.seedOrg("Doomed", map[string]string{"u1": models.RoleOwner, "u2": models.RoleAdmin}, models.OrganizationSettings{})
	f.db.Members.Put(models.Member{OrganizationID: org.ID, UserID: "u2", Role: models.RoleAdmin, Status: models.MemberActive, AddedAt: time.Now()})
	admin := f.signIn(t, "u2")
	owner := f.signIn(t, "u1")
	ctx := context.Background()

	if err := f.svc.Delete(ctx, admin, org.ID); !errors.Is(err, apperr.ErrAuthorizationDenied) {
		t.Fatalf("admin delete err = %v, want denied", err)
	}
	if err := f.svc.Delete(ctx, owner, org.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, ok := f.db.Orgs.Peek(org.ID); ok {
		t.Error("organization still stored")
	}
	if u, _ := f.db.Users.Peek("u1"); u.Organizations[org.ID.Hex()] != "" {
		t.Errorf("caller mirror not cleared: %v", u.Organizations)
	}
	if _, ok := f.db.Members.Peek(org.ID, "u2"); !ok {
		t.Error("member records were cascaded")
	}
	if _, ok := owner.Resolver().CurrentUserRole(org.ID); ok {
		t.Error("session still holds a role in the deleted org")
	}
	if len(owner.UserOrganizations()) != 0 {
		t.Error("session still lists the deleted org")
	}

	if err := f.svc.Delete(ctx, owner, org.ID); err == nil {
		t.Error("second delete succeeded")
	}
}

func TestDelete_MirrorFailureDoesNotFail(t *testing.T) {
	f := newFixture(t, 0)
	org := f.seedOrg("Doomed", map[string]string{"u1": models.RoleOwner}, models.OrganizationSettings{})
	owner := f.signIn(t, "u1")
	f.db.Users.FailNext("UnsetOrganization", errors.New("timeout"))

	if err := f.svc.Delete(context.Background(), owner, org.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
