package session_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/dalemusser/eventhub/internal/app/features/session"
	"github.com/dalemusser/eventhub/internal/app/system/tenancy"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/dalemusser/eventhub/internal/testutil"
	"github.com/dalemusser/eventhub/internal/testutil/memstore"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type body struct {
	State               string               `json:"state"`
	Error               string               `json:"error"`
	UserID              string               `json:"user_id"`
	Roles               map[string]string    `json:"roles"`
	OrganizationCount   int                  `json:"organization_count"`
	CurrentOrganization *models.Organization `json:"current_organization"`
}

func setup(t *testing.T) (*memstore.DB, http.Handler) {
	t.Helper()
	db := memstore.New()
	mgr := tenancy.NewManager(db.Users, db.Orgs, db.Events, db.Prefs, zap.NewNop(), nil, tenancy.Config{})
	return db, session.Routes(session.NewHandler(mgr, zap.NewNop()))
}

func TestShow_LoadsSessionOnFirstRequest(t *testing.T) {
	db, h := setup(t)
	org := models.Organization{ID: primitive.NewObjectID(), Name: "Club", NameCI: "club", OwnerID: "u1", Members: map[string]string{"u1": models.RoleOwner}}
	db.Orgs.Put(org)
	db.Users.Put(models.User{ID: "u1", SystemRole: models.SystemRoleUser, Organizations: map[string]string{org.ID.Hex(): models.RoleOwner}})

	rec := testutil.NewRecorder()
	h.ServeHTTP(rec, testutil.NewAuthenticatedRequest("GET", "/", testutil.SignedInUser("u1")))
	rec.AssertStatus(t, http.StatusOK)

	var got body
	rec.DecodeJSON(t, &got)
	if got.State != "ready" || got.UserID != "u1" || got.OrganizationCount != 1 {
		t.Errorf("body = %+v", got)
	}
	if got.Roles[org.ID.Hex()] != models.RoleOwner {
		t.Errorf("roles = %v", got.Roles)
	}
	if got.CurrentOrganization == nil || got.CurrentOrganization.ID != org.ID {
		t.Errorf("current = %+v", got.CurrentOrganization)
	}
}

func TestShow_RequiresSignIn(t *testing.T) {
	_, h := setup(t)
	rec := testutil.NewRecorder()
	h.ServeHTTP(rec, testutil.NewRequest("GET", "/"))
	rec.AssertStatus(t, http.StatusUnauthorized)
}

func TestReload_ReportsFailure(t *testing.T) {
	db, h := setup(t)

	rec := testutil.NewRecorder()
	h.ServeHTTP(rec, testutil.NewAuthenticatedRequest("GET", "/", testutil.SignedInUser("u1")))
	rec.AssertStatus(t, http.StatusOK)

	db.Orgs.FailNext("ListByMember", errors.New("timeout"))
	rec = testutil.NewRecorder()
	h.ServeHTTP(rec, testutil.NewAuthenticatedRequest("POST", "/reload", testutil.SignedInUser("u1")))
	rec.AssertStatus(t, http.StatusServiceUnavailable)

	// The failed load is visible, and the next request retries it.
	rec = testutil.NewRecorder()
	h.ServeHTTP(rec, testutil.NewAuthenticatedRequest("GET", "/", testutil.SignedInUser("u1")))
	rec.AssertStatus(t, http.StatusOK)
	var got body
	rec.DecodeJSON(t, &got)
	if got.State != "ready" {
		t.Errorf("state after retry = %q", got.State)
	}
	if !strings.Contains(rec.Body.String(), `"roles":{}`) {
		t.Errorf("roles not an empty object: %s", rec.Body.String())
	}
}
