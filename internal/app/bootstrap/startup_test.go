package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/eventhub/internal/app/store/audit"
	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/auditlog"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/dalemusser/eventhub/internal/testutil"
	"github.com/dalemusser/eventhub/internal/testutil/memstore"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validConfig() AppConfig {
	return AppConfig{
		MongoURI:              "mongodb://localhost:27017",
		MongoDatabase:         "eventhub",
		SessionKey:            "test-session-key-0123456789ABCDEF",
		SessionName:           "eventhub-session",
		BaseURL:               "http://localhost:3000",
		AuditLogAuth:          "all",
		AuditLogAdmin:         "db",
		OrgCreateCooldown:     2 * time.Second,
		EventCountConcurrency: 4,
		SignInRateLimit:       20,
		RoleReconcileInterval: 15 * time.Minute,
		SessionIdleTTL:        12 * time.Hour,
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(&config.CoreConfig{}, validConfig(), testLogger()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"no database", func(c *AppConfig) { c.MongoDatabase = "" }},
		{"zero cooldown", func(c *AppConfig) { c.OrgCreateCooldown = 0 }},
		{"zero concurrency", func(c *AppConfig) { c.EventCountConcurrency = 0 }},
		{"zero sign-in limit", func(c *AppConfig) { c.SignInRateLimit = 0 }},
		{"negative interval", func(c *AppConfig) { c.RoleReconcileInterval = -time.Second }},
		{"negative session ttl", func(c *AppConfig) { c.SessionIdleTTL = -time.Minute }},
		{"google id only", func(c *AppConfig) { c.GoogleClientID = "id" }},
		{"google secret only", func(c *AppConfig) { c.GoogleClientSecret = "secret" }},
		{"bad audit mode", func(c *AppConfig) { c.AuditLogAdmin = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			if err := ValidateConfig(&config.CoreConfig{}, cfg, testLogger()); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestValidateConfig_GoogleBothOrNeither(t *testing.T) {
	cfg := validConfig()
	cfg.GoogleClientID = "id"
	cfg.GoogleClientSecret = "secret"
	if err := ValidateConfig(&config.CoreConfig{}, cfg, testLogger()); err != nil {
		t.Errorf("both credentials rejected: %v", err)
	}
}

func TestPromoteSystemAdmin_PromotesExisting(t *testing.T) {
	db := memstore.New()
	db.Users.Put(models.User{ID: "g-1", Email: "Ada@Example.com", EmailCI: "ada@example.com", SystemRole: models.SystemRoleUser, Organizations: map[string]string{}})
	al := auditlog.New(db.Audit, testLogger(), auditlog.Config{Auth: "off", Admin: "db"})

	u, err := PromoteSystemAdmin(context.Background(), db.Users, al, " ada@example.com ", testLogger())
	if err != nil {
		t.Fatalf("PromoteSystemAdmin: %v", err)
	}
	if u.SystemRole != models.SystemRoleAdmin {
		t.Errorf("returned role = %q", u.SystemRole)
	}
	if stored, _ := db.Users.Peek("g-1"); stored.SystemRole != models.SystemRoleAdmin {
		t.Errorf("stored role = %q", stored.SystemRole)
	}
	if types := db.Audit.Types(); len(types) != 1 || types[0] != audit.EventSystemAdminGranted {
		t.Errorf("audit = %v", types)
	}

	// A second promotion changes nothing.
	if _, err := PromoteSystemAdmin(context.Background(), db.Users, al, "ada@example.com", testLogger()); err != nil {
		t.Fatalf("second PromoteSystemAdmin: %v", err)
	}
	if n := len(db.Audit.Types()); n != 1 {
		t.Errorf("audit events after repeat = %d", n)
	}
}

func TestPromoteSystemAdmin_UnknownEmail(t *testing.T) {
	db := memstore.New()
	_, err := PromoteSystemAdmin(context.Background(), db.Users, nil, "nobody@example.com", testLogger())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestPromoteSystemAdmin_StoreError(t *testing.T) {
	db := memstore.New()
	db.Users.Put(models.User{ID: "g-1", EmailCI: "ada@example.com", SystemRole: models.SystemRoleUser, Organizations: map[string]string{}})
	db.Users.FailNext("SetSystemRole", errors.New("not primary"))

	_, err := PromoteSystemAdmin(context.Background(), db.Users, nil, "ada@example.com", testLogger())
	if err == nil || errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want the store error", err)
	}
}

func TestBuildHandler_Routes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := validConfig()
	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db, Services: NewServices(db, cfg, testLogger())}

	h, err := BuildHandler(&config.CoreConfig{}, cfg, deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler: %v", err)
	}

	cases := []struct {
		method, target string
		want           int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/metrics", http.StatusOK},
		{"GET", "/session", http.StatusUnauthorized},
		{"GET", "/organizations", http.StatusUnauthorized},
		{"GET", "/organizations/0123456789abcdef01234567/members", http.StatusUnauthorized},
		{"POST", "/events", http.StatusUnauthorized},
		{"GET", "/auth/google", http.StatusNotFound},
		{"GET", "/no-such-page", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := testutil.NewRecorder()
		h.ServeHTTP(rec, testutil.NewRequest(tc.method, tc.target))
		if rec.Code != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.target, rec.Code, tc.want)
		}
	}
}
