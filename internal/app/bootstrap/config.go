// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for EventHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: EVENTHUB_MONGO_URI, EVENTHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "eventhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "eventhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},

	// Base URL for the OAuth callback
	{Name: "base_url", Default: "http://localhost:3000", Desc: "Externally visible base URL"},

	// Google OAuth configuration
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// SuperAdmin bootstrap
	{Name: "superadmin_email", Default: "", Desc: "Email of the user promoted to system_admin on startup"},

	// Tenancy and membership
	{Name: "org_create_cooldown", Default: "2s", Desc: "Minimum gap between organization creates in one session"},
	{Name: "event_count_concurrency", Default: 8, Desc: "Parallel event-count queries per session load"},
	{Name: "role_reconcile_interval", Default: "15m", Desc: "Role-mirror sweep interval (0 disables)"},
	{Name: "signin_rate_limit", Default: 20, Desc: "Sign-in requests allowed per client IP per minute"},
	{Name: "session_idle_ttl", Default: "12h", Desc: "Drop in-memory sessions unused this long (0 keeps them until sign-out)"},

	// Store timeouts
	{Name: "timeout_short", Default: "5s", Desc: "Single-document store operations"},
	{Name: "timeout_medium", Default: "10s", Desc: "List queries and multi-step reads"},
	{Name: "timeout_long", Default: "30s", Desc: "Multi-collection operations"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, EVENTHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "EVENTHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),

		BaseURL: appValues.String("base_url"),

		// Google OAuth
		GoogleClientID:     appValues.String("google_client_id"),
		GoogleClientSecret: appValues.String("google_client_secret"),

		// Audit logging
		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogAdmin: appValues.String("audit_log_admin"),

		// SuperAdmin
		SuperAdminEmail: appValues.String("superadmin_email"),

		// Tenancy and membership
		OrgCreateCooldown:     appValues.Duration("org_create_cooldown", 2*time.Second),
		EventCountConcurrency: appValues.Int("event_count_concurrency"),
		RoleReconcileInterval: appValues.Duration("role_reconcile_interval", 15*time.Minute),
		SignInRateLimit:       appValues.Int("signin_rate_limit"),
		SessionIdleTTL:        appValues.Duration("session_idle_ttl", 12*time.Hour),

		// Timeouts
		TimeoutShort:  appValues.Duration("timeout_short", 5*time.Second),
		TimeoutMedium: appValues.Duration("timeout_medium", 10*time.Second),
		TimeoutLong:   appValues.Duration("timeout_long", 30*time.Second),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// EventHub validates the MongoDB URI format to catch configuration errors
// early, before attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.MongoDatabase == "" {
		return errors.New("mongo_database must be set")
	}
	if appCfg.OrgCreateCooldown <= 0 {
		return fmt.Errorf("org_create_cooldown must be positive, got %s", appCfg.OrgCreateCooldown)
	}
	if appCfg.EventCountConcurrency <= 0 {
		return fmt.Errorf("event_count_concurrency must be positive, got %d", appCfg.EventCountConcurrency)
	}
	if appCfg.SignInRateLimit <= 0 {
		return fmt.Errorf("signin_rate_limit must be positive, got %d", appCfg.SignInRateLimit)
	}
	if appCfg.RoleReconcileInterval < 0 {
		return fmt.Errorf("role_reconcile_interval must not be negative, got %s", appCfg.RoleReconcileInterval)
	}
	if appCfg.SessionIdleTTL < 0 {
		return fmt.Errorf("session_idle_ttl must not be negative, got %s", appCfg.SessionIdleTTL)
	}
	if (appCfg.GoogleClientID == "") != (appCfg.GoogleClientSecret == "") {
		return errors.New("google_client_id and google_client_secret must be set together")
	}
	for key, mode := range map[string]string{"audit_log_auth": appCfg.AuditLogAuth, "audit_log_admin": appCfg.AuditLogAdmin} {
		switch mode {
		case "all", "db", "log", "off":
		default:
			return fmt.Errorf("%s must be one of all, db, log, off; got %q", key, mode)
		}
	}
	return nil
}
