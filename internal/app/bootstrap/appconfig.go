// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration; ports, TLS, log level and
// CORS belong to WAFFLE's CoreConfig.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session cookie configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionName   string // Cookie name for sessions (default: eventhub-session)
	SessionDomain string // Cookie domain (blank means current host)

	// BaseURL is the externally visible origin, used for the OAuth callback.
	BaseURL string

	// Google OAuth. Both blank disables sign-in.
	GoogleClientID     string
	GoogleClientSecret string

	// Audit logging modes: "all", "db", "log" or "off".
	AuditLogAuth  string
	AuditLogAdmin string

	// SuperAdminEmail is promoted to system_admin at startup.
	SuperAdminEmail string

	// Tenancy and membership tuning
	OrgCreateCooldown     time.Duration // minimum gap between organization creates per session
	EventCountConcurrency int           // parallel event-count queries per session load
	RoleReconcileInterval time.Duration // role-mirror sweep period; 0 disables the sweep
	SessionIdleTTL        time.Duration // idle in-memory sessions are dropped after this; 0 disables

	// SignInRateLimit caps /auth/google requests per client IP per minute.
	SignInRateLimit int

	// Store round-trip bounds (see system/timeouts)
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
}
