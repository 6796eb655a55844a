// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	authgooglefeature "github.com/dalemusser/eventhub/internal/app/features/authgoogle"
	errorsfeature "github.com/dalemusser/eventhub/internal/app/features/errors"
	eventsfeature "github.com/dalemusser/eventhub/internal/app/features/events"
	healthfeature "github.com/dalemusser/eventhub/internal/app/features/health"
	logoutfeature "github.com/dalemusser/eventhub/internal/app/features/logout"
	membersfeature "github.com/dalemusser/eventhub/internal/app/features/members"
	organizationsfeature "github.com/dalemusser/eventhub/internal/app/features/organizations"
	sessionfeature "github.com/dalemusser/eventhub/internal/app/features/session"
	"github.com/dalemusser/eventhub/internal/app/system/auditlog"
	"github.com/dalemusser/eventhub/internal/app/system/auth"
	"github.com/dalemusser/eventhub/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. EventHub serves a JSON API: it applies
// panic recovery, request metrics, audit request context and the session
// cookie, then mounts one router per feature.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc := deps.Services

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	errorsHandler := errorsfeature.NewHandler(logger)

	r := chi.NewRouter()
	r.Use(errorsHandler.Recoverer)
	r.Use(svc.Metrics.Middleware)
	r.Use(auditlog.Middleware)

	// Loads the signed-in user id into context when the cookie is valid.
	r.Use(sessionMgr.LoadSessionUser)

	r.NotFound(errorsHandler.NotFound)
	r.MethodNotAllowed(errorsHandler.MethodNotAllowed)

	// Health check and Prometheus metrics
	healthHandler := healthfeature.NewHandler(deps.MongoClient, svc.Sessions, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/metrics", svc.Metrics.Handler())

	// Authentication
	googleHandler := authgooglefeature.NewHandler(sessionMgr, svc.Sessions, svc.Audit, svc.OAuthStates,
		appCfg.GoogleClientID, appCfg.GoogleClientSecret, appCfg.BaseURL, logger)
	signInLimiter := ratelimit.New(appCfg.SignInRateLimit, time.Minute)
	r.With(ratelimit.Middleware(signInLimiter, logger)).Mount("/auth/google", authgooglefeature.Routes(googleHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, svc.Sessions, svc.Audit, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler))

	// Tenancy session
	sessionHandler := sessionfeature.NewHandler(svc.Sessions, logger)
	r.Mount("/session", sessionfeature.Routes(sessionHandler))

	// Organizations, with membership nested under each organization
	orgHandler := organizationsfeature.NewHandler(svc.Sessions, svc.Lifecycle, logger)
	membersHandler := membersfeature.NewHandler(svc.Sessions, svc.Directory, logger)
	r.Mount("/organizations/{id}/members", membersfeature.OrgRoutes(membersHandler))
	r.Mount("/organizations", organizationsfeature.Routes(orgHandler))

	// Events, their rosters and reminders
	eventsHandler := eventsfeature.NewHandler(svc.Sessions, svc.Events, svc.Orgs, svc.Scheduler, svc.Notifications, logger)
	r.Mount("/events/{id}/members", membersfeature.EventRoutes(membersHandler))
	r.Mount("/events", eventsfeature.Routes(eventsHandler))

	r.Mount("/leads", membersfeature.LeadRoutes(membersHandler))

	return r, nil
}
