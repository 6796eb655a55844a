// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/auditlog"
	"github.com/dalemusser/eventhub/internal/app/system/tasks"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built: it
// applies timeouts, builds the services, promotes the configured superadmin
// and starts the background jobs.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
	})

	svc := NewServices(deps.MongoDatabase, appCfg, logger)

	if appCfg.SuperAdminEmail != "" {
		if _, err := PromoteSystemAdmin(ctx, svc.Users, svc.Audit, appCfg.SuperAdminEmail, logger); err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				logger.Error("superadmin promotion failed", zap.Error(err))
				return err
			}
			logger.Warn("superadmin has not signed in yet; promotion retried on next startup",
				zap.String("email", appCfg.SuperAdminEmail))
		}
	}

	svc.Runner = tasks.NewRunner(logger,
		tasks.RoleReconcileJob(svc.Directory, logger, appCfg.RoleReconcileInterval),
		tasks.OAuthStateCleanupJob(svc.OAuthStates, logger),
		tasks.SessionEvictionJob(svc.Sessions, logger, appCfg.SessionIdleTTL),
	)
	svc.Runner.Start()

	*deps.Services = *svc
	return nil
}

// AdminPromoter is the slice of the user store PromoteSystemAdmin needs.
type AdminPromoter interface {
	GetByEmail(ctx context.Context, email string) (models.User, error)
	SetSystemRole(ctx context.Context, id, role string) error
}

// PromoteSystemAdmin gives the user with email the system_admin role. Users
// are created on first sign-in, so an unknown email is apperr.ErrNotFound.
// Promoting an existing admin is a no-op.
func PromoteSystemAdmin(ctx context.Context, users AdminPromoter, audit *auditlog.Logger, email string, logger *zap.Logger) (models.User, error) {
	email = strings.TrimSpace(email)
	log := logger.With(zap.String("email", email))

	gctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "find superadmin")
	u, err := users.GetByEmail(gctx, email)
	cancel()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, apperr.NotFound("user with email", email)
	}
	if err != nil {
		return models.User{}, err
	}
	if u.SystemRole == models.SystemRoleAdmin {
		log.Debug("superadmin already promoted", zap.String("user_id", u.ID))
		return u, nil
	}

	sctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "promote superadmin")
	err = users.SetSystemRole(sctx, u.ID, models.SystemRoleAdmin)
	cancel()
	if err != nil {
		return models.User{}, err
	}
	u.SystemRole = models.SystemRoleAdmin
	audit.SystemAdminGranted(ctx, "system", u.ID)
	log.Info("promoted superadmin", zap.String("user_id", u.ID))
	return u, nil
}
