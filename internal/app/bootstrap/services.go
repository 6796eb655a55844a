// internal/app/bootstrap/services.go
package bootstrap

import (
	"github.com/dalemusser/eventhub/internal/app/store/audit"
	eventstore "github.com/dalemusser/eventhub/internal/app/store/events"
	leadstore "github.com/dalemusser/eventhub/internal/app/store/leads"
	notificationstore "github.com/dalemusser/eventhub/internal/app/store/notifications"
	"github.com/dalemusser/eventhub/internal/app/store/oauthstate"
	organizationstore "github.com/dalemusser/eventhub/internal/app/store/organizations"
	memberstore "github.com/dalemusser/eventhub/internal/app/store/orgmembers"
	prefstore "github.com/dalemusser/eventhub/internal/app/store/prefs"
	userstore "github.com/dalemusser/eventhub/internal/app/store/users"
	"github.com/dalemusser/eventhub/internal/app/system/auditlog"
	"github.com/dalemusser/eventhub/internal/app/system/directory"
	"github.com/dalemusser/eventhub/internal/app/system/metrics"
	"github.com/dalemusser/eventhub/internal/app/system/orglifecycle"
	"github.com/dalemusser/eventhub/internal/app/system/reminders"
	"github.com/dalemusser/eventhub/internal/app/system/tasks"
	"github.com/dalemusser/eventhub/internal/app/system/tenancy"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Services is the process-wide object graph: one store per collection and
// the services built on them.
type Services struct {
	Metrics *metrics.Metrics
	Audit   *auditlog.Logger

	Users         *userstore.Store
	Orgs          *organizationstore.Store
	Members       *memberstore.Store
	Leads         *leadstore.Store
	Events        *eventstore.Store
	Notifications *notificationstore.Store
	Prefs         *prefstore.Store
	OAuthStates   *oauthstate.Store

	Sessions  *tenancy.Manager
	Lifecycle *orglifecycle.Service
	Directory *directory.Directory
	Scheduler *reminders.Scheduler

	// Runner is set by Startup once background jobs are running.
	Runner *tasks.Runner
}

// NewServices builds the stores and services over db. The operator CLI uses
// it too, so nothing here starts goroutines.
func NewServices(db *mongo.Database, appCfg AppConfig, logger *zap.Logger) *Services {
	m := metrics.New()
	s := &Services{
		Metrics:       m,
		Audit:         auditlog.New(audit.New(db), logger, auditlog.Config{Auth: appCfg.AuditLogAuth, Admin: appCfg.AuditLogAdmin}),
		Users:         userstore.New(db),
		Orgs:          organizationstore.New(db),
		Members:       memberstore.New(db),
		Leads:         leadstore.New(db),
		Events:        eventstore.New(db),
		Notifications: notificationstore.New(db),
		Prefs:         prefstore.New(db),
		OAuthStates:   oauthstate.New(db),
	}

	s.Sessions = tenancy.NewManager(s.Users, s.Orgs, s.Events, s.Prefs, logger, m, tenancy.Config{
		EventCountConcurrency: appCfg.EventCountConcurrency,
	})
	s.Lifecycle = orglifecycle.New(s.Orgs, s.Members, s.Users, s.Audit, m, logger, orglifecycle.Config{
		CreateCooldown: appCfg.OrgCreateCooldown,
	})
	s.Directory = directory.New(directory.Deps{
		Orgs:     s.Orgs,
		Users:    s.Users,
		Members:  s.Members,
		Leads:    s.Leads,
		Events:   s.Events,
		Sessions: s.Sessions,
		Audit:    s.Audit,
		Metrics:  m,
		Log:      logger,
	})
	s.Scheduler = reminders.New(s.Notifications, logger, m)
	return s
}
