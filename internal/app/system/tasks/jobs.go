// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/eventhub/internal/app/system/directory"
	"go.uber.org/zap"
)

// Job is a unit of periodic background work.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration // per run; zero means 30s
	Run      func(ctx context.Context) error
}

// Reconciler sweeps role mirrors. Implemented by *directory.Directory.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (directory.Report, error)
}

// OAuthStateCleaner removes expired OAuth state tokens. Implemented by
// *oauthstate.Store.
type OAuthStateCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// SessionEvicter drops idle in-memory sessions. Implemented by
// *tenancy.Manager.
type SessionEvicter interface {
	EvictIdle(idle time.Duration) int
}

// RoleReconcileJob creates a job that heals divergent membership mirrors
// across every organization.
func RoleReconcileJob(rec Reconciler, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "role-reconcile",
		Interval: interval,
		Timeout:  5 * time.Minute,
		Run: func(ctx context.Context) error {
			rep, err := rec.ReconcileAll(ctx)
			if err != nil {
				return err
			}
			if rep.Backfilled > 0 || rep.Healed > 0 || rep.Failed > 0 {
				logger.Info("role mirrors reconciled",
					zap.Int("organizations", rep.Organizations),
					zap.Int("members", rep.Members),
					zap.Int("backfilled", rep.Backfilled),
					zap.Int("healed", rep.Healed),
					zap.Int("failed", rep.Failed))
			}
			return nil
		},
	}
}

// OAuthStateCleanupJob creates a job that removes expired OAuth state tokens.
// This is a backup for when MongoDB's TTL index cleanup is delayed.
func OAuthStateCleanupJob(stateStore OAuthStateCleaner, logger *zap.Logger) Job {
	return Job{
		Name:     "oauth-state-cleanup",
		Interval: 1 * time.Hour,
		Run: func(ctx context.Context) error {
			count, err := stateStore.CleanupExpired(ctx)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Debug("cleaned up expired OAuth states", zap.Int64("count", count))
			}
			return nil
		},
	}
}

// SessionEvictionJob creates a job that drops sessions unused for idle.
// A zero idle disables the job.
func SessionEvictionJob(ev SessionEvicter, logger *zap.Logger, idle time.Duration) Job {
	var interval time.Duration
	if idle > 0 {
		interval = idle / 4
		if interval < time.Minute {
			interval = time.Minute
		}
	}
	return Job{
		Name:     "session-eviction",
		Interval: interval,
		Run: func(ctx context.Context) error {
			if n := ev.EvictIdle(idle); n > 0 {
				logger.Debug("evicted idle sessions", zap.Int("count", n))
			}
			return nil
		},
	}
}
