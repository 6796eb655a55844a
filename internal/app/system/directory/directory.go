// Package directory administers organization membership and the lead pool.
//
// A user's role in an organization lives in three documents:
//
//	organization_members {org_id, user_id}   authoritative
//	organizations.members[user_id]           mirror, used to list a user's orgs
//	users.organizations[org_id]              mirror, used for the role snapshot
//
// Writes set all three with full-value, repeatable updates inside a retried
// unit of work. Reads reconcile: a member record missing fields is
// backfilled, and a mirror that disagrees with the member record is
// rewritten from it.
package directory

import (
	"context"
	"time"

	"github.com/dalemusser/eventhub/internal/app/system/auditlog"
	"github.com/dalemusser/eventhub/internal/app/system/metrics"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type OrgStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Organization, error)
	ListAll(ctx context.Context) ([]models.Organization, error)
	SetMemberRole(ctx context.Context, id primitive.ObjectID, userID, role string) error
	UnsetMember(ctx context.Context, id primitive.ObjectID, userID string) error
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (models.User, error)
	SetOrganizationRole(ctx context.Context, id string, orgID primitive.ObjectID, role string) error
	UnsetOrganization(ctx context.Context, id string, orgID primitive.ObjectID) error
	ListByReferralOrg(ctx context.Context, orgID primitive.ObjectID) ([]models.User, error)
}

type MemberStore interface {
	Set(ctx context.Context, m models.Member) error
	Get(ctx context.Context, orgID primitive.ObjectID, userID string) (models.Member, error)
	Delete(ctx context.Context, orgID primitive.ObjectID, userID string) error
	ListByOrg(ctx context.Context, orgID primitive.ObjectID) ([]models.Member, error)
}

type LeadStore interface {
	Create(ctx context.Context, l models.Lead) (models.Lead, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Lead, error)
	ListByOrg(ctx context.Context, orgID primitive.ObjectID) ([]models.Lead, error)
	ListOpenByContact(ctx context.Context, orgID primitive.ObjectID, phone, email string) ([]models.Lead, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status string, convertedTo *string) error
}

type EventStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Event, error)
}

// RoleSink receives role changes so live sessions see them without a reload.
type RoleSink interface {
	ApplyRole(userID string, orgID primitive.ObjectID, role string)
}

// RetryConfig bounds the membership unit of work.
type RetryConfig struct {
	MaxTries        uint
	InitialInterval time.Duration
}

// Deps are the collaborators of a Directory. Sessions, Audit and Metrics may
// be nil.
type Deps struct {
	Orgs     OrgStore
	Users    UserStore
	Members  MemberStore
	Leads    LeadStore
	Events   EventStore
	Sessions RoleSink
	Audit    *auditlog.Logger
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	Retry    RetryConfig
}

// Directory implements membership administration.
type Directory struct {
	d Deps
}

func New(d Deps) *Directory {
	if d.Retry.MaxTries == 0 {
		d.Retry.MaxTries = 3
	}
	if d.Retry.InitialInterval <= 0 {
		d.Retry.InitialInterval = 100 * time.Millisecond
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Directory{d: d}
}

func (dir *Directory) applyRole(userID string, orgID primitive.ObjectID, role string) {
	if dir.d.Sessions != nil {
		dir.d.Sessions.ApplyRole(userID, orgID, role)
	}
}
