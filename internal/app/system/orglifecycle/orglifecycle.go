// Package orglifecycle creates, updates and deletes organizations on behalf
// of a tenancy session.
//
// Writes go to independent documents without a transaction. A create writes
// the organization, then the owner's member record, then the owner's user
// mirror; a failure after the organization write is reported but not rolled
// back, and the role-mirror sweep repairs the gap.
package orglifecycle

import (
	"context"
	"errors"
	"time"

	organizationstore "github.com/dalemusser/eventhub/internal/app/store/organizations"
	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/auditlog"
	"github.com/dalemusser/eventhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/eventhub/internal/app/system/metrics"
	"github.com/dalemusser/eventhub/internal/app/system/reminders"
	"github.com/dalemusser/eventhub/internal/app/system/tenancy"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// OrgStore is the organizations store.
type OrgStore interface {
	Create(ctx context.Context, org models.Organization) (models.Organization, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Organization, error)
	GetByIdempotencyKey(ctx context.Context, key string) (models.Organization, error)
	GetDocument(ctx context.Context, id primitive.ObjectID) (bson.M, error)
	UpdateFields(ctx context.Context, id primitive.ObjectID, set bson.M, unset []string) (bson.M, error)
	Delete(ctx context.Context, id primitive.ObjectID) (int64, error)
}

// MemberStore is the organization_members store.
type MemberStore interface {
	Set(ctx context.Context, m models.Member) error
}

// UserStore is the users store.
type UserStore interface {
	SetOrganizationRole(ctx context.Context, id string, orgID primitive.ObjectID, role string) error
	UnsetOrganization(ctx context.Context, id string, orgID primitive.ObjectID) error
}

// Config tunes the service.
type Config struct {
	// CreateCooldown is how long the per-session creation latch stays held
	// after a create returns.
	CreateCooldown time.Duration
}

// Service implements organization create/update/delete.
type Service struct {
	orgs    OrgStore
	members MemberStore
	users   UserStore
	audit   *auditlog.Logger
	metrics *metrics.Metrics
	log     *zap.Logger
	cfg     Config
}

func New(orgs OrgStore, members MemberStore, users UserStore, audit *auditlog.Logger, m *metrics.Metrics, logger *zap.Logger, cfg Config) *Service {
	return &Service{
		orgs:    orgs,
		members: members,
		users:   users,
		audit:   audit,
		metrics: m,
		log:     logger,
		cfg:     cfg,
	}
}

// CreateInput is the client-supplied part of a new organization.
type CreateInput struct {
	Name           string                      `json:"name"`
	Description    string                      `json:"description"`
	ParentID       *primitive.ObjectID         `json:"parent_id,omitempty"`
	Settings       models.OrganizationSettings `json:"settings"`
	IdempotencyKey string                      `json:"idempotency_key,omitempty"`
}

// Create makes a new organization owned by the session user.
//
// While one create is in flight (and for the configured cooldown after it)
// the same session gets apperr.ErrCreationInProgress. A repeated
// IdempotencyKey returns the organization created the first time.
func (s *Service) Create(ctx context.Context, sess *tenancy.Session, in CreateInput) (org models.Organization, err error) {
	defer func() { s.metrics.ObserveOrgLifecycle("create", err) }()

	r := sess.Resolver()
	if !r.CanCreateOrganization() {
		return models.Organization{}, apperr.Denied("not allowed to create organizations")
	}
	if in.ParentID != nil && !r.CanCreateSubOrganization(*in.ParentID) {
		return models.Organization{}, apperr.Denied("not allowed to create a sub-organization of %s", in.ParentID.Hex())
	}

	name := htmlsanitize.PlainText(in.Name)
	if name == "" {
		return models.Organization{}, apperr.Invalid("organization name is required")
	}
	if in.IdempotencyKey != "" {
		if _, err := uuid.Parse(in.IdempotencyKey); err != nil {
			return models.Organization{}, apperr.Invalid("idempotency_key must be a UUID")
		}
	}
	settings := in.Settings
	if len(settings.DefaultReminderTimes) > 0 {
		offsets, err := reminders.NormalizeOffsets(settings.DefaultReminderTimes)
		if err != nil {
			return models.Organization{}, err
		}
		settings.DefaultReminderTimes = offsets
	}

	if err := sess.BeginCreate(); err != nil {
		return models.Organization{}, err
	}
	defer sess.EndCreate(s.cfg.CreateCooldown)

	uid := sess.UserID()
	log := s.log.With(zap.String("user_id", uid))

	if in.IdempotencyKey != "" {
		if existing, found, err := s.byIdempotencyKey(ctx, in.IdempotencyKey); err != nil {
			return models.Organization{}, err
		} else if found {
			log.Info("organization create replayed", zap.String("org_id", existing.ID.Hex()))
			return existing, nil
		}
	}

	if in.ParentID != nil {
		pctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "load parent organization")
		_, err := s.orgs.GetByID(pctx, *in.ParentID)
		cancel()
		if err != nil {
			return models.Organization{}, apperr.FromStore(err, "organization", in.ParentID.Hex())
		}
	}

	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "create organization")
	created, err := s.orgs.Create(cctx, models.Organization{
		ParentID:       in.ParentID,
		Name:           name,
		Description:    htmlsanitize.PlainText(in.Description),
		OwnerID:        uid,
		Members:        map[string]string{uid: models.RoleOwner},
		Settings:       settings,
		IdempotencyKey: in.IdempotencyKey,
	})
	cancel()
	if errors.Is(err, organizationstore.ErrDuplicateOrganization) && in.IdempotencyKey != "" {
		if existing, found, ferr := s.byIdempotencyKey(ctx, in.IdempotencyKey); ferr == nil && found {
			return existing, nil
		}
	}
	if err != nil {
		log.Error("create organization failed", zap.Error(err))
		return models.Organization{}, err
	}
	log = log.With(zap.String("org_id", created.ID.Hex()))

	profile := sess.Profile()
	mctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "write owner member")
	err = s.members.Set(mctx, models.Member{
		OrganizationID: created.ID,
		UserID:         uid,
		Role:           models.RoleOwner,
		Status:         models.MemberActive,
		AddedBy:        uid,
		AddedAt:        created.CreatedAt,
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		Email:          profile.Email,
	})
	cancel()
	if err != nil {
		// The members map already names the owner; the next read backfills.
		log.Warn("owner member record not written", zap.Error(err))
	}

	uctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "write owner mirror")
	mirrorErr := s.users.SetOrganizationRole(uctx, uid, created.ID, models.RoleOwner)
	cancel()

	sess.AddOrganization(created, models.RoleOwner)
	sess.MarkSkipNextReload()
	s.audit.OrgCreated(ctx, uid, created.ID, created.Name)

	if mirrorErr != nil {
		log.Error("organization created but owner mirror write failed", zap.Error(mirrorErr))
		s.metrics.IncConsistency("divergence")
		return created, mirrorErr
	}
	log.Info("organization created", zap.String("name", created.Name))
	return created, nil
}

func (s *Service) byIdempotencyKey(ctx context.Context, key string) (models.Organization, bool, error) {
	ictx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "idempotency lookup")
	defer cancel()
	org, err := s.orgs.GetByIdempotencyKey(ictx, key)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Organization{}, false, nil
	}
	if err != nil {
		return models.Organization{}, false, err
	}
	return org, true, nil
}

// Delete removes the organization document. Only the owner or a system
// admin may delete. Member, lead and event documents of the organization are
// left in place.
func (s *Service) Delete(ctx context.Context, sess *tenancy.Session, id primitive.ObjectID) (err error) {
	defer func() { s.metrics.ObserveOrgLifecycle("delete", err) }()

	if !sess.Resolver().CanDeleteOrganization(id) {
		return apperr.Denied("only the owner may delete organization %s", id.Hex())
	}
	uid := sess.UserID()
	log := s.log.With(zap.String("user_id", uid), zap.String("org_id", id.Hex()))

	gctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "load organization")
	org, err := s.orgs.GetByID(gctx, id)
	cancel()
	if err != nil {
		return apperr.FromStore(err, "organization", id.Hex())
	}

	dctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "delete organization")
	n, err := s.orgs.Delete(dctx, id)
	cancel()
	if err != nil {
		log.Error("delete organization failed", zap.Error(err))
		return err
	}
	if n == 0 {
		return apperr.NotFound("organization", id.Hex())
	}

	uctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "unset organization mirror")
	err = s.users.UnsetOrganization(uctx, uid, id)
	cancel()
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		log.Warn("deleted organization left in user mirror", zap.Error(err))
		s.metrics.IncConsistency("divergence")
	}

	sess.RemoveOrganization(id)
	sess.MarkSkipNextReload()
	s.audit.OrgDeleted(ctx, uid, id, org.Name)
	log.Info("organization deleted")
	return nil
}
