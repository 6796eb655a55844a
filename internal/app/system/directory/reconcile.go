package directory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/roles"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Mirror sides reported to the audit log.
const (
	SideOrganization = "organization"
	SideUser         = "user"
)

// Report counts what a reconcile pass did.
type Report struct {
	Organizations int `json:"organizations"`
	Members       int `json:"members"`
	Backfilled    int `json:"backfilled"`
	Healed        int `json:"healed"`
	Failed        int `json:"failed"`
}

func (r *Report) add(o Report) {
	r.Organizations += o.Organizations
	r.Members += o.Members
	r.Backfilled += o.Backfilled
	r.Healed += o.Healed
	r.Failed += o.Failed
}

// LoadOrganizationMembers returns the member records of orgID, repairing
// incomplete records and divergent mirrors on the way. Repairs are best
// effort and never fail the read.
func (dir *Directory) LoadOrganizationMembers(ctx context.Context, actor roles.Actor, orgID primitive.ObjectID) ([]models.Member, error) {
	if !actor.CanAccessOrganization(orgID) {
		return nil, apperr.Denied("not a member of %s", orgID.Hex())
	}

	log := dir.d.Log.With(zap.String("org_id", orgID.Hex()))

	gctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "load organization")
	org, err := dir.d.Orgs.GetByID(gctx, orgID)
	cancel()
	if err != nil {
		return nil, apperr.FromStore(err, "organization", orgID.Hex())
	}

	lctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), log, "list members")
	members, err := dir.d.Members.ListByOrg(lctx, orgID)
	cancel()
	if err != nil {
		log.Error("list members failed", zap.Error(err))
		return nil, err
	}

	members, _ = dir.reconcile(ctx, org, members)
	return members, nil
}

// ReconcileOrganization runs the repair pass of LoadOrganizationMembers
// without an actor. Used by the background sweep and the operator CLI.
func (dir *Directory) ReconcileOrganization(ctx context.Context, orgID primitive.ObjectID) (Report, error) {
	gctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	org, err := dir.d.Orgs.GetByID(gctx, orgID)
	cancel()
	if err != nil {
		return Report{}, apperr.FromStore(err, "organization", orgID.Hex())
	}
	lctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	members, err := dir.d.Members.ListByOrg(lctx, orgID)
	cancel()
	if err != nil {
		return Report{}, err
	}
	_, rep := dir.reconcile(ctx, org, members)
	return rep, nil
}

// ReconcileAll sweeps every organization. A failure on one organization is
// counted and the sweep moves on; only a failure to list organizations is
// returned.
func (dir *Directory) ReconcileAll(ctx context.Context) (Report, error) {
	lctx, cancel := context.WithTimeout(ctx, timeouts.Long())
	orgs, err := dir.d.Orgs.ListAll(lctx)
	cancel()
	if err != nil {
		return Report{}, err
	}

	var total Report
	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rep, err := dir.ReconcileOrganization(ctx, org.ID)
		if err != nil {
			dir.d.Log.Warn("reconcile organization failed", zap.String("org_id", org.ID.Hex()), zap.Error(err))
			total.Failed++
			continue
		}
		total.add(rep)
	}
	return total, nil
}

// backfillRole resolves the role of an incomplete member record: the owner
// stays owner, otherwise the organization's mirror is a hint and member is
// the default.
func backfillRole(org models.Organization, userID, role string) string {
	if userID == org.OwnerID {
		return models.RoleOwner
	}
	if models.IsOrgRole(role) {
		return role
	}
	if hint := org.Members[userID]; models.IsOrgRole(hint) {
		return hint
	}
	return models.RoleMember
}

func (dir *Directory) reconcile(ctx context.Context, org models.Organization, members []models.Member) ([]models.Member, Report) {
	rep := Report{Organizations: 1}
	log := dir.d.Log.With(zap.String("org_id", org.ID.Hex()))
	now := time.Now().UTC()

	seen := make(map[string]bool, len(members))
	for i := range members {
		m := &members[i]
		seen[m.UserID] = true
		if !m.NeedsBackfill {
			continue
		}
		m.Role = backfillRole(org, m.UserID, m.Role)
		if m.AddedAt.IsZero() {
			m.AddedAt = org.CreatedAt
			if m.AddedAt.IsZero() {
				m.AddedAt = now
			}
		}
		dir.fillNames(ctx, log, m)
		dir.backfill(ctx, log, *m, &rep)
		m.NeedsBackfill = false
	}

	// Mirror entries with no member record predate member records; the mirror
	// role becomes the record.
	var orphans []string
	for uid := range org.Members {
		if !seen[uid] {
			orphans = append(orphans, uid)
		}
	}
	sort.Strings(orphans)
	for _, uid := range orphans {
		m := models.Member{
			OrganizationID: org.ID,
			UserID:         uid,
			Role:           backfillRole(org, uid, ""),
			Status:         models.MemberActive,
			AddedAt:        org.CreatedAt,
		}
		if m.AddedAt.IsZero() {
			m.AddedAt = now
		}
		dir.fillNames(ctx, log, &m)
		dir.backfill(ctx, log, m, &rep)
		members = append(members, m)
	}

	for _, m := range members {
		rep.Members++
		dir.healOrgMirror(ctx, log, org, m, &rep)
		dir.healUserMirror(ctx, log, org.ID, m, &rep)
	}

	sort.SliceStable(members, func(i, j int) bool {
		if !members[i].AddedAt.Equal(members[j].AddedAt) {
			return members[i].AddedAt.Before(members[j].AddedAt)
		}
		return members[i].UserID < members[j].UserID
	})
	return members, rep
}

// fillNames copies names and email from the user document into a record
// being backfilled. Fields already on the record are kept.
func (dir *Directory) fillNames(ctx context.Context, log *zap.Logger, m *models.Member) {
	if m.FirstName != "" && m.LastName != "" && m.Email != "" {
		return
	}
	gctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	user, err := dir.d.Users.GetByID(gctx, m.UserID)
	cancel()
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			log.Warn("member name lookup failed", zap.String("user_id", m.UserID), zap.Error(err))
		}
		return
	}
	if m.FirstName == "" && m.LastName == "" {
		m.FirstName, m.LastName = user.FirstName, user.LastName
	}
	if m.Email == "" {
		m.Email = user.Email
	}
}

func (dir *Directory) backfill(ctx context.Context, log *zap.Logger, m models.Member, rep *Report) {
	sctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	err := dir.d.Members.Set(sctx, m)
	cancel()
	if err != nil {
		log.Warn("member backfill failed", zap.String("user_id", m.UserID), zap.Error(err))
		rep.Failed++
		return
	}
	rep.Backfilled++
	dir.d.Metrics.IncConsistency("backfilled")
	log.Info("member record backfilled", zap.String("user_id", m.UserID), zap.String("role", m.Role))
}

func (dir *Directory) healOrgMirror(ctx context.Context, log *zap.Logger, org models.Organization, m models.Member, rep *Report) {
	if org.Members[m.UserID] == m.Role {
		return
	}
	dir.divergence(log, SideOrganization, m, org.Members[m.UserID])

	sctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	err := dir.d.Orgs.SetMemberRole(sctx, org.ID, m.UserID, m.Role)
	cancel()
	if err != nil {
		log.Warn("organization mirror heal failed", zap.String("user_id", m.UserID), zap.Error(err))
		rep.Failed++
		return
	}
	dir.healed(ctx, SideOrganization, m, rep)
}

func (dir *Directory) healUserMirror(ctx context.Context, log *zap.Logger, orgID primitive.ObjectID, m models.Member, rep *Report) {
	gctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	user, err := dir.d.Users.GetByID(gctx, m.UserID)
	cancel()
	if errors.Is(err, mongo.ErrNoDocuments) {
		// No account yet; the mirror is written when the user first signs in
		// and is assigned.
		log.Debug("member has no user document", zap.String("user_id", m.UserID))
		return
	}
	if err != nil {
		log.Warn("user mirror check failed", zap.String("user_id", m.UserID), zap.Error(err))
		rep.Failed++
		return
	}
	held := user.Organizations[orgID.Hex()]
	if held == m.Role {
		return
	}
	dir.divergence(log, SideUser, m, held)

	sctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	err = dir.d.Users.SetOrganizationRole(sctx, m.UserID, orgID, m.Role)
	cancel()
	if err != nil {
		log.Warn("user mirror heal failed", zap.String("user_id", m.UserID), zap.Error(err))
		rep.Failed++
		return
	}
	dir.applyRole(m.UserID, orgID, m.Role)
	dir.healed(ctx, SideUser, m, rep)
}

func (dir *Directory) divergence(log *zap.Logger, side string, m models.Member, held string) {
	dir.d.Metrics.IncConsistency("divergence")
	log.Warn("role mirror divergence",
		zap.Error(apperr.Consistency("%s mirror holds %q, member record holds %q", side, held, m.Role)),
		zap.String("user_id", m.UserID),
		zap.String("side", side))
}

func (dir *Directory) healed(ctx context.Context, side string, m models.Member, rep *Report) {
	rep.Healed++
	dir.d.Metrics.IncConsistency("healed")
	dir.d.Audit.RoleMirrorHealed(ctx, m.UserID, m.OrganizationID, side, m.Role)
}
