package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/roles"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type step func(ctx context.Context) error

// unitOfWork runs steps in order, retrying the whole sequence with
// exponential backoff. Every step is a full-value write, so repeating steps
// that already succeeded is harmless. Missing documents and validation
// failures are not retried. The error of the last failed step is returned
// unmodified.
func (dir *Directory) unitOfWork(ctx context.Context, op string, steps ...step) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = dir.d.Retry.InitialInterval

	var lastErr error
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		for _, st := range steps {
			sctx, cancel := context.WithTimeout(ctx, timeouts.Short())
			err := st(sctx)
			cancel()
			if err == nil {
				continue
			}
			lastErr = err
			if !retryable(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			dir.d.Log.Warn("membership write failed, retrying",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(dir.d.Retry.MaxTries))
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, mongo.ErrNoDocuments) || errors.Is(err, context.Canceled) {
		return false
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindAuthorizationDenied:
		return false
	}
	return true
}

// Assign gives userID the role in orgID, writing the member record and both
// mirrors. The user's live session, if any, sees the role immediately.
// Open leads of the organization that match the user's phone number or email
// are marked transformed.
func (dir *Directory) Assign(ctx context.Context, actor roles.Actor, userID string, orgID primitive.ObjectID, role string) (member models.Member, err error) {
	defer func() { dir.d.Metrics.ObserveMembershipWrite("assign", err) }()

	userID = strings.TrimSpace(userID)
	role = strings.ToLower(strings.TrimSpace(role))
	if userID == "" {
		return models.Member{}, apperr.Invalid("user id is required")
	}
	if role != models.RoleAdmin && role != models.RoleMember {
		return models.Member{}, apperr.Invalid(`role must be "admin" or "member"`)
	}
	if !actor.CanManageOrganization(orgID) {
		return models.Member{}, apperr.Denied("not allowed to manage members of %s", orgID.Hex())
	}

	log := dir.d.Log.With(zap.String("org_id", orgID.Hex()), zap.String("user_id", userID), zap.String("actor_id", actor.UserID))

	gctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "load organization")
	org, err := dir.d.Orgs.GetByID(gctx, orgID)
	cancel()
	if err != nil {
		return models.Member{}, apperr.FromStore(err, "organization", orgID.Hex())
	}
	if userID == org.OwnerID {
		return models.Member{}, apperr.Invalid("the owner's role cannot be changed")
	}

	uctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "load user")
	user, err := dir.d.Users.GetByID(uctx, userID)
	cancel()
	if err != nil {
		return models.Member{}, apperr.FromStore(err, "user", userID)
	}

	member = models.Member{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
		Status:         models.MemberActive,
		AddedBy:        actor.UserID,
		AddedAt:        time.Now().UTC(),
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		Email:          user.Email,
		PhoneNumber:    user.PhoneNumber,
	}
	mctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	if prev, perr := dir.d.Members.Get(mctx, orgID, userID); perr == nil && !prev.AddedAt.IsZero() {
		member.AddedAt = prev.AddedAt
		member.AddedBy = prev.AddedBy
	}
	cancel()

	// The member record is written first and is the commit point; mirrors
	// that miss a write are repaired from it on the next read.
	err = dir.unitOfWork(ctx, "assign",
		func(ctx context.Context) error { return dir.d.Members.Set(ctx, member) },
		func(ctx context.Context) error { return dir.d.Orgs.SetMemberRole(ctx, orgID, userID, role) },
		func(ctx context.Context) error { return dir.d.Users.SetOrganizationRole(ctx, userID, orgID, role) },
	)
	if err != nil {
		log.Error("assign member failed", zap.Error(err))
		return models.Member{}, err
	}

	dir.applyRole(userID, orgID, role)
	dir.d.Audit.MemberAssigned(ctx, actor.UserID, userID, orgID, role)
	log.Info("member assigned", zap.String("role", role))

	dir.convertLeads(ctx, actor, orgID, user)
	return member, nil
}

// convertLeads marks the organization's open leads that match the user as
// transformed. Best effort: failures are logged.
func (dir *Directory) convertLeads(ctx context.Context, actor roles.Actor, orgID primitive.ObjectID, user models.User) {
	log := dir.d.Log.With(zap.String("org_id", orgID.Hex()), zap.String("user_id", user.ID))

	lctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	leads, err := dir.d.Leads.ListOpenByContact(lctx, orgID, user.PhoneNumber, user.Email)
	cancel()
	if err != nil {
		log.Warn("lead conversion lookup failed", zap.Error(err))
		return
	}
	uid := user.ID
	for _, l := range leads {
		uctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		err := dir.d.Leads.UpdateStatus(uctx, l.ID, models.LeadTransformed, &uid)
		cancel()
		if err != nil {
			log.Warn("lead conversion failed", zap.String("lead_id", l.ID.Hex()), zap.Error(err))
			continue
		}
		dir.d.Metrics.IncLeadTransition(models.LeadTransformed)
		dir.d.Audit.LeadStatusChanged(ctx, actor.UserID, orgID, l.ID, l.Status, models.LeadTransformed)
		log.Info("lead converted", zap.String("lead_id", l.ID.Hex()))
	}
}

// Remove takes userID out of orgID, reversing the three writes of Assign.
// Managers may remove anyone but the owner; any member may remove themself.
func (dir *Directory) Remove(ctx context.Context, actor roles.Actor, userID string, orgID primitive.ObjectID) (err error) {
	defer func() { dir.d.Metrics.ObserveMembershipWrite("remove", err) }()

	if userID == "" {
		return apperr.Invalid("user id is required")
	}
	self := userID == actor.UserID
	if !actor.CanManageOrganization(orgID) && !(self && actor.CanAccessOrganization(orgID)) {
		return apperr.Denied("not allowed to remove members of %s", orgID.Hex())
	}

	log := dir.d.Log.With(zap.String("org_id", orgID.Hex()), zap.String("user_id", userID), zap.String("actor_id", actor.UserID))

	gctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "load organization")
	org, err := dir.d.Orgs.GetByID(gctx, orgID)
	cancel()
	if err != nil {
		return apperr.FromStore(err, "organization", orgID.Hex())
	}
	if userID == org.OwnerID {
		return apperr.Invalid("the owner cannot be removed")
	}

	// The member record goes last. A remove that fails part way leaves the
	// record in place and the next reconcile restores the mirrors.
	err = dir.unitOfWork(ctx, "remove",
		func(ctx context.Context) error {
			err := dir.d.Users.UnsetOrganization(ctx, userID, orgID)
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil
			}
			return err
		},
		func(ctx context.Context) error { return dir.d.Orgs.UnsetMember(ctx, orgID, userID) },
		func(ctx context.Context) error { return dir.d.Members.Delete(ctx, orgID, userID) },
	)
	if err != nil {
		log.Error("remove member failed", zap.Error(err))
		return apperr.FromStore(err, "organization", orgID.Hex())
	}

	dir.applyRole(userID, orgID, "")
	dir.d.Audit.MemberRemoved(ctx, actor.UserID, userID, orgID)
	log.Info("member removed")
	return nil
}
