package directory

import (
	"context"
	"errors"
	"sort"
	"strings"

	leadstore "github.com/dalemusser/eventhub/internal/app/store/leads"
	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/eventhub/internal/app/system/roles"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Registered member sources.
const (
	SourceMember   = "member"
	SourceReferral = "referral"
)

// RegisteredMember is one account-backed entry of an event roster.
type RegisteredMember struct {
	UserID      string `json:"user_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Role        string `json:"role,omitempty"`
	Source      string `json:"source"`
}

// Roster is everyone an event's organization can reach.
type Roster struct {
	OrganizationID primitive.ObjectID `json:"org_id"`
	Leads          []models.Lead      `json:"leads"`
	Registered     []RegisteredMember `json:"registered"`
}

// LoadMembers builds the roster for the organization that owns eventID:
// every lead, plus the union of member records and referral users. A user
// present in both appears once, as the referral user. Entries with no name
// at all are dropped.
func (dir *Directory) LoadMembers(ctx context.Context, actor roles.Actor, eventID primitive.ObjectID) (Roster, error) {
	log := dir.d.Log.With(zap.String("event_id", eventID.Hex()))

	ev, err := dir.loadEvent(ctx, log, eventID)
	if err != nil {
		return Roster{}, err
	}
	orgID := ev.OrganizationID
	if !actor.CanAccessOrganization(orgID) {
		return Roster{}, apperr.Denied("not a member of %s", orgID.Hex())
	}
	log = log.With(zap.String("org_id", orgID.Hex()))

	lctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), log, "list leads")
	leads, err := dir.d.Leads.ListByOrg(lctx, orgID)
	cancel()
	if err != nil {
		return Roster{}, err
	}

	mctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), log, "list members")
	members, err := dir.d.Members.ListByOrg(mctx, orgID)
	cancel()
	if err != nil {
		return Roster{}, err
	}
	if needsReconcile(members) {
		gctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		org, oerr := dir.d.Orgs.GetByID(gctx, orgID)
		cancel()
		if oerr == nil {
			members, _ = dir.reconcile(ctx, org, members)
		} else {
			log.Warn("member backfill skipped", zap.Error(oerr))
		}
	}

	rctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), log, "list referral users")
	referrals, err := dir.d.Users.ListByReferralOrg(rctx, orgID)
	cancel()
	if err != nil {
		return Roster{}, err
	}

	if leads == nil {
		leads = []models.Lead{}
	}
	return Roster{
		OrganizationID: orgID,
		Leads:          leads,
		Registered:     mergeRegistered(members, referrals),
	}, nil
}

func needsReconcile(members []models.Member) bool {
	for _, m := range members {
		if m.NeedsBackfill {
			return true
		}
	}
	return false
}

func mergeRegistered(members []models.Member, referrals []models.User) []RegisteredMember {
	byID := make(map[string]RegisteredMember, len(members)+len(referrals))
	for _, m := range members {
		byID[m.UserID] = RegisteredMember{
			UserID:      m.UserID,
			FirstName:   m.FirstName,
			LastName:    m.LastName,
			Email:       m.Email,
			PhoneNumber: m.PhoneNumber,
			Role:        m.Role,
			Source:      SourceMember,
		}
	}
	for _, u := range referrals {
		if u.OnboardExplicitlyFalse() {
			continue
		}
		r := RegisteredMember{
			UserID:      u.ID,
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			Email:       u.Email,
			PhoneNumber: u.PhoneNumber,
			Source:      SourceReferral,
		}
		if prev, ok := byID[u.ID]; ok {
			r.Role = prev.Role
		}
		byID[u.ID] = r
	}

	out := make([]RegisteredMember, 0, len(byID))
	for _, r := range byID {
		if strings.TrimSpace(r.FirstName) == "" && strings.TrimSpace(r.LastName) == "" {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if al, bl := strings.ToLower(a.LastName), strings.ToLower(b.LastName); al != bl {
			return al < bl
		}
		if af, bf := strings.ToLower(a.FirstName), strings.ToLower(b.FirstName); af != bf {
			return af < bf
		}
		return a.UserID < b.UserID
	})
	return out
}

// Member types accepted by AddMember.
const (
	TypeLead   = "lead"
	TypeMember = "member"
)

// AddMemberInput adds either a lead or a registered member to the
// organization that owns an event.
type AddMemberInput struct {
	Type        string `json:"type"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Email       string `json:"email,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Role        string `json:"role,omitempty"`
}

// AddMemberResult holds whichever record AddMember created.
type AddMemberResult struct {
	Lead   *models.Lead   `json:"lead,omitempty"`
	Member *models.Member `json:"member,omitempty"`
}

func (dir *Directory) AddMember(ctx context.Context, actor roles.Actor, eventID primitive.ObjectID, in AddMemberInput) (AddMemberResult, error) {
	typ := strings.ToLower(strings.TrimSpace(in.Type))
	if typ != TypeLead && typ != TypeMember {
		return AddMemberResult{}, apperr.Invalid(`type must be "lead" or "member"`)
	}

	log := dir.d.Log.With(zap.String("event_id", eventID.Hex()))
	ev, err := dir.loadEvent(ctx, log, eventID)
	if err != nil {
		return AddMemberResult{}, err
	}
	orgID := ev.OrganizationID

	if typ == TypeMember {
		role := in.Role
		if strings.TrimSpace(role) == "" {
			role = models.RoleMember
		}
		m, err := dir.Assign(ctx, actor, in.UserID, orgID, role)
		if err != nil {
			return AddMemberResult{}, err
		}
		return AddMemberResult{Member: &m}, nil
	}

	if !actor.CanManageOrganization(orgID) {
		return AddMemberResult{}, apperr.Denied("not allowed to add leads to %s", orgID.Hex())
	}
	lead := models.Lead{
		OrganizationID: orgID,
		FirstName:      htmlsanitize.PlainText(in.FirstName),
		LastName:       htmlsanitize.PlainText(in.LastName),
		PhoneNumber:    strings.TrimSpace(in.PhoneNumber),
		Email:          strings.TrimSpace(in.Email),
		Status:         models.LeadPending,
		ReferralOrgs:   []string{orgID.Hex()},
		CreatedBy:      actor.UserID,
	}
	if lead.FirstName == "" && lead.LastName == "" {
		return AddMemberResult{}, apperr.Invalid("a lead needs a first or last name")
	}
	if lead.PhoneNumber == "" && lead.Email == "" {
		return AddMemberResult{}, apperr.Invalid("a lead needs a phone number or email")
	}

	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "create lead")
	lead, err = dir.d.Leads.Create(cctx, lead)
	cancel()
	if err != nil {
		log.Error("create lead failed", zap.Error(err))
		return AddMemberResult{}, err
	}
	dir.d.Audit.LeadAdded(ctx, actor.UserID, orgID, lead.ID)
	log.Info("lead added", zap.String("lead_id", lead.ID.Hex()), zap.String("org_id", orgID.Hex()))
	return AddMemberResult{Lead: &lead}, nil
}

// UpdateMemberStatus moves a lead to status. Nothing leaves transformed;
// setting the status a lead already has is a no-op.
func (dir *Directory) UpdateMemberStatus(ctx context.Context, actor roles.Actor, leadID primitive.ObjectID, status string) (models.Lead, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !models.IsLeadStatus(status) {
		return models.Lead{}, apperr.Invalid("unknown lead status %q", status)
	}

	log := dir.d.Log.With(zap.String("lead_id", leadID.Hex()))

	gctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "load lead")
	lead, err := dir.d.Leads.GetByID(gctx, leadID)
	cancel()
	if err != nil {
		return models.Lead{}, apperr.FromStore(err, "lead", leadID.Hex())
	}
	if !actor.CanManageOrganization(lead.OrganizationID) {
		return models.Lead{}, apperr.Denied("not allowed to manage leads of %s", lead.OrganizationID.Hex())
	}
	if !models.LeadTransitionAllowed(lead.Status, status) {
		return models.Lead{}, apperr.Invalid("lead is %s and cannot become %s", lead.Status, status)
	}
	if lead.Status == status {
		return lead, nil
	}

	uctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "update lead status")
	err = dir.d.Leads.UpdateStatus(uctx, leadID, status, nil)
	cancel()
	switch {
	case errors.Is(err, leadstore.ErrLeadTransformed):
		return models.Lead{}, apperr.Invalid("lead is transformed and cannot become %s", status)
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.Lead{}, apperr.NotFound("lead", leadID.Hex())
	case err != nil:
		log.Error("update lead status failed", zap.Error(err))
		return models.Lead{}, err
	}

	from := lead.Status
	dir.d.Metrics.IncLeadTransition(status)
	dir.d.Audit.LeadStatusChanged(ctx, actor.UserID, lead.OrganizationID, leadID, from, status)

	rctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	updated, err := dir.d.Leads.GetByID(rctx, leadID)
	cancel()
	if err != nil {
		lead.Status = status
		return lead, nil
	}
	return updated, nil
}

func (dir *Directory) loadEvent(ctx context.Context, log *zap.Logger, eventID primitive.ObjectID) (models.Event, error) {
	gctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "load event")
	ev, err := dir.d.Events.GetByID(gctx, eventID)
	cancel()
	if err != nil {
		return models.Event{}, apperr.FromStore(err, "event", eventID.Hex())
	}
	return ev, nil
}
