// Package tenancy holds the per-user session context: the role snapshot, the
// organizations the user can see, and which one is current.
//
// A Session is an explicit object threaded through every tenancy-aware call;
// there is no package-level "current organization".
package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	prefstore "github.com/dalemusser/eventhub/internal/app/store/prefs"
	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/metrics"
	"github.com/dalemusser/eventhub/internal/app/system/roles"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the session lifecycle state.
type State int

const (
	Uninitialized State = iota
	LoadingRoles
	LoadingOrganizations
	Ready
	SwitchingOrg
	Error
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case LoadingRoles:
		return "loading_roles"
	case LoadingOrganizations:
		return "loading_organizations"
	case Ready:
		return "ready"
	case SwitchingOrg:
		return "switching_org"
	case Error:
		return "error"
	}
	return "unknown"
}

// ErrSwitchSuperseded is returned by SwitchOrganization when a later switch
// started before this one resolved. The later call decides the current org.
var ErrSwitchSuperseded = errors.New("organization switch superseded by a later request")

// UserStore is the part of the users store a session needs.
type UserStore interface {
	EnsureDefault(ctx context.Context, id string, p models.Profile) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
}

// OrgStore is the part of the organizations store a session needs.
type OrgStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Organization, error)
	ListAll(ctx context.Context) ([]models.Organization, error)
	ListByMember(ctx context.Context, userID string) ([]models.Organization, error)
}

// EventCounter counts an organization's events.
type EventCounter interface {
	CountByOrganization(ctx context.Context, orgID primitive.ObjectID) (int64, error)
}

// PrefStore is the persistent key/value store for session continuity.
type PrefStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Config tunes session loading.
type Config struct {
	// EventCountConcurrency bounds parallel event-count queries per load.
	EventCountConcurrency int
}

type deps struct {
	users   UserStore
	orgs    OrgStore
	events  EventCounter
	prefs   PrefStore
	log     *zap.Logger
	metrics *metrics.Metrics
	cfg     Config
}

// Session is one user's tenancy context.
type Session struct {
	d       *deps
	userID  string
	profile models.Profile
	log     *zap.Logger

	loadMu sync.Mutex // serializes Load

	mu             sync.Mutex
	state          State
	errMsg         string
	snap           roles.Snapshot
	orgs           []models.Organization
	current        *models.Organization
	skipNextReload bool
	creating       bool
	switchSeq      uint64
}

func newSession(d *deps, userID string, p models.Profile) *Session {
	return &Session{
		d:       d,
		userID:  userID,
		profile: p,
		log:     d.log.With(zap.String("user_id", userID)),
	}
}

// UserID returns the id of the session's user.
func (s *Session) UserID() string { return s.userID }

// State returns the lifecycle state and, in the Error state, the message of
// the failure that caused it.
func (s *Session) State() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.errMsg
}

// Snapshot returns the current role snapshot.
func (s *Session) Snapshot() roles.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Profile returns the user's names and email as stored on the user
// document, falling back to the sign-in claims for fields the document lacks.
func (s *Session) Profile() models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

func profileOf(u models.User, claims models.Profile) models.Profile {
	p := claims
	if u.FirstName != "" || u.LastName != "" {
		p.FirstName, p.LastName = u.FirstName, u.LastName
	}
	if u.Email != "" {
		p.Email = u.Email
	}
	return p
}

// Resolver returns a role resolver over the current snapshot.
func (s *Session) Resolver() roles.Resolver {
	return roles.New(s.Snapshot())
}

// Actor returns the session user as a service caller.
func (s *Session) Actor() roles.Actor {
	return roles.Actor{UserID: s.userID, Resolver: s.Resolver()}
}

// CurrentOrganization returns a copy of the current organization, or nil.
func (s *Session) CurrentOrganization() *models.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	c := *s.current
	return &c
}

// UserOrganizations returns a copy of the visible organizations.
func (s *Session) UserOrganizations() []models.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Organization(nil), s.orgs...)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// fail moves to Error keeping whatever was held before.
func (s *Session) fail(stage string, err error) error {
	s.log.Error("session load failed", zap.String("stage", stage), zap.Error(err))
	s.mu.Lock()
	s.state = Error
	s.errMsg = stage + ": " + err.Error()
	s.mu.Unlock()
	return err
}

// Load runs the full sign-in load: role snapshot (creating the user when
// absent), visible organizations with event counts, and the restored current
// organization. On failure the session enters Error and keeps its previous
// snapshot and organizations.
func (s *Session) Load(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.setState(LoadingRoles)

	uctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "load role snapshot")
	user, err := s.d.users.EnsureDefault(uctx, s.userID, s.profile)
	cancel()
	if err != nil {
		return s.fail("load roles", err)
	}
	snap := roles.SnapshotFromUser(user)

	s.mu.Lock()
	s.snap = snap
	s.profile = profileOf(user, s.profile)
	s.state = LoadingOrganizations
	s.mu.Unlock()

	octx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "load organizations")
	var orgs []models.Organization
	if snap.SystemRole == models.SystemRoleAdmin {
		orgs, err = s.d.orgs.ListAll(octx)
	} else {
		orgs, err = s.d.orgs.ListByMember(octx, s.userID)
	}
	cancel()
	if err != nil {
		return s.fail("load organizations", err)
	}

	s.countEvents(ctx, orgs)
	current := s.restoreCurrent(ctx, orgs)

	s.mu.Lock()
	s.orgs = orgs
	s.current = current
	s.state = Ready
	s.errMsg = ""
	s.mu.Unlock()

	s.log.Debug("session loaded",
		zap.String("system_role", snap.SystemRole),
		zap.Int("organizations", len(orgs)))
	return nil
}

// Reload is an explicit full reload.
func (s *Session) Reload(ctx context.Context) error {
	return s.Load(ctx)
}

// AutoReload is the reload triggered by list views. It consumes the
// skip-next-reload flag set after a local mutation and reports whether a
// reload actually ran.
func (s *Session) AutoReload(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.skipNextReload {
		s.skipNextReload = false
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()
	return true, s.Load(ctx)
}

// MarkSkipNextReload tells the next AutoReload to do nothing, because local
// state already reflects a mutation the store may not yet return.
func (s *Session) MarkSkipNextReload() {
	s.mu.Lock()
	s.skipNextReload = true
	s.mu.Unlock()
}

// countEvents fills EventCount for each org. A failing count degrades that
// org to 0 and never fails the load.
func (s *Session) countEvents(ctx context.Context, orgs []models.Organization) {
	if s.d.events == nil || len(orgs) == 0 {
		return
	}
	var g errgroup.Group
	if n := s.d.cfg.EventCountConcurrency; n > 0 {
		g.SetLimit(n)
	}
	for i := range orgs {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, timeouts.Short())
			defer cancel()
			n, err := s.d.events.CountByOrganization(cctx, orgs[i].ID)
			if err != nil {
				s.log.Warn("event count failed, showing 0",
					zap.String("org_id", orgs[i].ID.Hex()), zap.Error(err))
				s.d.metrics.IncEventCountFailure()
				n = 0
			}
			orgs[i].EventCount = n
			return nil
		})
	}
	_ = g.Wait()
}

// restoreCurrent picks the current organization from, in order: the cached
// snapshot, the last selected id, the first visible org. A persisted id only
// counts when it is still in the fresh list, and the fresh list entry is
// what becomes current.
func (s *Session) restoreCurrent(ctx context.Context, orgs []models.Organization) *models.Organization {
	if len(orgs) == 0 {
		return nil
	}
	find := func(id string) *models.Organization {
		for i := range orgs {
			if orgs[i].ID.Hex() == id {
				o := orgs[i]
				return &o
			}
		}
		return nil
	}

	pctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	if raw, ok, err := s.d.prefs.Get(pctx, prefstore.CurrentOrgKey(s.userID)); err != nil {
		s.log.Warn("read cached current organization failed", zap.Error(err))
	} else if ok {
		var cached models.Organization
		if err := json.Unmarshal([]byte(raw), &cached); err != nil {
			s.log.Debug("cached current organization unreadable", zap.Error(err))
		} else if o := find(cached.ID.Hex()); o != nil {
			return o
		}
	}

	if id, ok, err := s.d.prefs.Get(pctx, prefstore.LastOrgKey(s.userID)); err != nil {
		s.log.Warn("read last organization failed", zap.Error(err))
	} else if ok {
		if o := find(id); o != nil {
			return o
		}
	}

	o := orgs[0]
	return &o
}

// SwitchOrganization makes id the current organization using a fresh read,
// then persists the choice. Overlapping switches are resolved by a sequence
// guard: only the most recently started call may set the current org.
func (s *Session) SwitchOrganization(ctx context.Context, id primitive.ObjectID) (models.Organization, error) {
	s.mu.Lock()
	if !roles.New(s.snap).CanAccessOrganization(id) {
		s.mu.Unlock()
		return models.Organization{}, apperr.Denied("no access to organization %s", id.Hex())
	}
	s.switchSeq++
	seq := s.switchSeq
	s.state = SwitchingOrg
	s.mu.Unlock()

	fctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "switch organization")
	org, err := s.d.orgs.GetByID(fctx, id)
	cancel()

	s.mu.Lock()
	if seq != s.switchSeq {
		s.mu.Unlock()
		return models.Organization{}, ErrSwitchSuperseded
	}
	if err != nil {
		s.state = Ready
		s.mu.Unlock()
		return models.Organization{}, apperr.FromStore(err, "organization", id.Hex())
	}
	for i := range s.orgs {
		if s.orgs[i].ID == id {
			org.EventCount = s.orgs[i].EventCount
			s.orgs[i] = org
		}
	}
	cur := org
	s.current = &cur
	s.state = Ready
	s.mu.Unlock()

	s.persistCurrent(ctx, org)
	return org, nil
}

// persistCurrent stores the last selected id and a snapshot of the org.
// Failures are logged; the in-memory switch already happened.
func (s *Session) persistCurrent(ctx context.Context, org models.Organization) {
	pctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	if err := s.d.prefs.Set(pctx, prefstore.LastOrgKey(s.userID), org.ID.Hex()); err != nil {
		s.log.Warn("persist last organization failed", zap.String("org_id", org.ID.Hex()), zap.Error(err))
	}
	raw, err := json.Marshal(org)
	if err != nil {
		return
	}
	if err := s.d.prefs.Set(pctx, prefstore.CurrentOrgKey(s.userID), string(raw)); err != nil {
		s.log.Warn("persist current organization failed", zap.String("org_id", org.ID.Hex()), zap.Error(err))
	}
}

// RefreshOrganization re-reads one organization. When it no longer exists it
// is dropped from the session, and if it was current the first remaining
// org (or none) becomes current.
func (s *Session) RefreshOrganization(ctx context.Context, id primitive.ObjectID) (models.Organization, error) {
	if !s.Resolver().CanAccessOrganization(id) {
		return models.Organization{}, apperr.Denied("no access to organization %s", id.Hex())
	}

	fctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "refresh organization")
	org, err := s.d.orgs.GetByID(fctx, id)
	cancel()
	if err != nil {
		err = apperr.FromStore(err, "organization", id.Hex())
		if errors.Is(err, apperr.ErrNotFound) {
			s.dropOrganization(id)
		}
		return models.Organization{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.putOrgLocked(org)
	for i := range s.orgs {
		if s.orgs[i].ID == id {
			org = s.orgs[i]
		}
	}
	return org, nil
}

// putOrgLocked replaces or inserts org in the visible list, keeping the held
// event count, and refreshes current when it is the same org.
func (s *Session) putOrgLocked(org models.Organization) {
	found := false
	for i := range s.orgs {
		if s.orgs[i].ID == org.ID {
			org.EventCount = s.orgs[i].EventCount
			s.orgs[i] = org
			found = true
		}
	}
	if !found {
		s.orgs = append(s.orgs, org)
		sort.SliceStable(s.orgs, func(i, j int) bool { return s.orgs[i].NameCI < s.orgs[j].NameCI })
	}
	if s.current != nil && s.current.ID == org.ID {
		c := org
		s.current = &c
	}
}

func (s *Session) dropOrganization(id primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropOrgLocked(id)
}

func (s *Session) dropOrgLocked(id primitive.ObjectID) {
	kept := s.orgs[:0]
	for _, o := range s.orgs {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	s.orgs = kept
	if s.current != nil && s.current.ID == id {
		s.current = nil
		if len(s.orgs) > 0 {
			c := s.orgs[0]
			s.current = &c
		}
	}
}

// ApplyRole updates the role snapshot in place after a membership write so
// authorization reflects it without a reload. An empty role removes the
// membership and the org from the visible list, unless the user is a system
// admin who sees every org anyway.
func (s *Session) ApplyRole(orgID primitive.ObjectID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.snap.Loaded {
		return
	}
	s.snap = s.snap.WithRole(orgID, role)
	if role == "" && s.snap.SystemRole != models.SystemRoleAdmin {
		s.dropOrgLocked(orgID)
	}
}

// AddOrganization records a newly created org and the user's role in it.
// The org becomes current when none is.
func (s *Session) AddOrganization(org models.Organization, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Loaded {
		s.snap = s.snap.WithRole(org.ID, role)
	}
	s.putOrgLocked(org)
	if s.current == nil {
		c := org
		s.current = &c
	}
}

// UpdateOrganization replaces the held copy of org after a local update.
func (s *Session) UpdateOrganization(org models.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orgs {
		if s.orgs[i].ID == org.ID {
			s.putOrgLocked(org)
			return
		}
	}
	if s.current != nil && s.current.ID == org.ID {
		c := org
		s.current = &c
	}
}

// RemoveOrganization forgets a deleted org and the user's role in it.
func (s *Session) RemoveOrganization(id primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Loaded {
		s.snap = s.snap.WithRole(id, "")
	}
	s.dropOrgLocked(id)
}

// BeginCreate takes the organization-creation latch. It fails with
// apperr.ErrCreationInProgress while another create holds it.
func (s *Session) BeginCreate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creating {
		return apperr.ErrCreationInProgress
	}
	s.creating = true
	return nil
}

// EndCreate releases the latch after cooldown.
func (s *Session) EndCreate(cooldown time.Duration) {
	release := func() {
		s.mu.Lock()
		s.creating = false
		s.mu.Unlock()
	}
	if cooldown <= 0 {
		release()
		return
	}
	time.AfterFunc(cooldown, release)
}
