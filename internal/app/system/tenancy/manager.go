package tenancy

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/eventhub/internal/app/system/metrics"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Manager keeps one Session per signed-in user for the life of the process.
type Manager struct {
	d *deps

	mu       sync.Mutex
	sessions map[string]*Session
	lastUsed map[string]time.Time
	now      func() time.Time
}

// NewManager wires the stores a session loads from.
func NewManager(users UserStore, orgs OrgStore, events EventCounter, prefs PrefStore, logger *zap.Logger, m *metrics.Metrics, cfg Config) *Manager {
	if cfg.EventCountConcurrency <= 0 {
		cfg.EventCountConcurrency = 8
	}
	return &Manager{
		d: &deps{
			users:   users,
			orgs:    orgs,
			events:  events,
			prefs:   prefs,
			log:     logger,
			metrics: m,
			cfg:     cfg,
		},
		sessions: make(map[string]*Session),
		lastUsed: make(map[string]time.Time),
		now:      time.Now,
	}
}

// SignIn starts a fresh session for userID with the provider's profile claims
// and loads it. Any previous session for the user is replaced.
func (m *Manager) SignIn(ctx context.Context, userID string, p models.Profile) (*Session, error) {
	s := newSession(m.d, userID, p)
	m.mu.Lock()
	m.sessions[userID] = s
	m.lastUsed[userID] = m.now()
	n := len(m.sessions)
	m.mu.Unlock()
	m.d.metrics.SetActiveSessions(n)

	return s, s.Load(ctx)
}

// Session returns the user's session, loading it when it is new or when its
// last load failed.
func (m *Manager) Session(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		s = newSession(m.d, userID, models.Profile{})
		m.sessions[userID] = s
	}
	m.lastUsed[userID] = m.now()
	n := len(m.sessions)
	m.mu.Unlock()
	m.d.metrics.SetActiveSessions(n)

	if st, _ := s.State(); st == Uninitialized || st == Error {
		if err := s.Load(ctx); err != nil {
			return s, err
		}
	}
	return s, nil
}

// Lookup returns an existing session without loading.
func (m *Manager) Lookup(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Drop forgets the user's session (sign-out).
func (m *Manager) Drop(userID string) {
	m.mu.Lock()
	delete(m.sessions, userID)
	delete(m.lastUsed, userID)
	n := len(m.sessions)
	m.mu.Unlock()
	m.d.metrics.SetActiveSessions(n)
}

// EvictIdle drops sessions not requested through SignIn or Session for
// longer than idle and returns how many were dropped. A request for an
// evicted user builds and loads a fresh session.
func (m *Manager) EvictIdle(idle time.Duration) int {
	m.mu.Lock()
	cutoff := m.now().Add(-idle)
	evicted := 0
	for uid := range m.sessions {
		if m.lastUsed[uid].Before(cutoff) {
			delete(m.sessions, uid)
			delete(m.lastUsed, uid)
			evicted++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()
	m.d.metrics.SetActiveSessions(n)
	return evicted
}

// Len reports how many sessions are held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ApplyRole pushes a membership change into the affected user's live
// session, if there is one. It lets an admin's assignment take effect for the
// target user without a reload.
func (m *Manager) ApplyRole(userID string, orgID primitive.ObjectID, role string) {
	if s, ok := m.Lookup(userID); ok {
		s.ApplyRole(orgID, role)
	}
}
