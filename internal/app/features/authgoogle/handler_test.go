package authgoogle_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/eventhub/internal/app/features/authgoogle"
	"github.com/dalemusser/eventhub/internal/app/store/audit"
	"github.com/dalemusser/eventhub/internal/app/system/auditlog"
	"github.com/dalemusser/eventhub/internal/app/system/auth"
	"github.com/dalemusser/eventhub/internal/app/system/tenancy"
	"github.com/dalemusser/eventhub/internal/testutil/memstore"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type memStates struct {
	mu     sync.Mutex
	states map[string]string
}

func (m *memStates) Save(ctx context.Context, state, returnURL string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states == nil {
		m.states = map[string]string{}
	}
	m.states[state] = returnURL
	return nil
}

func (m *memStates) Consume(ctx context.Context, state string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret, ok := m.states[state]
	delete(m.states, state)
	return ret, ok, nil
}

type env struct {
	h      *authgoogle.Handler
	db     *memstore.DB
	mgr    *tenancy.Manager
	states *memStates
	sm     *auth.SessionManager
}

// fakeGoogle serves the token and userinfo endpoints.
func fakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "g-123",
			"email":       "ada@example.com",
			"name":        "Ada Lovelace",
			"given_name":  "Ada",
			"family_name": "Lovelace",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newEnv(t *testing.T, clientID string) *env {
	t.Helper()
	logger := zap.NewNop()
	sm, err := auth.NewSessionManager("test-session-key-for-testing-only-0123456789", "test-session", "", false, logger)
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	db := memstore.New()
	mgr := tenancy.NewManager(db.Users, db.Orgs, db.Events, db.Prefs, logger, nil, tenancy.Config{})
	al := auditlog.New(db.Audit, logger, auditlog.Config{Auth: "all", Admin: "all"})
	states := &memStates{}

	h := authgoogle.NewHandler(sm, mgr, al, states, clientID, "test-client-secret", "http://localhost:8080/", logger)
	srv := fakeGoogle(t)
	h.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	h.UserInfoURL = srv.URL + "/userinfo"
	return &env{h: h, db: db, mgr: mgr, states: states, sm: sm}
}

func TestIsConfigured(t *testing.T) {
	if !newEnv(t, "test-client-id").h.IsConfigured() {
		t.Error("IsConfigured() should return true with client ID and secret")
	}
	if newEnv(t, "").h.IsConfigured() {
		t.Error("IsConfigured() should return false without a client ID")
	}
}

func TestServeLogin_NotConfigured(t *testing.T) {
	e := newEnv(t, "")
	rec := httptest.NewRecorder()
	e.h.ServeLogin(rec, httptest.NewRequest("GET", "/auth/google", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServeLogin_RedirectsWithStoredState(t *testing.T) {
	e := newEnv(t, "test-client-id")
	rec := httptest.NewRecorder()
	e.h.ServeLogin(rec, httptest.NewRequest("GET", "/auth/google?return=/organizations", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad Location: %v", err)
	}
	q := loc.Query()
	if q.Get("client_id") != "test-client-id" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("redirect_uri") != "http://localhost:8080/auth/google/callback" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	state := q.Get("state")
	if ret, ok := e.states.states[state]; !ok || ret != "/organizations" {
		t.Errorf("stored state = %q %v", ret, ok)
	}
}

func TestServeCallback_SignsInAndLoadsSession(t *testing.T) {
	e := newEnv(t, "test-client-id")
	_ = e.states.Save(context.Background(), "st-1", "/organizations", time.Now().Add(time.Minute))

	rec := httptest.NewRecorder()
	e.h.ServeCallback(rec, httptest.NewRequest("GET", "/auth/google/callback?state=st-1&code=good-code", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303 (body %s)", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/organizations" {
		t.Errorf("Location = %q", loc)
	}

	u, ok := e.db.Users.Peek("g-123")
	if !ok || u.FirstName != "Ada" || u.Email != "ada@example.com" {
		t.Errorf("user doc = %+v (found %v)", u, ok)
	}
	s, ok := e.mgr.Lookup("g-123")
	if !ok {
		t.Fatal("no tenancy session")
	}
	if st, _ := s.State(); st != tenancy.Ready {
		t.Errorf("session state = %s", st)
	}

	// The cookie authenticates the next request.
	next := httptest.NewRequest("GET", "/session", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	var got *auth.SessionUser
	e.sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.CurrentUser(r)
	})).ServeHTTP(httptest.NewRecorder(), next)
	if got == nil || got.ID != "g-123" {
		t.Errorf("cookie user = %+v", got)
	}

	if types := e.db.Audit.Types(); len(types) != 1 || types[0] != audit.EventLoginSuccess {
		t.Errorf("audit = %v", types)
	}
}

func TestServeCallback_Failures(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"provider error", "/auth/google/callback?error=access_denied", http.StatusUnauthorized},
		{"missing state", "/auth/google/callback?code=good-code", http.StatusUnauthorized},
		{"unknown state", "/auth/google/callback?state=nope&code=good-code", http.StatusUnauthorized},
		{"missing code", "/auth/google/callback?state=st-1", http.StatusUnauthorized},
		{"bad code", "/auth/google/callback?state=st-1&code=bad-code", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, "test-client-id")
			_ = e.states.Save(context.Background(), "st-1", "", time.Now().Add(time.Minute))

			rec := httptest.NewRecorder()
			e.h.ServeCallback(rec, httptest.NewRequest("GET", tc.target, nil))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), `"sign_in"`) {
				t.Errorf("body = %s", rec.Body.String())
			}
			if e.mgr.Len() != 0 {
				t.Error("tenancy session created on failure")
			}
		})
	}
}

func TestServeCallback_StateIsSingleUse(t *testing.T) {
	e := newEnv(t, "test-client-id")
	_ = e.states.Save(context.Background(), "st-1", "", time.Now().Add(time.Minute))

	rec := httptest.NewRecorder()
	e.h.ServeCallback(rec, httptest.NewRequest("GET", "/auth/google/callback?state=st-1&code=good-code", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("first callback status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/session" {
		t.Errorf("default Location = %q", loc)
	}

	rec = httptest.NewRecorder()
	e.h.ServeCallback(rec, httptest.NewRequest("GET", "/auth/google/callback?state=st-1&code=good-code", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("replayed callback status = %d", rec.Code)
	}
}

func TestRoutes(t *testing.T) {
	e := newEnv(t, "test-client-id")
	rec := httptest.NewRecorder()
	authgoogle.Routes(e.h).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusTemporaryRedirect {
		t.Errorf("GET / status = %d", rec.Code)
	}
}
