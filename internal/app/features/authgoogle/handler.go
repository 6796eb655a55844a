// internal/app/features/authgoogle/handler.go
package authgoogle

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/auditlog"
	"github.com/dalemusser/eventhub/internal/app/system/auth"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
	"github.com/dalemusser/eventhub/internal/app/system/tenancy"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// StateStore keeps OAuth state tokens between the redirect and the callback.
// Implemented by *oauthstate.Store.
type StateStore interface {
	Save(ctx context.Context, state, returnURL string, expiresAt time.Time) error
	Consume(ctx context.Context, state string) (returnURL string, valid bool, err error)
}

// SessionStarter loads the tenancy session for a user who just signed in.
// Implemented by *tenancy.Manager.
type SessionStarter interface {
	SignIn(ctx context.Context, userID string, p models.Profile) (*tenancy.Session, error)
}

// Handler handles Google OAuth authentication.
type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	Sessions   SessionStarter
	AuditLog   *auditlog.Logger
	StateStore StateStore

	// OAuth configuration
	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g., "https://events.example.com/auth/google/callback"

	// Endpoint and UserInfoURL default to Google's.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// NewHandler creates a new Google OAuth handler.
func NewHandler(
	sessionMgr *auth.SessionManager,
	sessions SessionStarter,
	audit *auditlog.Logger,
	stateStore StateStore,
	clientID, clientSecret, baseURL string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Log:          logger,
		SessionMgr:   sessionMgr,
		Sessions:     sessions,
		AuditLog:     audit,
		StateStore:   stateStore,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  strings.TrimRight(baseURL, "/") + "/auth/google/callback",
		Endpoint:     google.Endpoint,
		UserInfoURL:  defaultUserInfoURL,
	}
}

// oauth2Config returns the Google OAuth2 configuration.
func (h *Handler) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.ClientID,
		ClientSecret: h.ClientSecret,
		RedirectURL:  h.RedirectURL,
		Scopes: []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: h.Endpoint,
	}
}

// IsConfigured returns true if Google OAuth is configured.
func (h *Handler) IsConfigured() bool {
	return h.ClientID != "" && h.ClientSecret != ""
}

func signInFailed(msg string) error {
	return &apperr.Error{Kind: apperr.KindAuthenticationRequired, Msg: msg}
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/google                                                             |
| Initiates the Google OAuth flow by redirecting to Google's consent screen.   |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if !h.IsConfigured() {
		h.Log.Warn("Google OAuth not configured")
		respond.Error(w, h.Log, apperr.NotFound("sign-in provider", "google"))
		return
	}

	state, err := generateState()
	if err != nil {
		h.Log.Error("failed to generate OAuth state", zap.Error(err))
		respond.Error(w, h.Log, err)
		return
	}

	returnURL := query.Get(r, "return")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	expiresAt := time.Now().UTC().Add(10 * time.Minute)
	if err := h.StateStore.Save(ctx, state, returnURL, expiresAt); err != nil {
		h.Log.Error("failed to save OAuth state", zap.Error(err))
		respond.Error(w, h.Log, err)
		return
	}

	url := h.oauth2Config().AuthCodeURL(state, oauth2.AccessTypeOnline)

	h.Log.Debug("initiating Google OAuth flow",
		zap.String("redirect_url", url),
		zap.String("return_url", returnURL))

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/google/callback                                                    |
| Exchanges the code, fetches the profile, loads the tenancy session and      |
| writes the session cookie.                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		h.reject(w, r, "google_denied", "google sign-in was denied",
			zap.String("error", errParam), zap.String("description", q.Get("error_description")))
		return
	}

	state := q.Get("state")
	if state == "" {
		h.reject(w, r, "invalid_state", "sign-in state is missing")
		return
	}

	sctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	returnURL, valid, err := h.StateStore.Consume(sctx, state)
	cancel()
	if err != nil {
		h.Log.Error("failed to validate OAuth state", zap.Error(err))
		respond.Error(w, h.Log, err)
		return
	}
	if !valid {
		h.reject(w, r, "invalid_state", "sign-in state is invalid or expired")
		return
	}

	code := q.Get("code")
	if code == "" {
		h.reject(w, r, "invalid_code", "authorization code is missing")
		return
	}

	xctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	token, err := h.oauth2Config().Exchange(xctx, code)
	if err != nil {
		h.reject(w, r, "token_exchange", "could not complete google sign-in", zap.Error(err))
		return
	}

	info, err := h.fetchUserInfo(xctx, token)
	if err != nil {
		h.Log.Error("failed to fetch Google user info", zap.Error(err))
		respond.Error(w, h.Log, err)
		return
	}
	if info.ID == "" {
		h.reject(w, r, "user_info", "google did not return a user id")
		return
	}

	h.createSessionAndRedirect(w, r, info, returnURL)
}

// reject records a failed sign-in attempt and answers 401.
func (h *Handler) reject(w http.ResponseWriter, r *http.Request, reason, msg string, fields ...zap.Field) {
	h.Log.Warn("google sign-in rejected", append([]zap.Field{zap.String("reason", reason)}, fields...)...)
	h.AuditLog.LoginFailed(r.Context(), reason)
	respond.Error(w, h.Log, signInFailed(msg))
}

// googleUserInfo represents user info returned from Google.
type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// fetchUserInfo retrieves user information from the userinfo endpoint.
func (h *Handler) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get(h.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	return &info, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Session creation                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

// createSessionAndRedirect loads the tenancy session, writes the cookie and
// redirects to the destination. A session that fails to load still signs
// the user in; the next request retries the load.
func (h *Handler) createSessionAndRedirect(w http.ResponseWriter, r *http.Request, g *googleUserInfo, returnURL string) {
	ctx := r.Context()

	profile := models.Profile{
		Email:     g.Email,
		FirstName: g.GivenName,
		LastName:  g.FamilyName,
	}
	if _, err := h.Sessions.SignIn(ctx, g.ID, profile); err != nil {
		h.Log.Warn("tenancy session load failed at sign-in",
			zap.String("user_id", g.ID),
			zap.Error(err))
	}

	if err := h.SessionMgr.SignIn(w, r, auth.SessionUser{ID: g.ID, Name: g.Name, Email: g.Email}); err != nil {
		h.Log.Error("save session failed", zap.Error(err), zap.String("user_id", g.ID))
		respond.Error(w, h.Log, err)
		return
	}

	h.AuditLog.LoginSuccess(ctx, g.ID, g.Email)
	h.Log.Info("user logged in via Google OAuth", zap.String("user_id", g.ID))

	http.Redirect(w, r, urlutil.SafeReturn(returnURL, "", "/session"), http.StatusSeeOther)
}

// generateState creates a cryptographically secure random state string.
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
