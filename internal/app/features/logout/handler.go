package logout

import (
	"net/http"

	"github.com/dalemusser/eventhub/internal/app/system/auditlog"
	"github.com/dalemusser/eventhub/internal/app/system/auth"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
	"go.uber.org/zap"
)

// SessionDropper forgets a user's tenancy session. Implemented by
// *tenancy.Manager.
type SessionDropper interface {
	Drop(userID string)
}

type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	Sessions   SessionDropper
	AuditLog   *auditlog.Logger
}

func NewHandler(sessionMgr *auth.SessionManager, sessions SessionDropper, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:        logger,
		SessionMgr: sessionMgr,
		Sessions:   sessions,
		AuditLog:   audit,
	}
}

// ServeLogout handles POST /logout.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	if err := h.SessionMgr.SignOut(w, r); err != nil {
		h.Log.Error("logout: save session", zap.Error(err))
	}

	if u != nil {
		if h.Sessions != nil {
			h.Sessions.Drop(u.ID)
		}
		h.AuditLog.Logout(r.Context(), u.ID)
		h.Log.Info("user logged out", zap.String("user_id", u.ID))
	}

	respond.JSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}
