// Package session exposes the signed-in user's tenancy session.
package session

import (
	"net/http"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/respond"
	"github.com/dalemusser/eventhub/internal/app/system/tenancy"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.uber.org/zap"
)

type Handler struct {
	Sessions shared.Sessions
	Log      *zap.Logger
}

func NewHandler(sessions shared.Sessions, logger *zap.Logger) *Handler {
	return &Handler{Sessions: sessions, Log: logger}
}

type sessionView struct {
	State               string               `json:"state"`
	Error               string               `json:"error,omitempty"`
	UserID              string               `json:"user_id"`
	SystemRole          string               `json:"system_role,omitempty"`
	Roles               map[string]string    `json:"roles"`
	OrganizationCount   int                  `json:"organization_count"`
	CurrentOrganization *models.Organization `json:"current_organization"`
}

func view(s *tenancy.Session) sessionView {
	st, msg := s.State()
	snap := s.Snapshot()
	roles := snap.Organizations
	if roles == nil {
		roles = map[string]string{}
	}
	return sessionView{
		State:               st.String(),
		Error:               msg,
		UserID:              s.UserID(),
		SystemRole:          snap.SystemRole,
		Roles:               roles,
		OrganizationCount:   len(s.UserOrganizations()),
		CurrentOrganization: s.CurrentOrganization(),
	}
}

// ServeShow handles GET /session.
func (h *Handler) ServeShow(w http.ResponseWriter, r *http.Request) {
	s, err := shared.CurrentSession(r, h.Sessions)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, view(s))
}

// ServeReload handles POST /session/reload.
func (h *Handler) ServeReload(w http.ResponseWriter, r *http.Request) {
	s, err := shared.CurrentSession(r, h.Sessions)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	if err := s.Reload(r.Context()); err != nil {
		h.Log.Warn("session reload failed", zap.String("user_id", s.UserID()), zap.Error(err))
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, view(s))
}
