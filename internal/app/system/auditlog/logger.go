// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strings"

	"github.com/dalemusser/eventhub/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for sign-in and sign-out events.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Auth string
	// Admin controls logging for organization, membership and lead changes.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Admin string
}

// Store is the persistence side of the logger.
type Store interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger writes audit events to the store and to zap according to Config.
// A nil *Logger is valid and drops everything, so services can be built
// without auditing in tests.
type Logger struct {
	store  Store
	zapLog *zap.Logger
	config Config
}

func New(store Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{store: store, zapLog: zapLog, config: config}
}

type clientKey struct{}

type client struct {
	ip        string
	userAgent string
}

// WithRequest records the caller's address and user agent on ctx so that
// services deeper in the call chain can attribute their audit events.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, clientKey{}, client{ip: getClientIP(r), userAgent: r.UserAgent()})
}

// Middleware applies WithRequest to every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithRequest(r.Context(), r)))
	})
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// first hop is the original client
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}
	if event.OrganizationID != nil {
		fields = append(fields, zap.String("org_id", event.OrganizationID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAdmin:
		setting = l.config.Admin
	default:
		setting = "all"
	}
	if setting == "off" {
		return
	}

	if c, ok := ctx.Value(clientKey{}).(client); ok {
		if event.IP == "" {
			event.IP = c.ip
		}
		if event.UserAgent == "" {
			event.UserAgent = c.userAgent
		}
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}
	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Authentication Events ---

func (l *Logger) LoginSuccess(ctx context.Context, userID, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    userID,
		Success:   true,
		Details:   map[string]string{"auth_method": "google", "email": email},
	})
}

func (l *Logger) LoginFailed(ctx context.Context, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailed,
		Success:       false,
		FailureReason: reason,
	})
}

func (l *Logger) Logout(ctx context.Context, userID string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		UserID:    userID,
		Success:   true,
	})
}

// --- Organization Events ---

func (l *Logger) OrgCreated(ctx context.Context, actorID string, orgID primitive.ObjectID, orgName string) {
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventOrgCreated,
		ActorID:        actorID,
		OrganizationID: &orgID,
		Success:        true,
		Details:        map[string]string{"org_name": orgName},
	})
}

func (l *Logger) OrgUpdated(ctx context.Context, actorID string, orgID primitive.ObjectID, fieldsChanged string) {
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventOrgUpdated,
		ActorID:        actorID,
		OrganizationID: &orgID,
		Success:        true,
		Details:        map[string]string{"fields_changed": fieldsChanged},
	})
}

func (l *Logger) OrgDeleted(ctx context.Context, actorID string, orgID primitive.ObjectID, orgName string) {
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventOrgDeleted,
		ActorID:        actorID,
		OrganizationID: &orgID,
		Success:        true,
		Details:        map[string]string{"org_name": orgName},
	})
}

// --- Membership Events ---

func (l *Logger) MemberAssigned(ctx context.Context, actorID, userID string, orgID primitive.ObjectID, role string) {
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventMemberAssigned,
		ActorID:        actorID,
		UserID:         userID,
		OrganizationID: &orgID,
		Success:        true,
		Details:        map[string]string{"role": role},
	})
}

func (l *Logger) MemberRemoved(ctx context.Context, actorID, userID string, orgID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventMemberRemoved,
		ActorID:        actorID,
		UserID:         userID,
		OrganizationID: &orgID,
		Success:        true,
	})
}

func (l *Logger) LeadAdded(ctx context.Context, actorID string, orgID, leadID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventLeadAdded,
		ActorID:        actorID,
		OrganizationID: &orgID,
		Success:        true,
		Details:        map[string]string{"lead_id": leadID.Hex()},
	})
}

func (l *Logger) LeadStatusChanged(ctx context.Context, actorID string, orgID, leadID primitive.ObjectID, from, to string) {
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventLeadStatusChanged,
		ActorID:        actorID,
		OrganizationID: &orgID,
		Success:        true,
		Details:        map[string]string{"lead_id": leadID.Hex(), "from": from, "to": to},
	})
}

// RoleMirrorHealed records that a divergent role mirror was rewritten from
// the authoritative member record.
func (l *Logger) RoleMirrorHealed(ctx context.Context, userID string, orgID primitive.ObjectID, side, role string) {
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventRoleMirrorHealed,
		UserID:         userID,
		OrganizationID: &orgID,
		Success:        true,
		Details:        map[string]string{"side": side, "role": role},
	})
}

func (l *Logger) SystemAdminGranted(ctx context.Context, actorID, userID string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventSystemAdminGranted,
		ActorID:   actorID,
		UserID:    userID,
		Success:   true,
	})
}
