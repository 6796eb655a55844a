// internal/app/features/organizations/handler.go
package organizations

import (
	"context"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/orglifecycle"
	"github.com/dalemusser/eventhub/internal/app/system/tenancy"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Lifecycle creates, updates and deletes organizations. Implemented by
// *orglifecycle.Service.
type Lifecycle interface {
	Create(ctx context.Context, sess *tenancy.Session, in orglifecycle.CreateInput) (models.Organization, error)
	Update(ctx context.Context, sess *tenancy.Session, id primitive.ObjectID, patch map[string]interface{}) (models.Organization, error)
	Delete(ctx context.Context, sess *tenancy.Session, id primitive.ObjectID) error
}

// Handler is the feature-level entry point for Organizations.
type Handler struct {
	Sessions  shared.Sessions
	Lifecycle Lifecycle
	Log       *zap.Logger
}

// NewHandler constructs a new Organizations handler.
func NewHandler(sessions shared.Sessions, lifecycle Lifecycle, logger *zap.Logger) *Handler {
	return &Handler{
		Sessions:  sessions,
		Lifecycle: lifecycle,
		Log:       logger,
	}
}
