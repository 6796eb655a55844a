// internal/app/features/members/handler.go
package members

import (
	"context"

	"github.com/dalemusser/eventhub/internal/app/features/shared"
	"github.com/dalemusser/eventhub/internal/app/system/directory"
	"github.com/dalemusser/eventhub/internal/app/system/roles"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Directory is the membership service the handlers drive. Implemented by
// *directory.Directory.
type Directory interface {
	LoadOrganizationMembers(ctx context.Context, actor roles.Actor, orgID primitive.ObjectID) ([]models.Member, error)
	Assign(ctx context.Context, actor roles.Actor, userID string, orgID primitive.ObjectID, role string) (models.Member, error)
	Remove(ctx context.Context, actor roles.Actor, userID string, orgID primitive.ObjectID) error
	LoadMembers(ctx context.Context, actor roles.Actor, eventID primitive.ObjectID) (directory.Roster, error)
	AddMember(ctx context.Context, actor roles.Actor, eventID primitive.ObjectID, in directory.AddMemberInput) (directory.AddMemberResult, error)
	UpdateMemberStatus(ctx context.Context, actor roles.Actor, leadID primitive.ObjectID, status string) (models.Lead, error)
}

// Handler serves organization membership, event rosters and lead status.
type Handler struct {
	Sessions  shared.Sessions
	Directory Directory
	Log       *zap.Logger
}

func NewHandler(sessions shared.Sessions, dir Directory, logger *zap.Logger) *Handler {
	return &Handler{
		Sessions:  sessions,
		Directory: dir,
		Log:       logger,
	}
}
