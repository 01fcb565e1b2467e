package sessions

import (
	"context"

	"github.com/mapster/mapster/backend/go-services/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Repository is the slice of the user store that holds refresh sessions.
// Sessions are embedded in the user record; users.MongoUserRepository and
// users.MemoryUserRepository both satisfy it.
type Repository interface {
	FindByIDAndToken(ctx context.Context, id primitive.ObjectID, token string) (*models.User, error)
	PushSession(ctx context.Context, id primitive.ObjectID, s models.Session, expiredBy int64, max int) error
	PullSession(ctx context.Context, id primitive.ObjectID, token string) error
}
