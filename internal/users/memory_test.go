package users

import (
	"context"
	"testing"

	"github.com/mapster/mapster/backend/go-services/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMemoryRepository_SessionLifecycle(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()
	u := &models.User{Email: "s@example.com", Password: "hash"}
	require.NoError(t, repo.Create(ctx, u))

	require.NoError(t, repo.PushSession(ctx, u.ID, models.Session{Token: "old", ExpiresAt: 100}, 50, 10))
	require.NoError(t, repo.PushSession(ctx, u.ID, models.Session{Token: "new", ExpiresAt: 500}, 100, 10))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got.Sessions, 1, "session expiring at the prune instant is dropped")
	assert.Equal(t, "new", got.Sessions[0].Token)

	found, err := repo.FindByIDAndToken(ctx, u.ID, "new")
	require.NoError(t, err)
	require.NotNil(t, found)

	missing, err := repo.FindByIDAndToken(ctx, u.ID, "old")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.PullSession(ctx, u.ID, "new"))
	missing, err = repo.FindByIDAndToken(ctx, u.ID, "new")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryRepository_PushSessionCapsOldestFirst(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()
	u := &models.User{Email: "cap@example.com"}
	require.NoError(t, repo.Create(ctx, u))

	for _, tok := range []string{"t1", "t2", "t3", "t4"} {
		require.NoError(t, repo.PushSession(ctx, u.ID, models.Session{Token: tok, ExpiresAt: 1000}, 0, 3))
	}
	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got.Sessions, 3)
	assert.Equal(t, "t2", got.Sessions[0].Token)
	assert.Equal(t, "t4", got.Sessions[2].Token)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()
	u := &models.User{Email: "copy@example.com"}
	require.NoError(t, repo.Create(ctx, u))
	require.NoError(t, repo.PushSession(ctx, u.ID, models.Session{Token: "a", ExpiresAt: 10}, 0, 5))

	got, _ := repo.GetByID(ctx, u.ID)
	got.Sessions[0].Token = "mutated"

	again, _ := repo.GetByID(ctx, u.ID)
	assert.Equal(t, "a", again.Sessions[0].Token)
}

func TestMemoryRepository_UnknownUser(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()
	id := primitive.NewObjectID()
	assert.ErrorIs(t, repo.PushSession(ctx, id, models.Session{Token: "x"}, 0, 1), ErrNotFound)
	assert.ErrorIs(t, repo.PullSession(ctx, id, "x"), ErrNotFound)
	u, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, u)
}
