package repository

import (
	"context"
	"testing"

	"github.com/mapster/mapster/backend/go-services/internal/document"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMemoryRepoCRUD(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	owner := primitive.NewObjectID()
	d := &document.Document{Title: "first", UserID: owner}
	require.NoError(t, r.Create(ctx, d))
	require.False(t, d.ID.IsZero())

	got, err := r.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "first", got.Title)

	list, err := r.ListByUser(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	list, err = r.ListByUser(ctx, primitive.NewObjectID())
	require.NoError(t, err)
	require.Empty(t, list)

	updated, err := r.UpdateTitle(ctx, d.ID, "renamed")
	require.NoError(t, err)
	require.Equal(t, "renamed", updated.Title)
	require.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	require.NoError(t, r.Delete(ctx, d.ID))
	_, err = r.Get(ctx, d.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.Delete(ctx, d.ID), ErrNotFound)
}

func TestMemoryShapeRepo(t *testing.T) {
	r := NewMemoryShapeRepo()
	ctx := context.Background()
	docA, docB := primitive.NewObjectID(), primitive.NewObjectID()

	s := &document.Shape{DocID: docA, Index: 1, Type: "rect", BorderColor: "#000"}
	require.NoError(t, r.Create(ctx, s))
	require.NoError(t, r.Create(ctx, &document.Shape{DocID: docB, Index: 1, Type: "rect", BorderColor: "#000"}))

	_, err := r.Update(ctx, docB, s.ID, document.ShapePatch{})
	require.ErrorIs(t, err, ErrNotFound, "shape must be addressed through its own document")

	n, err := r.DeleteByDocs(ctx, []primitive.ObjectID{docA})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	left, err := r.ListByDoc(ctx, docB)
	require.NoError(t, err)
	require.Len(t, left, 1)
}
