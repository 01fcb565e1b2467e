package repository

import (
	"context"
	"errors"

	"github.com/mapster/mapster/backend/go-services/internal/document"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound = errors.New("document not found")
)

// DocumentRepository persists documents.
type DocumentRepository interface {
	Create(ctx context.Context, d *document.Document) error
	Get(ctx context.Context, id primitive.ObjectID) (*document.Document, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*document.Document, error)
	UpdateTitle(ctx context.Context, id primitive.ObjectID, title string) (*document.Document, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// ShapeRepository persists the shapes of documents.
type ShapeRepository interface {
	Create(ctx context.Context, s *document.Shape) error
	ListByDoc(ctx context.Context, docID primitive.ObjectID) ([]*document.Shape, error)
	Update(ctx context.Context, docID, id primitive.ObjectID, p document.ShapePatch) (*document.Shape, error)
	Delete(ctx context.Context, docID, id primitive.ObjectID) error
	DeleteByDocs(ctx context.Context, docIDs []primitive.ObjectID) (int64, error)
}
