package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mapster/mapster/backend/go-services/internal/document"
	"github.com/mapster/mapster/backend/go-services/internal/document/repository"
	"github.com/mapster/mapster/backend/go-services/internal/storage"
	"github.com/mapster/mapster/backend/go-services/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MinTitleLength is the shortest accepted document title after trimming.
const MinTitleLength = 3

// ExportURLExpiry is how long a presigned export link stays valid.
const ExportURLExpiry = 15 * time.Minute

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrExportUnavailable = errors.New("export storage unavailable")
)

// ExportResult locates an uploaded snapshot.
type ExportResult struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Service defines the document and shape operations used by the handler layer.
// Every call is scoped to the owning user; documents of other users are reported as not found.
type Service interface {
	ListDocuments(ctx context.Context, userID primitive.ObjectID) ([]*document.Document, error)
	CreateDocument(ctx context.Context, userID primitive.ObjectID, title string) (*document.Document, error)
	RenameDocument(ctx context.Context, userID, docID primitive.ObjectID, title string) (*document.Document, error)
	DeleteDocument(ctx context.Context, userID, docID primitive.ObjectID) error
	DeleteAllForUser(ctx context.Context, userID primitive.ObjectID) error

	ListShapes(ctx context.Context, userID, docID primitive.ObjectID) ([]*document.Shape, error)
	AddShape(ctx context.Context, userID, docID primitive.ObjectID, s *document.Shape) error
	UpdateShape(ctx context.Context, userID, docID, shapeID primitive.ObjectID, p document.ShapePatch) (*document.Shape, error)
	DeleteShape(ctx context.Context, userID, docID, shapeID primitive.ObjectID) error

	Export(ctx context.Context, userID, docID primitive.ObjectID) (*ExportResult, error)
	// LatestExport streams the last snapshot written by Export.
	LatestExport(ctx context.Context, userID, docID primitive.ObjectID) (io.ReadCloser, error)
}

type service struct {
	docs     repository.DocumentRepository
	shapes   repository.ShapeRepository
	store    storage.ObjectStore
	validate *validator.Validate
	now      func() time.Time
}

// NewService wires the repositories and an optional object store (nil disables export).
func NewService(docs repository.DocumentRepository, shapes repository.ShapeRepository, store storage.ObjectStore) Service {
	return &service{docs: docs, shapes: shapes, store: store, validate: validator.New(), now: time.Now}
}

// NewMemoryService returns a Service backed by the in-memory repositories.
func NewMemoryService(store storage.ObjectStore) Service {
	return NewService(repository.NewMemoryRepo(), repository.NewMemoryShapeRepo(), store)
}

// NewMongoService returns a Service backed by the documents and shapes collections.
func NewMongoService(db *mongo.Database, docsCol, shapesCol string, store storage.ObjectStore) Service {
	return NewService(repository.NewMongoRepo(db.Collection(docsCol)), repository.NewMongoShapeRepo(db.Collection(shapesCol)), store)
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if len([]rune(title)) < MinTitleLength {
		return "", fmt.Errorf("%w: title must be at least %d characters", ErrValidation, MinTitleLength)
	}
	return title, nil
}

// owned loads docID and checks it belongs to userID.
func (s *service) owned(ctx context.Context, userID, docID primitive.ObjectID) (*document.Document, error) {
	d, err := s.docs.Get(ctx, docID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, ErrNotFound
	}
	return d, nil
}

func (s *service) ListDocuments(ctx context.Context, userID primitive.ObjectID) ([]*document.Document, error) {
	return s.docs.ListByUser(ctx, userID)
}

func (s *service) CreateDocument(ctx context.Context, userID primitive.ObjectID, title string) (*document.Document, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	d := &document.Document{Title: title, UserID: userID}
	if err := s.docs.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *service) RenameDocument(ctx context.Context, userID, docID primitive.ObjectID, title string) (*document.Document, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, userID, docID); err != nil {
		return nil, err
	}
	d, err := s.docs.UpdateTitle(ctx, docID, title)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return d, err
}

func (s *service) DeleteDocument(ctx context.Context, userID, docID primitive.ObjectID) error {
	if _, err := s.owned(ctx, userID, docID); err != nil {
		return err
	}
	if _, err := s.shapes.DeleteByDocs(ctx, []primitive.ObjectID{docID}); err != nil {
		return fmt.Errorf("delete shapes: %w", err)
	}
	if err := s.docs.Delete(ctx, docID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

// DeleteAllForUser removes every document of userID together with their shapes.
func (s *service) DeleteAllForUser(ctx context.Context, userID primitive.ObjectID) error {
	docs, err := s.docs.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	ids := make([]primitive.ObjectID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	n, err := s.shapes.DeleteByDocs(ctx, ids)
	if err != nil {
		return fmt.Errorf("delete shapes: %w", err)
	}
	for _, id := range ids {
		if err := s.docs.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}
	logger.Debugf("deleted %d documents and %d shapes of user %s", len(ids), n, userID.Hex())
	return nil
}

func (s *service) ListShapes(ctx context.Context, userID, docID primitive.ObjectID) ([]*document.Shape, error) {
	if _, err := s.owned(ctx, userID, docID); err != nil {
		return nil, err
	}
	return s.shapes.ListByDoc(ctx, docID)
}

func (s *service) AddShape(ctx context.Context, userID, docID primitive.ObjectID, sh *document.Shape) error {
	if err := s.validate.Struct(sh); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := s.owned(ctx, userID, docID); err != nil {
		return err
	}
	sh.ID = primitive.NilObjectID
	sh.DocID = docID
	return s.shapes.Create(ctx, sh)
}

func (s *service) UpdateShape(ctx context.Context, userID, docID, shapeID primitive.ObjectID, p document.ShapePatch) (*document.Shape, error) {
	if (p.Type != nil && *p.Type == "") || (p.BorderColor != nil && *p.BorderColor == "") {
		return nil, fmt.Errorf("%w: type and borderColor cannot be empty", ErrValidation)
	}
	if _, err := s.owned(ctx, userID, docID); err != nil {
		return nil, err
	}
	sh, err := s.shapes.Update(ctx, docID, shapeID, p)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return sh, err
}

func (s *service) DeleteShape(ctx context.Context, userID, docID, shapeID primitive.ObjectID) error {
	if _, err := s.owned(ctx, userID, docID); err != nil {
		return err
	}
	err := s.shapes.Delete(ctx, docID, shapeID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Export uploads a JSON snapshot of the document to object storage and returns a presigned link.
func (s *service) Export(ctx context.Context, userID, docID primitive.ObjectID) (*ExportResult, error) {
	if s.store == nil {
		return nil, ErrExportUnavailable
	}
	d, err := s.owned(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	shapes, err := s.shapes.ListByDoc(ctx, docID)
	if err != nil {
		return nil, err
	}
	snap := document.Snapshot{Document: *d, Shapes: make([]document.Shape, 0, len(shapes)), ExportedAt: s.now().UTC()}
	for _, sh := range shapes {
		snap.Shapes = append(snap.Shapes, *sh)
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	key := exportKey(userID, docID)
	if err := s.store.Put(ctx, key, body, "application/json"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportUnavailable, err)
	}
	url, err := s.store.PresignedURL(ctx, key, ExportURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportUnavailable, err)
	}
	return &ExportResult{Key: key, URL: url}, nil
}

func exportKey(userID, docID primitive.ObjectID) string {
	return fmt.Sprintf("exports/%s/%s.json", userID.Hex(), docID.Hex())
}

func (s *service) LatestExport(ctx context.Context, userID, docID primitive.ObjectID) (io.ReadCloser, error) {
	if s.store == nil {
		return nil, ErrExportUnavailable
	}
	if _, err := s.owned(ctx, userID, docID); err != nil {
		return nil, err
	}
	rc, err := s.store.Get(ctx, exportKey(userID, docID))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportUnavailable, err)
	}
	return rc, nil
}
