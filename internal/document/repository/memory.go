package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mapster/mapster/backend/go-services/internal/document"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryRepo is an in-memory DocumentRepository used for STORAGE=memory and unit tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[primitive.ObjectID]document.Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[primitive.ObjectID]document.Document)}
}

func (m *MemoryRepo) Create(ctx context.Context, d *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	d.CreatedAt = time.Now().UTC()
	d.UpdatedAt = d.CreatedAt
	m.store[d.ID] = *d
	return nil
}

func (m *MemoryRepo) Get(ctx context.Context, id primitive.ObjectID) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return &d, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*document.Document{}
	for _, d := range m.store {
		if d.UserID == userID {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (m *MemoryRepo) UpdateTitle(ctx context.Context, id primitive.ObjectID, title string) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	d.Title = title
	d.UpdatedAt = time.Now().UTC()
	m.store[id] = d
	return &d, nil
}

func (m *MemoryRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

// MemoryShapeRepo is the in-memory ShapeRepository.
type MemoryShapeRepo struct {
	mu    sync.RWMutex
	store map[primitive.ObjectID]document.Shape
}

func NewMemoryShapeRepo() *MemoryShapeRepo {
	return &MemoryShapeRepo{store: make(map[primitive.ObjectID]document.Shape)}
}

func (m *MemoryShapeRepo) Create(ctx context.Context, s *document.Shape) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	m.store[s.ID] = *s
	return nil
}

func (m *MemoryShapeRepo) ListByDoc(ctx context.Context, docID primitive.ObjectID) ([]*document.Shape, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*document.Shape{}
	for _, s := range m.store {
		if s.DocID == docID {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *MemoryShapeRepo) Update(ctx context.Context, docID, id primitive.ObjectID, p document.ShapePatch) (*document.Shape, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok || s.DocID != docID {
		return nil, ErrNotFound
	}
	p.Apply(&s)
	m.store[id] = s
	return &s, nil
}

func (m *MemoryShapeRepo) Delete(ctx context.Context, docID, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok || s.DocID != docID {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *MemoryShapeRepo) DeleteByDocs(ctx context.Context, docIDs []primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[primitive.ObjectID]bool, len(docIDs))
	for _, id := range docIDs {
		set[id] = true
	}
	var n int64
	for id, s := range m.store {
		if set[s.DocID] {
			delete(m.store, id)
			n++
		}
	}
	return n, nil
}
