package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mapster/mapster/backend/go-services/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryUserRepository is an in-memory UserRepository used for STORAGE=memory and tests.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]*models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[primitive.ObjectID]*models.User)}
}

// clone copies u including its session slice so callers never share state with the store.
func clone(u *models.User) *models.User {
	c := *u
	c.Sessions = append([]models.Session(nil), u.Sessions...)
	return &c
}

func (m *MemoryUserRepository) Create(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.users[u.ID] = clone(u)
	return nil
}

func (m *MemoryUserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		return clone(u), nil
	}
	return nil, nil
}

func (m *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (m *MemoryUserRepository) FindByIDAndToken(ctx context.Context, id primitive.ObjectID, token string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	if _, found := u.FindSession(token); !found {
		return nil, nil
	}
	return clone(u), nil
}

func (m *MemoryUserRepository) List(ctx context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		c := clone(u)
		c.Password = ""
		c.Sessions = nil
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *MemoryUserRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *MemoryUserRepository) PushSession(ctx context.Context, id primitive.ObjectID, s models.Session, expiredBy int64, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	kept := u.Sessions[:0]
	for _, cur := range u.Sessions {
		if cur.ExpiresAt > expiredBy {
			kept = append(kept, cur)
		}
	}
	kept = append(kept, s)
	if len(kept) > max {
		kept = kept[len(kept)-max:]
	}
	u.Sessions = append([]models.Session(nil), kept...)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryUserRepository) PullSession(ctx context.Context, id primitive.ObjectID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	kept := make([]models.Session, 0, len(u.Sessions))
	for _, cur := range u.Sessions {
		if cur.Token != token {
			kept = append(kept, cur)
		}
	}
	u.Sessions = kept
	return nil
}
