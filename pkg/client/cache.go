package client

import (
	"context"
	"errors"
	"sync"
)

// Storage keys, shared with the browser client.
const (
	KeyUserID       = "user-id"
	KeyAccessToken  = "x-access-token"
	KeyRefreshToken = "x-refresh-token"
)

// ErrIncompleteSession is returned by SetSession when the user id or either token is missing.
// Nothing is stored in that case.
var ErrIncompleteSession = errors.New("client: session needs a user id, an access and a refresh token")

// Session is the credential set held by a TokenCache.
type Session struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// Empty reports whether no session is cached.
func (s Session) Empty() bool {
	return s.UserID == "" && s.AccessToken == "" && s.RefreshToken == ""
}

// TokenCache persists the session between requests (and, for SQLiteCache, between runs).
type TokenCache interface {
	SetSession(ctx context.Context, s Session) error
	// SetAccessToken replaces the access token of the cached session.
	// It returns ErrNotLoggedIn and stores nothing when no session is cached.
	SetAccessToken(ctx context.Context, token string) error
	Session(ctx context.Context) (Session, error)
	AccessToken(ctx context.Context) (string, error)
	RemoveSession(ctx context.Context) error
}

// MemoryCache is a process-local TokenCache.
type MemoryCache struct {
	mu sync.RWMutex
	s  Session
}

func NewMemoryCache() *MemoryCache { return &MemoryCache{} }

func (m *MemoryCache) SetSession(ctx context.Context, s Session) error {
	if err := checkComplete(s); err != nil {
		return err
	}
	m.mu.Lock()
	m.s = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) SetAccessToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.RefreshToken == "" {
		return ErrNotLoggedIn
	}
	m.s.AccessToken = token
	return nil
}

func (m *MemoryCache) Session(ctx context.Context) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s, nil
}

func (m *MemoryCache) AccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.AccessToken, nil
}

func (m *MemoryCache) RemoveSession(ctx context.Context) error {
	m.mu.Lock()
	m.s = Session{}
	m.mu.Unlock()
	return nil
}
