package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/mapster/mapster/backend/go-services/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// refreshTokenBytes is the amount of entropy in a refresh token (hex encoded to twice as many chars).
const refreshTokenBytes = 64

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Store creates and looks up refresh sessions stored on user records
type Store struct {
	repo       Repository
	ttl        time.Duration
	maxPerUser int
	now        func() time.Time
}

func NewStore(r Repository, ttl time.Duration, maxPerUser int) *Store {
	if maxPerUser < 1 {
		maxPerUser = 1
	}
	return &Store{repo: r, ttl: ttl, maxPerUser: maxPerUser, now: time.Now}
}

// CreateSession appends a fresh session to the user and returns its refresh token.
// Expired sessions of the user are pruned in the same call.
func (s *Store) CreateSession(ctx context.Context, user *models.User) (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	token := hex.EncodeToString(b)
	now := s.now()
	sess := models.Session{Token: token, ExpiresAt: now.Add(s.ttl).Unix()}
	if err := s.repo.PushSession(ctx, user.ID, sess, now.Unix(), s.maxPerUser); err != nil {
		return "", err
	}
	user.Sessions = append(user.Sessions, sess)
	return token, nil
}

// FindByIDAndToken returns the user holding token, or nil when there is none.
func (s *Store) FindByIDAndToken(ctx context.Context, userID primitive.ObjectID, token string) (*models.User, error) {
	return s.repo.FindByIDAndToken(ctx, userID, token)
}

// HasExpired reports whether expiresAt (unix seconds) is not in the future.
func (s *Store) HasExpired(expiresAt int64) bool {
	return expiresAt <= s.now().Unix()
}

// Verify resolves a refresh token presented by userID to its user and live session.
func (s *Store) Verify(ctx context.Context, userID primitive.ObjectID, token string) (*models.User, models.Session, error) {
	if token == "" {
		return nil, models.Session{}, ErrSessionNotFound
	}
	u, err := s.FindByIDAndToken(ctx, userID, token)
	if err != nil {
		return nil, models.Session{}, err
	}
	if u == nil {
		return nil, models.Session{}, ErrSessionNotFound
	}
	for _, sess := range u.Sessions {
		if sess.Token == token && !s.HasExpired(sess.ExpiresAt) {
			return u, sess, nil
		}
	}
	return nil, models.Session{}, ErrSessionExpired
}

// RemoveSession revokes a single refresh session.
func (s *Store) RemoveSession(ctx context.Context, userID primitive.ObjectID, token string) error {
	return s.repo.PullSession(ctx, userID, token)
}
