package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mapster/mapster/backend/go-services/internal/models"
	"github.com/mapster/mapster/backend/go-services/internal/sessions"
	"github.com/mapster/mapster/backend/go-services/internal/tokens"
	"github.com/mapster/mapster/backend/go-services/pkg/logger"
	"github.com/mapster/mapster/backend/go-services/pkg/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Header names shared with the web and Go clients.
const (
	HeaderAccessToken  = "x-access-token"
	HeaderRefreshToken = "x-refresh-token"
	HeaderUserID       = "_id"
)

// Gin context keys set by the authentication middlewares.
const (
	ContextUserID  = "userId"
	ContextUser    = "user"
	ContextSession = "session"
)

// TokenVerifier validates an access token and returns its subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// SessionStore resolves a refresh token to its user and live session.
type SessionStore interface {
	Verify(ctx context.Context, userID primitive.ObjectID, token string) (*models.User, models.Session, error)
}

// AccessAuthenticator verifies the access token from the x-access-token header
// (or an Authorization: Bearer header) and stores the subject id under ContextUserID.
func AccessAuthenticator(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := accessToken(c)
		if raw == "" {
			fail(c, "missing_token", "missing access token")
			return
		}
		sub, err := v.Verify(raw)
		if err != nil {
			switch {
			case errors.Is(err, tokens.ErrExpired):
				fail(c, "expired", "access token expired")
			default:
				fail(c, "invalid_signature", "invalid access token")
			}
			return
		}
		id, err := primitive.ObjectIDFromHex(sub)
		if err != nil {
			fail(c, "invalid_signature", "invalid access token")
			return
		}
		c.Set(ContextUserID, id)
		c.Next()
	}
}

// SessionVerifier authenticates a refresh request from the x-refresh-token and _id
// headers and attaches the user and matched session to the context.
func SessionVerifier(store SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		refresh := c.GetHeader(HeaderRefreshToken)
		id, err := primitive.ObjectIDFromHex(c.GetHeader(HeaderUserID))
		if refresh == "" || err != nil {
			fail(c, "session_not_found", "missing or malformed session headers")
			return
		}
		user, sess, err := store.Verify(c.Request.Context(), id, refresh)
		switch {
		case err == nil:
		case errors.Is(err, sessions.ErrSessionNotFound):
			fail(c, "session_not_found", "session not found")
			return
		case errors.Is(err, sessions.ErrSessionExpired):
			fail(c, "session_expired", "refresh token has expired or the session is invalid")
			return
		default:
			logger.Errorf("session lookup for user %s: %v", id.Hex(), err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			return
		}
		c.Set(ContextUserID, user.ID)
		c.Set(ContextUser, user)
		c.Set(ContextSession, sess)
		c.Next()
	}
}

func accessToken(c *gin.Context) string {
	if tok := c.GetHeader(HeaderAccessToken); tok != "" {
		return tok
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func fail(c *gin.Context, reason, msg string) {
	metrics.AuthFailures.WithLabelValues(reason).Inc()
	logger.Debugf("auth rejected %s %s: %s", c.Request.Method, c.FullPath(), reason)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// UserID returns the authenticated user id set by either middleware.
func UserID(c *gin.Context) (primitive.ObjectID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, ok := v.(primitive.ObjectID)
	return id, ok
}

// CurrentUser returns the user attached by SessionVerifier.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}

// CurrentSession returns the session matched by SessionVerifier.
func CurrentSession(c *gin.Context) (models.Session, bool) {
	v, ok := c.Get(ContextSession)
	if !ok {
		return models.Session{}, false
	}
	s, ok := v.(models.Session)
	return s, ok
}
