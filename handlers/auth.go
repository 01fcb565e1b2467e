package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mapster/mapster/backend/go-services/internal/document/service"
	"github.com/mapster/mapster/backend/go-services/internal/models"
	"github.com/mapster/mapster/backend/go-services/internal/sessions"
	"github.com/mapster/mapster/backend/go-services/internal/users"
	"github.com/mapster/mapster/backend/go-services/pkg/logger"
	"github.com/mapster/mapster/backend/go-services/pkg/metrics"
	"github.com/mapster/mapster/backend/go-services/pkg/middleware"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AccessTokens issues and verifies access tokens; *tokens.Codec implements it.
type AccessTokens interface {
	Issue(subjectID string) (string, error)
	Verify(token string) (string, error)
}

// AuthHandler serves the /users endpoints: signup, login, token refresh, logout and user management.
type AuthHandler struct {
	usersSvc *users.Service
	sessions *sessions.Store
	codec    AccessTokens
	docs     service.Service
}

func NewAuthHandler(u *users.Service, s *sessions.Store, codec AccessTokens, docs service.Service) *AuthHandler {
	return &AuthHandler{usersSvc: u, sessions: s, codec: codec, docs: docs}
}

// Register mounts the public, access-token and refresh-session routes.
// limit is applied after authentication so it can key on the user id.
func (h *AuthHandler) Register(r gin.IRouter, limit ...gin.HandlerFunc) {
	public := r.Group("/users", limit...)
	public.POST("", h.Signup)
	public.POST("/login", h.Login)

	session := r.Group("/users", append([]gin.HandlerFunc{middleware.SessionVerifier(h.sessions)}, limit...)...)
	session.GET("/me/access-token", h.AccessToken)
	session.POST("/logout", h.Logout)

	authed := r.Group("/users", append([]gin.HandlerFunc{middleware.AccessAuthenticator(h.codec)}, limit...)...)
	authed.GET("", h.List)
	authed.GET("/:id", h.Get)
	authed.DELETE("/:id", h.Delete)
}

// bindFailed maps binding errors to a ValidationFailure response.
func bindFailed(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field()))
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationFailure", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationFailure", "details": err.Error()})
}

// startSession creates a refresh session and access token for u and writes both as headers.
func (h *AuthHandler) startSession(c *gin.Context, u *models.User) bool {
	refresh, err := h.sessions.CreateSession(c.Request.Context(), u)
	if err != nil {
		logger.Errorf("failed to create session for user %s: %v", u.ID.Hex(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return false
	}
	metrics.SessionsCreated.Inc()
	access, err := h.codec.Issue(u.ID.Hex())
	if err != nil {
		logger.Errorf("failed to issue access token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return false
	}
	metrics.AccessTokensIssued.Inc()
	c.Header(middleware.HeaderAccessToken, access)
	c.Header(middleware.HeaderRefreshToken, refresh)
	return true
}

// Signup creates an account and logs it in.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req users.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	u, err := h.usersSvc.Signup(c.Request.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, users.ErrValidation), errors.Is(err, users.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		logger.Errorf("signup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		return
	}
	if !h.startSession(c, u) {
		return
	}
	logger.Infof("user %s signed up", u.ID.Hex())
	c.JSON(http.StatusOK, u)
}

// Login checks credentials and opens a new session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req users.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	u, err := h.usersSvc.FindByCredentials(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		metrics.AuthFailures.WithLabelValues("bad_credentials").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		logger.Errorf("login lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if !h.startSession(c, u) {
		return
	}
	c.JSON(http.StatusOK, u)
}

// AccessToken issues a new access token for the session matched by SessionVerifier.
func (h *AuthHandler) AccessToken(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session not found"})
		return
	}
	access, err := h.codec.Issue(u.ID.Hex())
	if err != nil {
		logger.Errorf("failed to issue access token for %s: %v", u.ID.Hex(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	metrics.AccessTokensIssued.Inc()
	c.Header(middleware.HeaderAccessToken, access)
	c.JSON(http.StatusOK, gin.H{"accessToken": access})
}

// Logout revokes the refresh session presented with the request.
func (h *AuthHandler) Logout(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	sess, ok := middleware.CurrentSession(c)
	if u == nil || !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session not found"})
		return
	}
	if err := h.sessions.RemoveSession(c.Request.Context(), u.ID, sess.Token); err != nil {
		logger.Errorf("failed to remove session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) List(c *gin.Context) {
	list, err := h.usersSvc.List(c.Request.Context())
	if err != nil {
		logger.Errorf("list users: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *AuthHandler) Get(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	u, err := h.usersSvc.Get(c.Request.Context(), id)
	if errors.Is(err, users.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, u)
}

// Delete removes the caller's own account with its documents and shapes.
func (h *AuthHandler) Delete(c *gin.Context) {
	caller, _ := middleware.UserID(c)
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil || id != caller {
		c.JSON(http.StatusForbidden, gin.H{"error": "can only delete your own account"})
		return
	}
	ctx := c.Request.Context()
	if h.docs != nil {
		if err := h.docs.DeleteAllForUser(ctx, id); err != nil {
			logger.Errorf("delete documents of %s: %v", id.Hex(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user data"})
			return
		}
	}
	if err := h.usersSvc.Delete(ctx, id); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
		return
	}
	c.Status(http.StatusNoContent)
}
