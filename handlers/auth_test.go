package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mapster/mapster/backend/go-services/internal/config"
	"github.com/mapster/mapster/backend/go-services/internal/document/service"
	"github.com/mapster/mapster/backend/go-services/internal/sessions"
	"github.com/mapster/mapster/backend/go-services/internal/tokens"
	"github.com/mapster/mapster/backend/go-services/internal/users"
	"github.com/mapster/mapster/backend/go-services/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testAPI struct {
	router *gin.Engine
	users  *users.Service
	store  *sessions.Store
}

func newTestAPI(t *testing.T, mutate func(*config.Config)) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Storage:  "memory",
		JWT:      config.JWTConfig{Secret: testSecret, AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour},
		Sessions: config.SessionsConfig{MaxPerUser: 10},
	}
	if mutate != nil {
		mutate(cfg)
	}
	codec, err := tokens.NewCodec(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	require.NoError(t, err)
	repo := users.NewMemoryUserRepository()
	usvc := users.NewService(repo)
	store := sessions.NewStore(repo, cfg.JWT.RefreshTokenTTL, cfg.Sessions.MaxPerUser)
	r := NewRouter(Deps{
		Config:   cfg,
		Users:    usvc,
		Sessions: store,
		Codec:    codec,
		Docs:     service.NewMemoryService(nil),
		Checks:   map[string]ReadinessCheck{"users": func(context.Context) error { return nil }},
	})
	return &testAPI{router: r, users: usvc, store: store}
}

func (a *testAPI) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type session struct {
	id, access, refresh string
}

func (a *testAPI) signup(t *testing.T, email string) session {
	t.Helper()
	w := a.do(http.MethodPost, "/users", `{"email":"`+email+`","password":"password123"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return session{
		id:      body["_id"].(string),
		access:  w.Header().Get(middleware.HeaderAccessToken),
		refresh: w.Header().Get(middleware.HeaderRefreshToken),
	}
}

func (s session) accessHeaders() map[string]string {
	return map[string]string{middleware.HeaderAccessToken: s.access}
}

func (s session) refreshHeaders() map[string]string {
	return map[string]string{middleware.HeaderRefreshToken: s.refresh, middleware.HeaderUserID: s.id}
}

func TestSignup_ReturnsTokensAndHidesSecrets(t *testing.T) {
	api := newTestAPI(t, nil)
	w := api.do(http.MethodPost, "/users", `{"email":"ada@example.com","password":"password123"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.NotEmpty(t, w.Header().Get(middleware.HeaderAccessToken))
	assert.Len(t, w.Header().Get(middleware.HeaderRefreshToken), 128)
	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), "sessions")
	assert.Contains(t, w.Body.String(), `"email":"ada@example.com"`)
}

func TestSignup_Failures(t *testing.T) {
	api := newTestAPI(t, nil)
	api.signup(t, "dup@example.com")

	w := api.do(http.MethodPost, "/users", `{"email":"dup@example.com","password":"password123"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "email already registered")

	w = api.do(http.MethodPost, "/users", `{"email":"x@example.com"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ValidationFailure")

	w = api.do(http.MethodPost, "/users", `{"email":"bad","password":"password123"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t, nil)
	api.signup(t, "log@example.com")

	w := api.do(http.MethodPost, "/users/login", `{"email":"log@example.com","password":"password123"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderAccessToken))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRefreshToken))

	w = api.do(http.MethodPost, "/users/login", `{"email":"log@example.com","password":"wrong-password"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get(middleware.HeaderAccessToken))
}

func TestAccessTokenGuardsProtectedRoutes(t *testing.T) {
	api := newTestAPI(t, nil)
	s := api.signup(t, "guard@example.com")

	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/docs", "", s.accessHeaders()).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/docs", "", nil).Code)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   s.id,
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	tok, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	w := api.do(http.MethodGet, "/docs", "", map[string]string{middleware.HeaderAccessToken: tok})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "expired")

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   s.id,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("another-secret-another-secret-000"))
	require.NoError(t, err)
	w = api.do(http.MethodGet, "/docs", "", map[string]string{middleware.HeaderAccessToken: forged})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshAccessToken(t *testing.T) {
	api := newTestAPI(t, nil)
	s := api.signup(t, "refresh@example.com")

	w := api.do(http.MethodGet, "/users/me/access-token", "", s.refreshHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	fresh := w.Header().Get(middleware.HeaderAccessToken)
	require.NotEmpty(t, fresh)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, fresh, body["accessToken"])

	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/docs", "", map[string]string{middleware.HeaderAccessToken: fresh}).Code)

	other := api.signup(t, "other@example.com")
	w = api.do(http.MethodGet, "/users/me/access-token", "", map[string]string{
		middleware.HeaderRefreshToken: s.refresh,
		middleware.HeaderUserID:       other.id,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refresh token is bound to its user")

	w = api.do(http.MethodGet, "/users/me/access-token", "", map[string]string{middleware.HeaderUserID: s.id})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshAfterSessionExpiry(t *testing.T) {
	api := newTestAPI(t, func(c *config.Config) { c.JWT.RefreshTokenTTL = time.Second })
	s := api.signup(t, "short@example.com")

	time.Sleep(1100 * time.Millisecond)
	w := api.do(http.MethodGet, "/users/me/access-token", "", s.refreshHeaders())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "expired")
}

func TestLogoutRevokesOnlyThatSession(t *testing.T) {
	api := newTestAPI(t, nil)
	first := api.signup(t, "multi@example.com")

	w := api.do(http.MethodPost, "/users/login", `{"email":"multi@example.com","password":"password123"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	second := session{id: first.id, refresh: w.Header().Get(middleware.HeaderRefreshToken)}

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/users/logout", "", first.refreshHeaders()).Code)

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/users/me/access-token", "", first.refreshHeaders()).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/users/me/access-token", "", second.refreshHeaders()).Code)
}

func TestUsersListGetDelete(t *testing.T) {
	api := newTestAPI(t, nil)
	a := api.signup(t, "a@example.com")
	b := api.signup(t, "b@example.com")

	w := api.do(http.MethodGet, "/users", "", a.accessHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	w = api.do(http.MethodGet, "/users/"+b.id, "", a.accessHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "b@example.com")

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodDelete, "/users/"+b.id, "", a.accessHeaders()).Code)

	w = api.do(http.MethodPost, "/docs", `{"title":"Doomed doc"}`, a.accessHeaders())
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/users/"+a.id, "", a.accessHeaders()).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/users/"+a.id, "", b.accessHeaders()).Code)

	w = api.do(http.MethodGet, "/docs", "", a.accessHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/users/me/access-token", "", a.refreshHeaders()).Code)
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t, nil)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/ready", "", nil).Code)

	g := gin.New()
	g.GET("/ready", readyHandler(map[string]ReadinessCheck{
		"mongo": func(context.Context) error { return errors.New("no reachable servers") },
	}))
	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"mongo":false`)
}

func TestRateLimitAppliesPerUser(t *testing.T) {
	api := newTestAPI(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.01, Burst: 3}
	})
	s := api.signup(t, "busy@example.com")

	codes := []int{}
	for i := 0; i < 4; i++ {
		codes = append(codes, api.do(http.MethodGet, "/docs", "", s.accessHeaders()).Code)
	}
	assert.Equal(t, []int{200, 200, 200, 429}, codes)
}

// flakyCodec fails Issue once broken is set.
type flakyCodec struct {
	*tokens.Codec
	broken bool
}

func (f *flakyCodec) Issue(subjectID string) (string, error) {
	if f.broken {
		return "", errors.New("signer unavailable")
	}
	return f.Codec.Issue(subjectID)
}

func TestRefreshAccessToken_SigningFailureIsServerError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	codec, err := tokens.NewCodec(testSecret, time.Minute)
	require.NoError(t, err)
	flaky := &flakyCodec{Codec: codec}
	repo := users.NewMemoryUserRepository()
	g := gin.New()
	NewAuthHandler(users.NewService(repo), sessions.NewStore(repo, time.Hour, 10), flaky, nil).Register(g)
	api := &testAPI{router: g}

	s := api.signup(t, "signer@example.com")
	flaky.broken = true
	w := api.do(http.MethodGet, "/users/me/access-token", "", s.refreshHeaders())
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get(middleware.HeaderAccessToken))
}
