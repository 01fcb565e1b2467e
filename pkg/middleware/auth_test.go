package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mapster/mapster/backend/go-services/internal/models"
	"github.com/mapster/mapster/backend/go-services/internal/sessions"
	"github.com/mapster/mapster/backend/go-services/internal/tokens"
	"github.com/mapster/mapster/backend/go-services/internal/users"
	"github.com/mapster/mapster/backend/go-services/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func init() { gin.SetMode(gin.TestMode) }

// fakeVerifier implements TokenVerifier
type fakeVerifier struct {
	sub string
	err error
}

func (f fakeVerifier) Verify(string) (string, error) { return f.sub, f.err }

func protected(mw gin.HandlerFunc) *gin.Engine {
	g := gin.New()
	g.GET("/", mw, func(c *gin.Context) {
		id, ok := UserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": id.Hex()})
	})
	return g
}

func TestAccessAuthenticator_MissingToken(t *testing.T) {
	before := testutil.ToFloat64(metrics.AuthFailures.WithLabelValues("missing_token"))
	rw := httptest.NewRecorder()
	protected(AccessAuthenticator(fakeVerifier{})).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusUnauthorized, rw.Code)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.AuthFailures.WithLabelValues("missing_token")))
}

func TestAccessAuthenticator_ValidToken(t *testing.T) {
	codec, err := tokens.NewCodec(testSecret, time.Minute)
	require.NoError(t, err)
	id := primitive.NewObjectID()
	tok, err := codec.Issue(id.Hex())
	require.NoError(t, err)

	for _, setHeader := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set(HeaderAccessToken, tok) },
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) },
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		setHeader(req)
		rw := httptest.NewRecorder()
		protected(AccessAuthenticator(codec)).ServeHTTP(rw, req)

		require.Equal(t, http.StatusOK, rw.Code)
		var got map[string]string
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
		require.Equal(t, id.Hex(), got["userId"])
	}
}

func TestAccessAuthenticator_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		v      fakeVerifier
		reason string
	}{
		{"expired", fakeVerifier{err: tokens.ErrExpired}, "expired"},
		{"bad signature", fakeVerifier{err: tokens.ErrInvalidSignature}, "invalid_signature"},
		{"non-object-id subject", fakeVerifier{sub: "not-an-id"}, "invalid_signature"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := testutil.ToFloat64(metrics.AuthFailures.WithLabelValues(tc.reason))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(HeaderAccessToken, "whatever")
			rw := httptest.NewRecorder()
			protected(AccessAuthenticator(tc.v)).ServeHTTP(rw, req)

			require.Equal(t, http.StatusUnauthorized, rw.Code)
			require.Equal(t, before+1, testutil.ToFloat64(metrics.AuthFailures.WithLabelValues(tc.reason)))
		})
	}
}

func newSessionFixture(t *testing.T, ttl time.Duration) (*sessions.Store, *models.User, string) {
	t.Helper()
	repo := users.NewMemoryUserRepository()
	u := &models.User{Email: "s@example.com"}
	require.NoError(t, repo.Create(context.Background(), u))
	store := sessions.NewStore(repo, ttl, 10)
	tok, err := store.CreateSession(context.Background(), u)
	require.NoError(t, err)
	return store, u, tok
}

func TestSessionVerifier(t *testing.T) {
	store, u, tok := newSessionFixture(t, time.Hour)

	g := gin.New()
	g.GET("/refresh", SessionVerifier(store), func(c *gin.Context) {
		user, ok := CurrentUser(c)
		require.True(t, ok)
		sess, ok := CurrentSession(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": user.ID.Hex(), "token": sess.Token})
	})

	do := func(id, refresh string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/refresh", nil)
		if id != "" {
			req.Header.Set(HeaderUserID, id)
		}
		if refresh != "" {
			req.Header.Set(HeaderRefreshToken, refresh)
		}
		rw := httptest.NewRecorder()
		g.ServeHTTP(rw, req)
		return rw
	}

	rw := do(u.ID.Hex(), tok)
	require.Equal(t, http.StatusOK, rw.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, u.ID.Hex(), got["id"])
	require.Equal(t, tok, got["token"])

	require.Equal(t, http.StatusUnauthorized, do(u.ID.Hex(), "nope").Code)
	require.Equal(t, http.StatusUnauthorized, do(primitive.NewObjectID().Hex(), tok).Code)
	require.Equal(t, http.StatusUnauthorized, do("", tok).Code)
	require.Equal(t, http.StatusUnauthorized, do(u.ID.Hex(), "").Code)
}

type stubStore struct{ err error }

func (s stubStore) Verify(context.Context, primitive.ObjectID, string) (*models.User, models.Session, error) {
	return nil, models.Session{}, s.err
}

func TestSessionVerifier_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{sessions.ErrSessionExpired, http.StatusUnauthorized},
		{sessions.ErrSessionNotFound, http.StatusUnauthorized},
		{errors.New("mongo down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		g := gin.New()
		g.GET("/", SessionVerifier(stubStore{err: tc.err}), func(c *gin.Context) { c.Status(http.StatusOK) })
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderUserID, primitive.NewObjectID().Hex())
		req.Header.Set(HeaderRefreshToken, "tok")
		rw := httptest.NewRecorder()
		g.ServeHTTP(rw, req)
		require.Equal(t, tc.code, rw.Code, tc.err.Error())
	}
}

func TestRequestID(t *testing.T) {
	g := gin.New()
	g.Use(RequestID())
	g.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("requestId")) })

	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := rw.Header().Get(HeaderRequestID)
	require.Len(t, generated, 36)
	require.Equal(t, generated, rw.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rw = httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	require.Equal(t, "abc-123", rw.Header().Get(HeaderRequestID))
}

func TestCORS_PreflightExposesSessionHeaders(t *testing.T) {
	g := gin.New()
	g.Use(CORS())
	g.POST("/users", func(c *gin.Context) { c.Status(http.StatusOK) })

	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, httptest.NewRequest(http.MethodOptions, "/users", nil))
	require.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, rw.Header().Get("Access-Control-Expose-Headers"), HeaderAccessToken)
	require.Contains(t, rw.Header().Get("Access-Control-Expose-Headers"), HeaderRefreshToken)
	require.Contains(t, rw.Header().Get("Access-Control-Allow-Headers"), HeaderUserID)
}
