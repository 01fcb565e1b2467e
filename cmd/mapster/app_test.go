package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mapster/mapster/backend/go-services/handlers"
	"github.com/mapster/mapster/backend/go-services/internal/config"
	"github.com/mapster/mapster/backend/go-services/internal/document/service"
	"github.com/mapster/mapster/backend/go-services/internal/sessions"
	"github.com/mapster/mapster/backend/go-services/internal/tokens"
	"github.com/mapster/mapster/backend/go-services/internal/users"
	"github.com/mapster/mapster/backend/go-services/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Storage:  "memory",
		JWT:      config.JWTConfig{Secret: "0123456789abcdef0123456789abcdef", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour},
		Sessions: config.SessionsConfig{MaxPerUser: 10},
	}
	codec, err := tokens.NewCodec(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	require.NoError(t, err)
	repo := users.NewMemoryUserRepository()
	srv := httptest.NewServer(handlers.NewRouter(handlers.Deps{
		Config:   cfg,
		Users:    users.NewService(repo),
		Sessions: sessions.NewStore(repo, cfg.JWT.RefreshTokenTTL, cfg.Sessions.MaxPerUser),
		Codec:    codec,
		Docs:     service.NewMemoryService(nil),
	}))
	t.Cleanup(srv.Close)

	cache, err := client.OpenSQLiteCache(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	out := &bytes.Buffer{}
	return &app{
		client:       client.New(srv.URL, cache),
		out:          out,
		readPassword: func(io.Writer) (string, error) { return "password123", nil },
	}, out
}

func TestApp_SessionCommands(t *testing.T) {
	a, out := newApp(t)
	ctx := context.Background()

	require.NoError(t, a.run(ctx, []string{"signup", "-email", "cli@example.com"}))
	assert.Contains(t, out.String(), "logged in as cli@example.com")

	out.Reset()
	require.NoError(t, a.run(ctx, []string{"whoami"}))
	assert.Contains(t, out.String(), "cli@example.com")

	require.NoError(t, a.run(ctx, []string{"logout"}))
	assert.Error(t, a.run(ctx, []string{"whoami"}))

	require.Error(t, a.run(ctx, []string{"login", "-email", "cli@example.com", "-password", "wrong-password"}))
	require.NoError(t, a.run(ctx, []string{"login", "-email", "cli@example.com", "-password", "password123"}))
}

func TestApp_DocsCommands(t *testing.T) {
	a, out := newApp(t)
	ctx := context.Background()
	require.NoError(t, a.run(ctx, []string{"signup", "-email", "docs@example.com"}))

	out.Reset()
	require.NoError(t, a.run(ctx, []string{"docs", "create", "Network", "map"}))
	id := string(bytes.TrimSpace(out.Bytes()))
	require.Len(t, id, 24)

	out.Reset()
	require.NoError(t, a.run(ctx, []string{"docs", "list"}))
	assert.Contains(t, out.String(), "Network map")

	require.NoError(t, a.run(ctx, []string{"docs", "delete", id}))
	out.Reset()
	require.NoError(t, a.run(ctx, []string{"docs"}))
	assert.NotContains(t, out.String(), "Network map")

	assert.ErrorIs(t, a.run(ctx, []string{"docs", "delete"}), errUsage)
}

func TestApp_Usage(t *testing.T) {
	a, out := newApp(t)
	ctx := context.Background()
	assert.ErrorIs(t, a.run(ctx, nil), errUsage)
	assert.Contains(t, out.String(), "usage: mapster")
	assert.ErrorIs(t, a.run(ctx, []string{"frobnicate"}), errUsage)
	assert.ErrorIs(t, a.run(ctx, []string{"login"}), errUsage)
}
