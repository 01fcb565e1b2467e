package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mapster/mapster/backend/go-services/internal/config"
	dochandler "github.com/mapster/mapster/backend/go-services/internal/document/handler"
	"github.com/mapster/mapster/backend/go-services/internal/document/service"
	"github.com/mapster/mapster/backend/go-services/internal/sessions"
	"github.com/mapster/mapster/backend/go-services/internal/tokens"
	"github.com/mapster/mapster/backend/go-services/internal/users"
	"github.com/mapster/mapster/backend/go-services/pkg/logger"
	"github.com/mapster/mapster/backend/go-services/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Deps is everything the HTTP API is built from.
type Deps struct {
	Config   *config.Config
	Users    *users.Service
	Sessions *sessions.Store
	Codec    *tokens.Codec
	Docs     service.Service
	Redis    *redis.Client
	Checks   map[string]ReadinessCheck
}

var startTime = time.Now()

// NewRouter builds the gin engine with global middleware and all routes.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.CORS(), gin.Logger(), gin.Recovery())

	var limit []gin.HandlerFunc
	if rl := d.Config.RateLimit; rl.Enabled {
		if rl.UseRedis && d.Redis != nil {
			win := time.Duration(rl.WindowSeconds) * time.Second
			limit = append(limit, middleware.RedisRateLimitMiddleware(d.Redis, rl.RPS, rl.Burst, win))
			logger.Infof("rate limiter: redis fixed window rps=%.1f burst=%d", rl.RPS, rl.Burst)
		} else {
			limit = append(limit, middleware.RateLimitMiddleware(rl.RPS, rl.Burst))
			logger.Infof("rate limiter: in-memory token bucket rps=%.1f burst=%d", rl.RPS, rl.Burst)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", readyHandler(d.Checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	RegisterSwagger(r)

	NewAuthHandler(d.Users, d.Sessions, d.Codec, d.Docs).Register(r, limit...)

	if d.Docs != nil {
		authed := r.Group("/", append([]gin.HandlerFunc{middleware.AccessAuthenticator(d.Codec)}, limit...)...)
		dochandler.RegisterDocumentRoutes(authed, d.Docs)
	}
	return r
}

// readyHandler returns 200 only when every check passes.
func readyHandler(checks map[string]ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		ready := true
		deps := map[string]bool{}
		for name, check := range checks {
			err := check(ctx)
			deps[name] = err == nil
			if err != nil {
				logger.Warnf("readiness: %s: %v", name, err)
				ready = false
			}
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	}
}
