package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/mapster/mapster/backend/go-services/handlers"
	"github.com/mapster/mapster/backend/go-services/internal/config"
	"github.com/mapster/mapster/backend/go-services/internal/database"
	"github.com/mapster/mapster/backend/go-services/internal/document/service"
	"github.com/mapster/mapster/backend/go-services/internal/sessions"
	"github.com/mapster/mapster/backend/go-services/internal/storage"
	"github.com/mapster/mapster/backend/go-services/internal/tokens"
	"github.com/mapster/mapster/backend/go-services/internal/users"
	"github.com/mapster/mapster/backend/go-services/pkg/logger"
	"github.com/mapster/mapster/backend/go-services/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const mongoConnectAttempts = 5

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: storage=%s mongo=%v redis=%v minio=%v jwt_secret=%s",
		cfg.Storage, cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "", logger.Redact(cfg.JWT.Secret))
	if cfg.Server.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	checks := map[string]handlers.ReadinessCheck{}

	// MinIO is optional; exports answer 503 without it
	var objects storage.ObjectStore
	if ms, err := storage.NewMinIOStorage(ctx, cfg.MinIO); err == nil {
		objects = ms
		logger.Infof("object storage: minio %s bucket=%s", cfg.MinIO.Endpoint, cfg.MinIO.Bucket)
	} else if !errors.Is(err, storage.ErrNotConfigured) {
		logger.Warnf("object storage unavailable, exports disabled: %v", err)
	}

	var (
		userRepo users.UserRepository
		docs     service.Service
	)
	switch cfg.Storage {
	case "memory":
		logger.Warnf("STORAGE=memory: users and documents are lost on restart")
		userRepo = users.NewMemoryUserRepository()
		docs = service.NewMemoryService(objects)
		checks["users"] = func(context.Context) error { return nil }
	default:
		client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, mongoConnectAttempts)
		if err != nil {
			logger.Fatalf("could not connect to MongoDB: %v", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		db := client.Database(cfg.MongoDB.Database)

		repo := users.NewMongoUserRepository(db.Collection(database.UsersCollection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Fatalf("users indexes: %v", err)
		}
		if err := database.EnsureIndexes(ctx, db); err != nil {
			logger.Fatalf("document indexes: %v", err)
		}
		userRepo = repo
		docs = service.NewMongoService(db, database.DocumentsCollection, database.ShapesCollection, objects)
		checks["users"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		logger.Infof("connected to MongoDB database %s", cfg.MongoDB.Database)
	}

	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
		} else {
			logger.Infof("connected to Redis: %s", addr)
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	codec, err := tokens.NewCodec(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	if err != nil {
		logger.Fatalf("token codec: %v", err)
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	r := handlers.NewRouter(handlers.Deps{
		Config:   cfg,
		Users:    users.NewService(userRepo),
		Sessions: sessions.NewStore(userRepo, cfg.JWT.RefreshTokenTTL, cfg.Sessions.MaxPerUser),
		Codec:    codec,
		Docs:     docs,
		Redis:    rdb,
		Checks:   checks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("mapster API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logger.Infof("received %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
