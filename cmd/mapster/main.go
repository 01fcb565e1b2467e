// Command mapster is a command line client for the mapster API.
// The session is kept in a local SQLite token cache between runs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mapster/mapster/backend/go-services/pkg/client"
	"github.com/mapster/mapster/backend/go-services/pkg/logger"
	"github.com/spf13/viper"
)

func main() {
	v := viper.New()
	v.SetEnvPrefix("MAPSTER")
	v.AutomaticEnv()
	v.SetDefault("API_URL", "http://localhost:3001")
	v.SetDefault("CACHE_PATH", defaultCachePath())
	v.SetDefault("LOG_LEVEL", "warn")
	logger.Init(v.GetString("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := client.OpenSQLiteCache(ctx, v.GetString("CACHE_PATH"))
	if err != nil {
		logger.Fatalf("token cache: %v", err)
	}
	defer cache.Close()

	c := client.New(v.GetString("API_URL"), cache, client.WithOnSessionExpired(func(error) {
		fmt.Fprintln(os.Stderr, "session expired, run `mapster login` again")
	}))
	a := &app{client: c, out: os.Stdout, readPassword: terminalPassword}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "mapster:", err)
		cache.Close()
		os.Exit(1)
	}
}

func defaultCachePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "mapster-tokens.db"
	}
	_ = os.MkdirAll(filepath.Join(dir, "mapster"), 0o700)
	return filepath.Join(dir, "mapster", "tokens.db")
}
