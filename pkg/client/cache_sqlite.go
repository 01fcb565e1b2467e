package client

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/mapster/mapster/backend/go-services/pkg/logger"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteCache stores the session in a small key/value table so it survives restarts.
type SQLiteCache struct {
	db *sql.DB
}

// OpenSQLiteCache opens (creating if needed) the cache database at dsn and migrates it.
// Use ":memory:" for a throwaway cache.
func OpenSQLiteCache(ctx context.Context, dsn string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open token cache: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteCache{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("token cache migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("token cache migrations: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Close() error { return c.db.Close() }

func (c *SQLiteCache) SetSession(ctx context.Context, s Session) error {
	if err := checkComplete(s); err != nil {
		return err
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	now := time.Now().Unix()
	for key, value := range map[string]string{KeyUserID: s.UserID, KeyAccessToken: s.AccessToken, KeyRefreshToken: s.RefreshToken} {
		if err := upsert(ctx, tx, key, value, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (c *SQLiteCache) SetAccessToken(ctx context.Context, token string) error {
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO token_cache (key, value, updated_at)
		SELECT ?, ?, ? WHERE EXISTS (SELECT 1 FROM token_cache WHERE key = ? AND value <> '')
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, KeyAccessToken, token, time.Now().Unix(), KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", KeyAccessToken, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", KeyAccessToken, err)
	}
	if n == 0 {
		return ErrNotLoggedIn
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, key, value string, now int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO token_cache (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (c *SQLiteCache) Session(ctx context.Context) (Session, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT key, value FROM token_cache WHERE key IN (?, ?, ?)`,
		KeyUserID, KeyAccessToken, KeyRefreshToken)
	if err != nil {
		return Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	defer rows.Close()

	var s Session
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Session{}, fmt.Errorf("failed to scan session row: %w", err)
		}
		switch key {
		case KeyUserID:
			s.UserID = value
		case KeyAccessToken:
			s.AccessToken = value
		case KeyRefreshToken:
			s.RefreshToken = value
		}
	}
	return s, rows.Err()
}

func (c *SQLiteCache) AccessToken(ctx context.Context) (string, error) {
	var v string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM token_cache WHERE key = ?`, KeyAccessToken).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read access token: %w", err)
	}
	return v, nil
}

// RemoveSession deletes all three keys in one statement.
func (c *SQLiteCache) RemoveSession(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM token_cache WHERE key IN (?, ?, ?)`,
		KeyUserID, KeyAccessToken, KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

func checkComplete(s Session) error {
	if s.UserID == "" || s.AccessToken == "" || s.RefreshToken == "" {
		logger.Warnf("refusing to cache partial session: user=%q access=%s refresh=%s",
			s.UserID, logger.Redact(s.AccessToken), logger.Redact(s.RefreshToken))
		return ErrIncompleteSession
	}
	return nil
}
