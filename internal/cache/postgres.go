package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS profile_cache (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS profile_cache_expires_at_idx ON profile_cache (expires_at);
`

// PostgresCache is a KV backed by the profile_cache table.
type PostgresCache struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresCache(dsn string, logger *slog.Logger) (*PostgresCache, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresCache{
		db:     db,
		logger: logger.With("component", "postgres_cache"),
	}, nil
}

func (c *PostgresCache) Close() error {
	return c.db.Close()
}

func (c *PostgresCache) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM profile_cache
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		c.logger.Debug("cache miss", "key", key)
		return nil, nil
	}
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		return nil, err
	}
	return value, nil
}

func (c *PostgresCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: time.Now().Add(ttl), Valid: true}
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO profile_cache (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
	return err
}

func (c *PostgresCache) DeletePattern(ctx context.Context, pattern string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM profile_cache WHERE key LIKE $1 ESCAPE '\'`, globToLike(pattern))
	return err
}

// PruneExpired deletes expired rows.
func (c *PostgresCache) PruneExpired(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM profile_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// globToLike converts a * glob into a LIKE pattern, escaping LIKE's own
// wildcards.
func globToLike(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '%', '_', '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		case '*':
			b.WriteRune('%')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
