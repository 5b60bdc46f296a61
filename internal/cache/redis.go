package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisKeyPrefix = "windview:"
	// unlinkBatch is how many scanned keys are removed per UNLINK
	unlinkBatch = 500
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces profile keys so deployments can share a
	// database. Empty means DefaultRedisKeyPrefix.
	KeyPrefix string
}

// RedisCache stores profile entries as plain Redis strings and lets Redis
// expire them.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisCache(opts RedisOptions, logger *slog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("profile store %s: %w", opts.Addr, err)
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "redis_cache", "prefix", prefix),
	}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// Set writes value with the given expiry. A zero ttl keeps the entry until
// it is cleared.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("profile %s: negative ttl %v", key, ttl)
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		c.logger.Error("profile write failed", "key", key, "error", err)
		return err
	}
	c.logger.Debug("profile stored", "key", key, "size_bytes", len(value), "expires_in", ttl)
	return nil
}

// Get reads the entry and its remaining lifetime in one round trip.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		val *redis.StringCmd
		ttl *redis.DurationCmd
	)
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		val = p.Get(ctx, c.key(key))
		ttl = p.PTTL(ctx, c.key(key))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Error("profile read failed", "key", key, "error", err)
		return nil, err
	}

	data, err := val.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.logger.Debug("profile found", "key", key, "size_bytes", len(data), "expires_in", ttl.Val())
	return data, nil
}

// DeletePattern scans for matching keys and unlinks them in batches.
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	var (
		batch   []string
		removed int64
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Unlink(ctx, batch...).Result()
		if err != nil {
			return err
		}
		removed += n
		batch = batch[:0]
		return nil
	}

	iter := c.client.Scan(ctx, 0, c.key(pattern), unlinkBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == unlinkBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}
	c.logger.Info("profiles cleared", "pattern", pattern, "removed", removed)
	return nil
}
