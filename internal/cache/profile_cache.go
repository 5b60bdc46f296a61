package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"windview/internal/domain"
)

// Entry is the stored form of a profile. Entries are never updated in
// place; a newer write replaces the whole value.
type Entry struct {
	Profile   *domain.Profile `json:"profile"`
	WrittenAt time.Time       `json:"writtenAt"`
}

// ProfileCache maps profile keys to previously computed profiles. An entry
// older than the TTL is treated as absent even if the backend still holds
// it.
type ProfileCache struct {
	kv     KV
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewProfileCache(kv KV, ttl time.Duration, logger *slog.Logger) *ProfileCache {
	return &ProfileCache{
		kv:     kv,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "profile_cache"),
	}
}

// WithClock replaces the time source used to stamp and expire entries.
func (c *ProfileCache) WithClock(now func() time.Time) *ProfileCache {
	c.now = now
	return c
}

func (c *ProfileCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached profile for key, or ok=false on a miss, an
// expired entry or an undecodable value.
func (c *ProfileCache) Get(ctx context.Context, key string) (*domain.Profile, bool, error) {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("profile cache get: %w", err)
	}
	if data == nil {
		return nil, false, nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("ignoring undecodable cache entry", "key", key, "error", err)
		return nil, false, nil
	}
	if entry.Profile == nil || entry.Profile.Len() < 2 {
		c.logger.Warn("ignoring malformed cache entry", "key", key)
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().Sub(entry.WrittenAt) > c.ttl {
		c.logger.Debug("cache entry expired", "key", key, "written_at", entry.WrittenAt)
		return nil, false, nil
	}
	return entry.Profile, true, nil
}

func (c *ProfileCache) Set(ctx context.Context, key string, profile *domain.Profile) error {
	data, err := json.Marshal(Entry{Profile: profile, WrittenAt: c.now()})
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		return fmt.Errorf("profile cache set: %w", err)
	}
	return nil
}

// Clear removes every cached profile.
func (c *ProfileCache) Clear(ctx context.Context) error {
	if err := c.kv.DeletePattern(ctx, KeyProfilePattern); err != nil {
		return fmt.Errorf("profile cache clear: %w", err)
	}
	c.logger.Info("profile cache cleared")
	return nil
}
