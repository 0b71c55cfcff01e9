/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache keeps the active daily schedule in Redis so that a new leader
// replays the same offsets instead of drawing a fresh day.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/arrival"
	"github.com/friendsincode/cadence/internal/profile"
)

// DefaultScheduleTTL keeps a cached schedule for one day past its last write.
const DefaultScheduleTTL = 24 * time.Hour

// KeySchedule prefixes cached schedules; the profile name follows.
const KeySchedule = "cadence:cache:schedule:"

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ScheduleTTL time.Duration

	// DisableOnError turns the cache off after the first Redis error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		ScheduleTTL:    DefaultScheduleTTL,
		DisableOnError: true,
	}
}

// CachedSchedule is a schedule together with what it was built from.
type CachedSchedule struct {
	Profile string           `json:"profile"`
	Target  float64          `json:"target"`
	Weights profile.Weights  `json:"weights"`
	Offsets arrival.Schedule `json:"offsets"`
	BuiltAt time.Time        `json:"built_at"`
	BuiltBy string           `json:"built_by"`
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a new cache instance. An unreachable Redis yields a disabled cache, not an error.
func New(cfg Config, logger zerolog.Logger) *Cache {
	if cfg.ScheduleTTL <= 0 {
		cfg.ScheduleTTL = DefaultScheduleTTL
	}
	logger = logger.With().Str("component", "cache").Logger()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return Disabled(logger)
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}
}

// Disabled returns a cache that never hits and never stores.
func Disabled(logger zerolog.Logger) *Cache {
	return &Cache{logger: logger, config: DefaultConfig(), disabled: true}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// GetSchedule returns the cached schedule for profile, if any.
func (c *Cache) GetSchedule(ctx context.Context, profile string) (CachedSchedule, bool) {
	var cs CachedSchedule
	found, err := c.get(ctx, KeySchedule+profile, &cs)
	if err != nil || !found {
		return CachedSchedule{}, false
	}
	if err := cs.Offsets.Validate(); err != nil {
		c.logger.Warn().Err(err).Str("profile", profile).Msg("ignoring malformed cached schedule")
		return CachedSchedule{}, false
	}
	c.logger.Debug().Str("profile", profile).Int("len", cs.Offsets.Len()).Msg("schedule cache hit")
	return cs, true
}

// SetSchedule stores cs under its profile name.
func (c *Cache) SetSchedule(ctx context.Context, cs CachedSchedule) error {
	return c.set(ctx, KeySchedule+cs.Profile, cs, c.config.ScheduleTTL)
}

// InvalidateSchedule drops the cached schedule of profile.
func (c *Cache) InvalidateSchedule(ctx context.Context, profile string) error {
	return c.delete(ctx, KeySchedule+profile)
}

// InvalidateAll drops every cached schedule.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	return c.deletePattern(ctx, KeySchedule+"*")
}

// Matches reports whether cs was built for the given target and weights.
func (cs CachedSchedule) Matches(target float64, weights profile.Weights) bool {
	return cs.Target == target && cs.Weights == weights
}

// ScheduleOrBuild returns the cached schedule for name when it was built
// from the same target and weights, otherwise calls build and caches the result.
func (c *Cache) ScheduleOrBuild(ctx context.Context, name string, target float64, weights profile.Weights, owner string, build func() (arrival.Schedule, error)) (arrival.Schedule, bool, error) {
	if cs, ok := c.GetSchedule(ctx, name); ok {
		if cs.Matches(target, weights) {
			return cs.Offsets, true, nil
		}
		c.logger.Info().Str("profile", name).Msg("cached schedule built from a different profile, rebuilding")
	}

	schedule, err := build()
	if err != nil {
		return nil, false, err
	}
	cs := CachedSchedule{
		Profile: name,
		Target:  target,
		Weights: weights,
		Offsets: schedule,
		BuiltAt: time.Now().UTC(),
		BuiltBy: owner,
	}
	if err := c.SetSchedule(ctx, cs); err != nil {
		c.logger.Warn().Err(err).Str("profile", name).Msg("failed to cache schedule")
	}
	return schedule, false, nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}

// deletePattern walks matching keys with SCAN rather than KEYS.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
