/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/telemetry"
)

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures  int
	RetryAfter   time.Duration
	PublishLimit time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Channel:      "cadence.events",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxFailures:  5,
		RetryAfter:   30 * time.Second,
		PublishLimit: 2 * time.Second,
	}
}

// RedisBus publishes events on Redis pub/sub channels. After MaxFailures
// consecutive errors it stops trying Redis for RetryAfter and only delivers
// locally, then probes again.
type RedisBus struct {
	client *redis.Client
	cfg    RedisConfig
	local  *events.Bus
	nodeID string
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	failCount int
	openUntil time.Time
}

// NewRedisBus creates a Redis-backed bus. An unreachable server at startup is
// not an error: the breaker starts open and the bus retries later.
func NewRedisBus(cfg RedisConfig, local *events.Bus, nodeID string, logger zerolog.Logger) *RedisBus {
	rb := &RedisBus{
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}),
		cfg:    cfg,
		local:  local,
		nodeID: nodeID,
		logger: logger.With().Str("component", "eventbus").Str("backend", "redis").Logger(),
		now:    time.Now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := rb.client.Ping(ctx).Err(); err != nil {
		rb.logger.Warn().Err(err).Msg("Redis unreachable, delivering locally until it recovers")
		rb.trip()
	} else {
		rb.logger.Info().Str("addr", cfg.Addr).Msg("Redis event bus initialized")
	}
	return rb
}

// Publish implements events.Publisher.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	if rb.local != nil {
		rb.local.Publish(eventType, payload)
	}
	if !rb.allow() {
		return
	}

	data, err := encodeMessage(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Msg("failed to marshal Redis message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), rb.cfg.PublishLimit)
	defer cancel()
	if err := rb.client.Publish(ctx, subject(rb.cfg.Channel, eventType), data).Err(); err != nil {
		telemetry.EventPublishErrorsTotal.WithLabelValues("redis").Inc()
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to Redis")
		rb.recordFailure()
		return
	}
	rb.recordSuccess()
}

// Watch pattern-subscribes to every event channel under the configured prefix.
func (rb *RedisBus) Watch(ctx context.Context, h Handler) error {
	pubsub := rb.client.PSubscribe(ctx, rb.cfg.Channel+".*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe %s: %w", rb.cfg.Channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			msg, err := decodeMessage([]byte(m.Payload))
			if err != nil {
				rb.logger.Warn().Err(err).Str("channel", m.Channel).Msg("dropping undecodable message")
				continue
			}
			h(msg)
		}
	}
}

// Close closes the Redis client.
func (rb *RedisBus) Close() error {
	rb.logger.Info().Msg("closing Redis event bus")
	return rb.client.Close()
}

// allow reports whether the breaker lets a publish through.
func (rb *RedisBus) allow() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.openUntil.IsZero() || !rb.now().Before(rb.openUntil)
}

func (rb *RedisBus) recordFailure() {
	rb.mu.Lock()
	rb.failCount++
	tripped := rb.failCount >= rb.cfg.MaxFailures
	rb.mu.Unlock()

	if tripped {
		rb.logger.Warn().Int("fail_count", rb.cfg.MaxFailures).Msg("Redis failure threshold reached, delivering locally only")
		rb.trip()
	}
}

func (rb *RedisBus) recordSuccess() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if !rb.openUntil.IsZero() {
		rb.logger.Info().Msg("Redis publishing recovered")
	}
	rb.failCount = 0
	rb.openUntil = time.Time{}
}

func (rb *RedisBus) trip() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.failCount = 0
	rb.openUntil = rb.now().Add(rb.cfg.RetryAfter)
}
