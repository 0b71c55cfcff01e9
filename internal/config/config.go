/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/cadence/internal/profile"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EventBackend selects where lifecycle events and dispatched items are published.
type EventBackend string

const (
	EventsMemory EventBackend = "memory"
	EventsNATS   EventBackend = "nats"
	EventsRedis  EventBackend = "redis"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	LogLevel    string
	HTTPBind    string
	HTTPPort    int

	// Schedule
	Profile     string  // preset name
	ProfileFile string  // optional YAML profile, overrides Profile
	TargetCount float64 // expected pulses per day
	Seed        uint64  // 0 means random
	HasSeed     bool

	// Work item queue
	DBBackend DatabaseBackend
	DBDSN     string

	// Event fan-out
	EventBackend EventBackend
	NATSURL      string
	EventSubject string // NATS subject or Redis channel prefix

	// Redis (event bus and leader election)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Multi-instance configuration
	ScheduleCacheEnabled  bool
	LeaderElectionEnabled bool
	LeaderLease           time.Duration
	InstanceID            string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"CADENCE_ENV"}, "development"),
		LogLevel:    getEnvAny([]string{"CADENCE_LOG_LEVEL"}, ""),
		HTTPBind:    getEnvAny([]string{"CADENCE_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"CADENCE_HTTP_PORT"}, 8080),

		Profile:     getEnvAny([]string{"CADENCE_PROFILE"}, "user-visit"),
		ProfileFile: getEnvAny([]string{"CADENCE_PROFILE_FILE"}, ""),
		TargetCount: getEnvFloatAny([]string{"CADENCE_TARGET_COUNT"}, 10000),

		DBBackend: DatabaseBackend(getEnvAny([]string{"CADENCE_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"CADENCE_DB_DSN"}, ""),

		EventBackend: EventBackend(getEnvAny([]string{"CADENCE_EVENTS_BACKEND"}, string(EventsMemory))),
		NATSURL:      getEnvAny([]string{"CADENCE_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
		EventSubject: getEnvAny([]string{"CADENCE_EVENTS_SUBJECT", "CADENCE_NATS_SUBJECT"}, "cadence.events"),

		RedisAddr:     getEnvAny([]string{"CADENCE_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"CADENCE_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"CADENCE_REDIS_DB"}, 0),

		ScheduleCacheEnabled:  getEnvBoolAny([]string{"CADENCE_SCHEDULE_CACHE_ENABLED"}, false),
		LeaderElectionEnabled: getEnvBoolAny([]string{"CADENCE_LEADER_ELECTION_ENABLED"}, false),
		LeaderLease:           time.Duration(getEnvIntAny([]string{"CADENCE_LEADER_LEASE_SECONDS"}, 15)) * time.Second,
		InstanceID:            getEnvAny([]string{"CADENCE_INSTANCE_ID"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"CADENCE_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"CADENCE_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"CADENCE_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if raw := getEnvAny([]string{"CADENCE_SEED"}, ""); raw != "" {
		seed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("CADENCE_SEED must be an unsigned integer: %w", err)
		}
		cfg.Seed, cfg.HasSeed = seed, true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field combinations that cannot work.
func (c *Config) Validate() error {
	if c.TargetCount <= 0 {
		return fmt.Errorf("CADENCE_TARGET_COUNT must be positive, got %v", c.TargetCount)
	}

	if c.ProfileFile == "" {
		if _, ok := profile.Lookup(c.Profile); !ok {
			return fmt.Errorf("unknown profile %q (available: %s)", c.Profile, strings.Join(profile.Names(), ", "))
		}
	}

	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}

	switch c.EventBackend {
	case EventsMemory, EventsNATS, EventsRedis:
	default:
		return fmt.Errorf("unsupported events backend %q", c.EventBackend)
	}

	if c.LeaderElectionEnabled && c.RedisAddr == "" {
		return fmt.Errorf("CADENCE_REDIS_ADDR is required when leader election is enabled")
	}
	if c.LeaderLease <= 0 {
		return fmt.Errorf("CADENCE_LEADER_LEASE_SECONDS must be positive")
	}
	return nil
}

// ResolveProfile returns the configured profile and daily target.
// A target in the profile file wins over CADENCE_TARGET_COUNT.
func (c *Config) ResolveProfile() (profile.Profile, float64, error) {
	if c.ProfileFile != "" {
		p, target, err := profile.LoadFile(c.ProfileFile)
		if err != nil {
			return profile.Profile{}, 0, err
		}
		if target == 0 {
			target = c.TargetCount
		}
		return p, target, nil
	}

	p, ok := profile.Lookup(c.Profile)
	if !ok {
		return profile.Profile{}, 0, fmt.Errorf("unknown profile %q", c.Profile)
	}
	return p, c.TargetCount, nil
}

// QueueEnabled reports whether a work item database is configured.
func (c *Config) QueueEnabled() bool {
	return c.DBDSN != ""
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
