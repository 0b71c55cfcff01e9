package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/telemetry"
)

const (
	defaultElectionKey     = "cadence:leader:driver"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalFraction = 3
)

// Lock is the lease primitive the election campaigns on.
type Lock interface {
	// Acquire takes the lease when free or renews it when owner already holds it.
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Release drops the lease only if owner still holds it.
	Release(ctx context.Context, key, owner string) error
	// Owner returns the current holder, or "" when nobody holds the lease.
	Owner(ctx context.Context, key string) (string, error)
}

// ElectionConfig configures leader election behavior
type ElectionConfig struct {
	// ElectionKey is the key holding the lease
	ElectionKey string

	// LeaseDuration is how long a lease stays valid without renewal
	LeaseDuration time.Duration

	// RetryInterval is how often the lease is renewed or contested
	RetryInterval time.Duration

	// InstanceID uniquely identifies this instance
	InstanceID string
}

// DefaultConfig returns default election configuration
func DefaultConfig() ElectionConfig {
	return ElectionConfig{
		ElectionKey:   defaultElectionKey,
		LeaseDuration: defaultLeaseDuration,
		RetryInterval: defaultLeaseDuration / defaultRenewalFraction,
		InstanceID:    uuid.NewString(),
	}
}

func (c ElectionConfig) withDefaults() ElectionConfig {
	if c.ElectionKey == "" {
		c.ElectionKey = defaultElectionKey
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = defaultLeaseDuration
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = c.LeaseDuration / defaultRenewalFraction
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
	return c
}

// Election campaigns for a single lease so that only one instance drives the schedule.
type Election struct {
	lock      Lock
	config    ElectionConfig
	publisher events.Publisher
	logger    zerolog.Logger

	isLeader atomic.Bool
	leaderCh chan bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewElection creates an election over lock. A nil publisher discards leadership events.
func NewElection(lock Lock, config ElectionConfig, publisher events.Publisher, logger zerolog.Logger) *Election {
	if publisher == nil {
		publisher = events.Nop{}
	}
	config = config.withDefaults()
	return &Election{
		lock:      lock,
		config:    config,
		publisher: publisher,
		logger:    logger.With().Str("component", "leader_election").Str("instance_id", config.InstanceID).Logger(),
		leaderCh:  make(chan bool, 1),
	}
}

// InstanceID returns this instance's identity in the election.
func (e *Election) InstanceID() string { return e.config.InstanceID }

// Start begins campaigning in the background.
func (e *Election) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return errors.New("election already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	e.logger.Info().
		Str("key", e.config.ElectionKey).
		Dur("lease_duration", e.config.LeaseDuration).
		Msg("starting leader election")

	go e.campaignLoop(ctx)
	return nil
}

// Stop ends the campaign and releases the lease if held.
func (e *Election) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	if !e.isLeader.Load() {
		return nil
	}
	ctx, cancelRelease := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelRelease()
	err := e.lock.Release(ctx, e.config.ElectionKey, e.config.InstanceID)
	e.setLeader(false)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	e.logger.Info().Msg("released leadership lease")
	return nil
}

// IsLeader returns whether this instance currently holds the lease.
func (e *Election) IsLeader() bool { return e.isLeader.Load() }

// LeaderCh receives leadership transitions. Only the latest is buffered.
func (e *Election) LeaderCh() <-chan bool { return e.leaderCh }

// GetLeader returns the current leader instance ID, or "" when there is none.
func (e *Election) GetLeader(ctx context.Context) (string, error) {
	return e.lock.Owner(ctx, e.config.ElectionKey)
}

func (e *Election) campaignLoop(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.config.RetryInterval)
	defer ticker.Stop()

	e.attempt(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.attempt(ctx)
		}
	}
}

func (e *Election) attempt(ctx context.Context) {
	held, err := e.lock.Acquire(ctx, e.config.ElectionKey, e.config.InstanceID, e.config.LeaseDuration)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Error().Err(err).Msg("failed to acquire leadership lease")
		held = false
	}
	e.setLeader(held)
}

func (e *Election) setLeader(leader bool) {
	if e.isLeader.Swap(leader) == leader {
		return
	}

	id := e.config.InstanceID
	if leader {
		e.logger.Info().Msg("acquired leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(id).Set(1)
		telemetry.LeaderElectionChanges.WithLabelValues(id, "acquired").Inc()
		e.publisher.Publish(events.EventLeadershipAcquired, events.Payload{"instance_id": id})
	} else {
		e.logger.Warn().Msg("lost leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(id).Set(0)
		telemetry.LeaderElectionChanges.WithLabelValues(id, "lost").Inc()
		e.publisher.Publish(events.EventLeadershipLost, events.Payload{"instance_id": id})
	}

	// Replace any unread transition with the newest one.
	select {
	case <-e.leaderCh:
	default:
	}
	e.leaderCh <- leader
}

// RedisLock implements Lock with SET NX PX and owner-checked scripts.
type RedisLock struct {
	client *redis.Client
}

var (
	renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)
)

// NewRedisLock connects to Redis and verifies the server answers.
func NewRedisLock(ctx context.Context, addr, password string, db int) (*RedisLock, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisLock{client: client}, nil
}

// Acquire implements Lock.
func (l *RedisLock) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}

	renewed, err := renewScript.Run(ctx, l.client, []string{key}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return renewed == 1, nil
}

// Release implements Lock.
func (l *RedisLock) Release(ctx context.Context, key, owner string) error {
	return releaseScript.Run(ctx, l.client, []string{key}, owner).Err()
}

// Owner implements Lock.
func (l *RedisLock) Owner(ctx context.Context, key string) (string, error) {
	owner, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return owner, nil
}

// Close closes the Redis client.
func (l *RedisLock) Close() error { return l.client.Close() }
