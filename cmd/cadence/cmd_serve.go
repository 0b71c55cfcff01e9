/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/cadence/internal/arrival"
	"github.com/friendsincode/cadence/internal/cache"
	"github.com/friendsincode/cadence/internal/config"
	"github.com/friendsincode/cadence/internal/db"
	"github.com/friendsincode/cadence/internal/driver"
	"github.com/friendsincode/cadence/internal/eventbus"
	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/leadership"
	"github.com/friendsincode/cadence/internal/logbuffer"
	"github.com/friendsincode/cadence/internal/logging"
	"github.com/friendsincode/cadence/internal/profile"
	"github.com/friendsincode/cadence/internal/queue"
	"github.com/friendsincode/cadence/internal/server"
	"github.com/friendsincode/cadence/internal/telemetry"
	"github.com/friendsincode/cadence/internal/version"
)

const queuePollInterval = 5 * time.Second

var serveItems int64

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the driver and the HTTP status server",
	Long: `Run the driver against the configured profile.

With CADENCE_DB_DSN set, each pulse claims one item from the work queue and
the driver idles while the queue is empty. Without a database each pulse
emits a counter value, up to --items pulses (0 runs until stopped).`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int64Var(&serveItems, "items", 0, "Stop after this many pulses when no queue is configured (0 = unbounded)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	logBuf := logbuffer.New(logbuffer.DefaultCapacity)
	logger = logging.SetupWithBuffer(cfg.Environment, cfg.LogLevel, logBuf)

	prof, target, err := cfg.ResolveProfile()
	if err != nil {
		return err
	}
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = eventbus.NodeID()
	}

	logger.Info().
		Str("profile", prof.Name).
		Float64("target", target).
		Str("instance_id", instanceID).
		Msg("cadence starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "cadence",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	publisher, closePublisher, err := newPublisher(cfg, bus, instanceID)
	if err != nil {
		return err
	}
	defer closePublisher()

	var store *queue.Store
	if cfg.QueueEnabled() {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close(database)
		go sampleConnections(ctx, database)
		store = queue.NewStore(database, publisher, logger)
	}

	scheduleCache := cache.Disabled(logger)
	if cfg.ScheduleCacheEnabled {
		scheduleCache = cache.New(cache.Config{
			RedisAddr:      cfg.RedisAddr,
			RedisPassword:  cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			ScheduleTTL:    cache.DefaultScheduleTTL,
			DisableOnError: true,
		}, logger)
		defer scheduleCache.Close()
	}

	sampler := arrival.NewSampler()
	if cfg.HasSeed {
		sampler = arrival.NewSeededSampler(cfg.Seed)
	}

	tracker := &server.Tracker{}
	r := &runner{
		profile:   prof,
		target:    target,
		owner:     instanceID,
		sampler:   sampler,
		cache:     scheduleCache,
		publisher: publisher,
		store:     store,
		tracker:   tracker,
		items:     serveItems,
	}

	srvOpts := []server.Option{server.WithLogBuffer(logBuf)}
	if store != nil {
		srvOpts = append(srvOpts, server.WithQueue(store))
	}

	if cfg.LeaderElectionEnabled {
		lock, err := leadership.NewRedisLock(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("leader election: %w", err)
		}
		defer lock.Close()

		election := leadership.NewElection(lock, leadership.ElectionConfig{
			InstanceID:    instanceID,
			LeaseDuration: cfg.LeaderLease,
		}, publisher, logger)
		if err := election.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := election.Stop(); err != nil {
				logger.Error().Err(err).Msg("failed to stop leader election")
			}
		}()
		srvOpts = append(srvOpts, server.WithLeader(election.IsLeader))

		go leadership.RunWhileLeader(ctx, election, logger, r.run)
	} else {
		go func() {
			if err := r.run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("driver failed")
			}
		}()
	}

	srv := server.New(fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort), tracker, logger, srvOpts...)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
		stop()
	}

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("cadence stopped")
	return nil
}

// runner starts one driver per run and, with a queue, restarts it whenever
// new items arrive after the queue drained.
type runner struct {
	profile   profile.Profile
	target    float64
	owner     string
	sampler   *arrival.Sampler
	cache     *cache.Cache
	publisher events.Publisher
	store     *queue.Store
	tracker   *server.Tracker
	items     int64
}

func (r *runner) run(ctx context.Context) error {
	if r.store == nil {
		seq := driver.Counter()
		if r.items > 0 {
			seq = limit(seq, r.items)
		}
		return runDriver(ctx, r, seq, uuid.NewString())
	}

	for {
		runID := uuid.NewString()
		if err := runDriver(ctx, r, r.store.Sequence(ctx, runID), runID); err != nil {
			return err
		}
		if err := r.store.Err(); err != nil {
			return fmt.Errorf("queue: %w", err)
		}
		if err := r.awaitWork(ctx); err != nil {
			return err
		}
	}
}

func (r *runner) awaitWork(ctx context.Context) error {
	ticker := time.NewTicker(queuePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.store.Pending(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("poll pending items")
				continue
			}
			if n > 0 {
				logger.Info().Int64("pending", n).Msg("work arrived, restarting driver")
				return nil
			}
		}
	}
}

// runDriver resolves the day's schedule, runs a driver on it until seq is
// exhausted or ctx ends, and keeps the tracker pointed at it meanwhile.
func runDriver[T any](ctx context.Context, r *runner, seq driver.Sequence[T], runID string) error {
	rates, err := profile.InverseRates(r.target, r.profile.Weights)
	if err != nil {
		return err
	}
	opts := []driver.Option{
		driver.WithLogger(logger),
		driver.WithPublisher(r.publisher),
		driver.WithProfileName(r.profile.Name),
		driver.WithRunID(runID),
		driver.WithSampler(r.sampler),
	}

	var d *driver.Driver[T]
	if r.cache.IsAvailable() {
		schedule, hit, err := r.cache.ScheduleOrBuild(ctx, r.profile.Name, r.target, r.profile.Weights, r.owner, func() (arrival.Schedule, error) {
			s, _, err := arrival.Build(r.sampler, r.target, r.profile.Weights)
			return s, err
		})
		if err != nil {
			return err
		}
		logger.Info().Bool("cache_hit", hit).Int("schedule_len", schedule.Len()).Msg("schedule resolved")
		d = driver.New[T](schedule, opts...)
		if err := d.Start(ctx, seq); err != nil {
			return err
		}
	} else {
		d, err = driver.Execute(ctx, seq, r.target, r.profile.Weights, opts...)
		if err != nil {
			return err
		}
	}

	r.tracker.Set(d, rates, r.target)
	err = d.Wait()
	if ctx.Err() != nil {
		r.tracker.Clear()
	}
	return err
}

func limit[T any](seq driver.Sequence[T], n int64) driver.Sequence[T] {
	var pulled int64
	return driver.SequenceFunc[T](func() (T, bool) {
		if pulled >= n {
			var zero T
			return zero, false
		}
		pulled++
		return seq.Next()
	})
}

func newPublisher(cfg *config.Config, bus *events.Bus, nodeID string) (events.Publisher, func(), error) {
	switch cfg.EventBackend {
	case config.EventsNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.Subject = cfg.EventSubject
		nb, err := eventbus.NewNATSBus(natsCfg, bus, nodeID, logger)
		if err != nil {
			return nil, nil, err
		}
		return nb, func() { _ = nb.Close() }, nil
	case config.EventsRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		redisCfg.Channel = cfg.EventSubject
		rb := eventbus.NewRedisBus(redisCfg, bus, nodeID, logger)
		return rb, func() { _ = rb.Close() }, nil
	default:
		return bus, func() {}, nil
	}
}

func openDatabase() (*gorm.DB, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return nil, err
	}
	return database, nil
}

func sampleConnections(ctx context.Context, database *gorm.DB) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			db.UpdateConnectionMetrics(database)
		}
	}
}
