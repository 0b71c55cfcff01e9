/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/arrival"
	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/profile"
	"github.com/friendsincode/cadence/internal/telemetry"
)

var (
	// ErrAlreadyStarted is returned when Run or Start is called twice on one driver.
	ErrAlreadyStarted = errors.New("driver already started")

	// ErrEmptySchedule is returned when the schedule has no events to fire.
	ErrEmptySchedule = errors.New("schedule has no events")
)

// State is a driver lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateScheduled  State = "scheduled"
	StateFired      State = "fired"
	StateWrappedDay State = "wrapped_day"
	StateStopped    State = "stopped"
)

var allStates = []State{StateIdle, StateScheduled, StateFired, StateWrappedDay, StateStopped}

// StopReason says why a driver reached StateStopped.
type StopReason string

const (
	StopExhausted StopReason = "exhausted"
	StopCancelled StopReason = "cancelled"
	StopFailed    StopReason = "failed"
)

// Status is a point-in-time snapshot of a driver.
type Status struct {
	RunID       string     `json:"run_id"`
	Profile     string     `json:"profile"`
	State       State      `json:"state"`
	StopReason  StopReason `json:"stop_reason,omitempty"`
	Index       int        `json:"index"`
	Anchor      time.Time  `json:"anchor"`
	NextFireAt  time.Time  `json:"next_fire_at"`
	Fired       int64      `json:"fired"`
	DayWraps    int64      `json:"day_wraps"`
	ScheduleLen int        `json:"schedule_len"`
}

// Driver fires one pull of a Sequence at each scheduled offset of the day,
// re-anchoring to the next midnight whenever the schedule is exhausted. All
// firing happens on a single goroutine, so at most one timer is ever pending.
type Driver[T any] struct {
	schedule  arrival.Schedule
	clock     Clock
	logger    zerolog.Logger
	publisher events.Publisher
	profile   string
	runID     string

	mu       sync.Mutex
	started  bool
	state    State
	reason   StopReason
	cursor   Cursor
	fired    int64
	dayWraps int64
	err      error
	done     chan struct{}
}

// New creates an idle driver for a schedule.
func New[T any](schedule arrival.Schedule, opts ...Option) *Driver[T] {
	o := buildOptions(opts)
	d := &Driver[T]{
		schedule:  schedule,
		clock:     o.clock,
		publisher: o.publisher,
		profile:   o.profile,
		runID:     o.runID,
		state:     StateIdle,
		done:      make(chan struct{}),
	}
	d.logger = o.logger.With().
		Str("component", "driver").
		Str("run_id", d.runID).
		Str("profile", d.profile).
		Logger()
	telemetry.ScheduleSize.WithLabelValues(d.profile).Set(float64(schedule.Len()))
	for _, st := range allStates {
		telemetry.DriverState.WithLabelValues(d.profile, string(st)).Set(0)
	}
	telemetry.DriverState.WithLabelValues(d.profile, string(StateIdle)).Set(1)
	return d
}

// Execute builds a day's schedule from the target count and weights and starts
// a driver on it without blocking. Cancel ctx to stop the driver early.
func Execute[T any](ctx context.Context, seq Sequence[T], target float64, weights profile.Weights, opts ...Option) (*Driver[T], error) {
	o := buildOptions(opts)

	_, span := telemetry.StartSpan(ctx, "driver", "BuildSchedule")
	buildStart := time.Now()
	schedule, rates, err := arrival.Build(o.sampler, target, weights)
	telemetry.ScheduleBuildDuration.WithLabelValues(o.profile).Observe(time.Since(buildStart).Seconds())
	if err != nil {
		telemetry.RecordError(span, err)
		span.End()
		return nil, fmt.Errorf("build schedule: %w", err)
	}
	telemetry.AddSpanAttributes(span, map[string]any{
		"profile":        o.profile,
		"target":         target,
		"expected_total": rates.ExpectedTotal(),
		"schedule_len":   schedule.Len(),
	})
	span.End()

	d := New[T](schedule, append(opts, WithRunID(o.runID))...)
	if err := d.Start(ctx, seq); err != nil {
		return nil, err
	}
	return d, nil
}

// Schedule returns the offsets the driver replays.
func (d *Driver[T]) Schedule() arrival.Schedule { return d.schedule }

// Start runs the driver on its own goroutine. Use Wait or Done to observe completion.
func (d *Driver[T]) Start(ctx context.Context, seq Sequence[T]) error {
	if err := d.begin(); err != nil {
		return err
	}
	go func() {
		d.finish(d.loop(ctx, seq))
	}()
	return nil
}

// Run drives the schedule on the calling goroutine until the sequence is
// exhausted or ctx is cancelled. Exhaustion returns nil.
func (d *Driver[T]) Run(ctx context.Context, seq Sequence[T]) error {
	if err := d.begin(); err != nil {
		return err
	}
	err := d.loop(ctx, seq)
	d.finish(err)
	return err
}

// Done is closed once the driver has stopped.
func (d *Driver[T]) Done() <-chan struct{} { return d.done }

// Wait blocks until the driver stops and returns its terminal error.
func (d *Driver[T]) Wait() error {
	<-d.done
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Status returns a snapshot of the driver.
func (d *Driver[T]) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := Status{
		RunID:       d.runID,
		Profile:     d.profile,
		State:       d.state,
		StopReason:  d.reason,
		Index:       d.cursor.Index,
		Anchor:      d.cursor.Anchor,
		Fired:       d.fired,
		DayWraps:    d.dayWraps,
		ScheduleLen: d.schedule.Len(),
	}
	if d.state != StateIdle && d.state != StateStopped {
		st.NextFireAt = d.cursor.Due(d.schedule)
	}
	return st
}

func (d *Driver[T]) begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrAlreadyStarted
	}
	d.started = true
	return nil
}

func (d *Driver[T]) loop(ctx context.Context, seq Sequence[T]) error {
	if d.schedule.Len() == 0 {
		return ErrEmptySchedule
	}

	now := d.clock.Now()
	cursor, wrapped := Locate(d.schedule, now)
	d.mu.Lock()
	d.cursor = cursor
	d.mu.Unlock()

	d.logger.Info().
		Int("schedule_len", d.schedule.Len()).
		Int("index", cursor.Index).
		Bool("starts_tomorrow", wrapped).
		Time("first_fire_at", cursor.Due(d.schedule)).
		Msg("driver started")
	d.publisher.Publish(events.EventDriverStarted, events.Payload{
		"run_id":       d.runID,
		"profile":      d.profile,
		"schedule_len": d.schedule.Len(),
		"index":        cursor.Index,
	})

	for {
		d.transition(StateScheduled)
		due := cursor.Due(d.schedule)
		timer := d.clock.NewTimer(cursor.Delay(d.schedule, now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}

		firedAt := d.clock.Now()
		d.transition(StateFired)

		item, ok := seq.Next()
		if !ok {
			return nil
		}
		d.recordFire(cursor, due, firedAt, item)

		cursor, wrapped = cursor.Advance(d.schedule)
		d.mu.Lock()
		d.cursor = cursor
		if wrapped {
			d.dayWraps++
		}
		d.mu.Unlock()
		if wrapped {
			d.recordWrap(cursor)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		now = d.clock.Now()
	}
}

func (d *Driver[T]) recordFire(c Cursor, due, firedAt time.Time, item T) {
	d.mu.Lock()
	d.fired++
	fired := d.fired
	d.mu.Unlock()

	lag := firedAt.Sub(due)
	telemetry.PulsesFiredTotal.WithLabelValues(d.profile).Inc()
	telemetry.FireLagSeconds.WithLabelValues(d.profile).Observe(lag.Seconds())

	d.logger.Debug().
		Int("index", c.Index).
		Int64("fired", fired).
		Dur("lag", lag).
		Msg("pulse fired")
	d.publisher.Publish(events.EventPulseFired, events.Payload{
		"run_id":       d.runID,
		"index":        c.Index,
		"scheduled_at": due,
		"fired_at":     firedAt,
		"item":         item,
	})
}

func (d *Driver[T]) recordWrap(c Cursor) {
	d.transition(StateWrappedDay)
	telemetry.DayWrapsTotal.WithLabelValues(d.profile).Inc()
	d.logger.Info().Time("anchor", c.Anchor).Msg("schedule exhausted, rolled over to next day")
	d.publisher.Publish(events.EventDayWrapped, events.Payload{
		"run_id": d.runID,
		"anchor": c.Anchor,
	})
}

func (d *Driver[T]) transition(to State) {
	d.mu.Lock()
	from := d.state
	d.state = to
	d.mu.Unlock()

	if from == to {
		return
	}
	telemetry.DriverState.WithLabelValues(d.profile, string(from)).Set(0)
	telemetry.DriverState.WithLabelValues(d.profile, string(to)).Set(1)
}

func (d *Driver[T]) finish(err error) {
	reason := StopExhausted
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = StopCancelled
	case err != nil:
		reason = StopFailed
	}

	d.transition(StateStopped)
	d.mu.Lock()
	d.reason = reason
	d.err = err
	fired := d.fired
	d.mu.Unlock()

	logEvent := d.logger.Info()
	if reason == StopFailed {
		logEvent = d.logger.Error().Err(err)
	}
	logEvent.Str("reason", string(reason)).Int64("fired", fired).Msg("driver stopped")

	d.publisher.Publish(events.EventDriverStopped, events.Payload{
		"run_id": d.runID,
		"reason": string(reason),
		"fired":  fired,
	})
	close(d.done)
}

// Option configures a driver.
type Option func(*options)

type options struct {
	clock     Clock
	logger    zerolog.Logger
	publisher events.Publisher
	profile   string
	runID     string
	sampler   *arrival.Sampler
}

func buildOptions(opts []Option) options {
	o := options{
		clock:     SystemClock{},
		logger:    zerolog.Nop(),
		publisher: events.Nop{},
		profile:   "custom",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	if o.sampler == nil {
		o.sampler = arrival.NewSampler()
	}
	return o
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option { return func(o *options) { o.clock = c } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.logger = l } }

// WithPublisher sets where lifecycle events go.
func WithPublisher(p events.Publisher) Option { return func(o *options) { o.publisher = p } }

// WithProfileName labels logs, events and metrics.
func WithProfileName(name string) Option { return func(o *options) { o.profile = name } }

// WithRunID sets the run identifier instead of generating one.
func WithRunID(id string) Option { return func(o *options) { o.runID = id } }

// WithSampler sets the random source used by Execute to build the schedule.
func WithSampler(s *arrival.Sampler) Option { return func(o *options) { o.sampler = s } }
