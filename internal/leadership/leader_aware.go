package leadership

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// RunFunc is work that must only run on the leader. It should return once ctx is cancelled.
type RunFunc func(ctx context.Context) error

// leaderRun is one in-flight run started on gaining leadership.
type leaderRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startRun(ctx context.Context, logger zerolog.Logger, run RunFunc) *leaderRun {
	runCtx, cancel := context.WithCancel(ctx)
	r := &leaderRun{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		if err := run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("leader work failed")
		}
	}()
	return r
}

// stop cancels the run and waits for it to return.
func (r *leaderRun) stop() {
	r.cancel()
	<-r.done
}

// RunWhileLeader starts run each time e gains leadership and cancels it when
// leadership is lost. It returns when ctx ends, after the current run exits.
func RunWhileLeader(ctx context.Context, e *Election, logger zerolog.Logger, run RunFunc) {
	logger = logger.With().Str("component", "leader_aware").Logger()

	var current *leaderRun
	defer func() {
		if current != nil {
			current.stop()
		}
	}()

	for {
		var done <-chan struct{}
		if current != nil {
			done = current.done
		}

		select {
		case <-ctx.Done():
			return
		case <-done:
			// run finished on its own; wait for the next transition
			current.cancel()
			current = nil
		case leader := <-e.LeaderCh():
			if leader && current == nil {
				logger.Info().Msg("became leader, starting driver")
				current = startRun(ctx, logger, run)
			} else if !leader && current != nil {
				logger.Warn().Msg("lost leadership, stopping driver")
				current.stop()
				current = nil
			}
		}
	}
}
