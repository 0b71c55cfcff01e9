/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package arrival

import (
	"iter"
	"sync"
	"time"

	"github.com/friendsincode/cadence/internal/profile"
)

// IntervalGenerator samples gaps on demand from the rate of the current
// wall-clock hour instead of replaying a prebuilt schedule.
type IntervalGenerator struct {
	rates profile.Rates
	now   func() time.Time

	mu      sync.Mutex
	sampler *Sampler
}

// NewIntervalGenerator validates the profile and returns a generator reading
// the hour from now. A nil now uses time.Now and a nil sampler is seeded randomly.
func NewIntervalGenerator(target float64, weights profile.Weights, now func() time.Time, sampler *Sampler) (*IntervalGenerator, error) {
	rates, err := profile.InverseRates(target, weights)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	if sampler == nil {
		sampler = NewSampler()
	}
	return &IntervalGenerator{rates: rates, now: now, sampler: sampler}, nil
}

// Rates exposes the per-hour mean gaps the generator samples from.
func (g *IntervalGenerator) Rates() profile.Rates { return g.rates }

// Next returns the next gap in milliseconds. In a no-rate hour it returns the
// time left until the next hour boundary so callers sleeping on it re-sample then.
func (g *IntervalGenerator) Next() int64 {
	t := g.now()
	mean := g.rates[t.Hour()]
	if mean == profile.NoRate {
		hourStart := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
		left := profile.MillisPerHour - t.Sub(hourStart).Milliseconds()
		if left < 1 {
			left = 1
		}
		return left
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sampler.Interval(mean)
}

// All yields gaps forever. Each call starts a fresh sequence.
func (g *IntervalGenerator) All() iter.Seq[int64] {
	return func(yield func(int64) bool) {
		for {
			if !yield(g.Next()) {
				return
			}
		}
	}
}
