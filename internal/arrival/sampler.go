/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package arrival

import (
	"math"
	"math/rand/v2"

	"github.com/friendsincode/cadence/internal/profile"
)

// Sampler draws exponentially distributed gaps. It is not safe for concurrent use.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler returns a sampler seeded from the runtime's random source.
func NewSampler() *Sampler {
	return &Sampler{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededSampler returns a sampler whose output is reproducible for a given seed.
func NewSeededSampler(seed uint64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Exp samples a gap with the given mean: -ln(1-U) * mean.
func (s *Sampler) Exp(mean float64) float64 {
	return -math.Log(1-s.rng.Float64()) * mean
}

// Interval samples a gap rounded to the nearest millisecond. It may be zero.
func (s *Sampler) Interval(mean float64) int64 {
	return int64(math.Round(s.Exp(mean)))
}

// Gap is Interval, never shorter than 1 ms, so offsets built from it strictly increase.
func (s *Sampler) Gap(mean float64) int64 {
	g := s.Interval(mean)
	if g < 1 {
		return 1
	}
	return g
}

// Hour is the generated gap sequence of a single hour.
type Hour struct {
	// Gaps are the inter-arrival gaps in milliseconds.
	Gaps []int64
	// Skip marks a no-rate hour. Gaps then holds a single full-hour sentinel
	// that advances the clock without producing an event.
	Skip bool
	// Carry is how far the hour's last gap overshot the hour boundary.
	Carry int64
}

// Hour fills one hour, starting start milliseconds past its boundary, with
// gaps drawn at the given mean. The final gap crosses into the next hour and
// its overshoot is returned as Carry. A start beyond the hour yields no gaps.
func (s *Sampler) Hour(mean float64, start int64) Hour {
	if mean == profile.NoRate {
		return Hour{
			Gaps:  []int64{profile.MillisPerHour},
			Skip:  true,
			Carry: start,
		}
	}

	remaining := profile.MillisPerHour - start
	if remaining <= 0 {
		// The previous gap already jumped past this whole hour.
		return Hour{Carry: start - profile.MillisPerHour}
	}
	var sum int64
	gaps := make([]int64, 0, int(float64(remaining)/mean)+1)
	for sum < remaining {
		g := s.Gap(mean)
		sum += g
		gaps = append(gaps, g)
	}
	return Hour{Gaps: gaps, Carry: sum - remaining}
}

// Day builds one day's schedule from per-hour mean gaps, threading each
// hour's carry-over into the next and truncating at midnight.
func (s *Sampler) Day(rates profile.Rates) Schedule {
	var (
		offsets = make(Schedule, 0, int(rates.ExpectedTotal()*1.1)+1)
		carry   int64
		sum     int64
	)

	for _, mean := range rates {
		hour := s.Hour(mean, carry)
		carry = hour.Carry
		if hour.Skip {
			sum += hour.Gaps[0]
			continue
		}
		for _, g := range hour.Gaps {
			sum += g
			if sum >= profile.MillisPerDay {
				return offsets
			}
			offsets = append(offsets, sum)
		}
	}
	return offsets
}
