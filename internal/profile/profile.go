/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package profile

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	// HoursPerDay is the fixed length of every weight vector.
	HoursPerDay = 24

	// MillisPerHour is the span of one hour slot in milliseconds.
	MillisPerHour int64 = 3_600_000

	// MillisPerDay is the span of one day in milliseconds.
	MillisPerDay int64 = HoursPerDay * MillisPerHour

	// NoRate marks an hour whose weight is zero. No events are generated for it.
	NoRate float64 = 0
)

// ErrInvalidProfile indicates a weight vector or target count that cannot be converted.
var ErrInvalidProfile = errors.New("invalid profile")

// Weights holds the relative event mass of each hour of the day, index 0 being midnight.
type Weights [HoursPerDay]float64

// Sum returns the total weight mass.
func (w Weights) Sum() float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}

// Profile is a named weight vector.
type Profile struct {
	Name    string
	Weights Weights
}

var presets = map[string]Profile{
	"user-visit": {
		Name: "user-visit",
		Weights: Weights{
			30, 20, 15, 8, 7, 7, 8, 27, 69, 67, 62, 92,
			349, 409, 214, 133, 138, 186, 270, 378, 393, 280, 120, 68,
		},
	},
	"staff-activity": {
		Name: "staff-activity",
		Weights: Weights{
			1, 1, 1, 0, 0, 0, 0, 0, 0, 1, 4, 7,
			7, 5, 7, 8, 10, 9, 8, 6, 5, 5, 3, 1,
		},
	},
	"uniform": {
		Name: "uniform",
		Weights: Weights{
			1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
			1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		},
	},
}

// UserVisit returns the app user visit preset.
func UserVisit() Profile { return presets["user-visit"] }

// StaffActivity returns the staff activity preset.
func StaffActivity() Profile { return presets["staff-activity"] }

// Uniform returns a profile with equal mass in every hour.
func Uniform() Profile { return presets["uniform"] }

// Lookup returns the preset registered under name.
func Lookup(name string) (Profile, bool) {
	p, ok := presets[name]
	return p, ok
}

// Names lists the preset names in sorted order.
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromSlice converts a caller-supplied slice into Weights, rejecting wrong lengths.
func FromSlice(values []float64) (Weights, error) {
	var w Weights
	if len(values) != HoursPerDay {
		return w, fmt.Errorf("%w: weight vector has %d entries, want %d", ErrInvalidProfile, len(values), HoursPerDay)
	}
	copy(w[:], values)
	return w, nil
}

// Validate checks a target count and weight vector before conversion.
func Validate(target float64, weights Weights) error {
	if math.IsNaN(target) || math.IsInf(target, 0) || target <= 0 {
		return fmt.Errorf("%w: target count must be a positive number, got %v", ErrInvalidProfile, target)
	}
	for h, v := range weights {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: weight for hour %d is not finite", ErrInvalidProfile, h)
		}
		if v < 0 {
			return fmt.Errorf("%w: weight for hour %d is negative (%v)", ErrInvalidProfile, h, v)
		}
	}
	return nil
}

// Rates holds the mean gap in milliseconds between events for each hour.
// An entry equal to NoRate means the hour generates no events.
type Rates [HoursPerDay]float64

// HasRate reports whether hour h generates events.
func (r Rates) HasRate(h int) bool {
	return r[h] != NoRate
}

// Expected returns the expected number of events in hour h.
func (r Rates) Expected(h int) float64 {
	if !r.HasRate(h) {
		return 0
	}
	return float64(MillisPerHour) / r[h]
}

// ExpectedTotal returns the expected number of events across the day.
func (r Rates) ExpectedTotal() float64 {
	var total float64
	for h := range r {
		total += r.Expected(h)
	}
	return total
}

// InverseRates converts a weight vector and daily target into per-hour mean gaps.
// Each hour receives target*weight/sum expected events, so the day sums to target.
func InverseRates(target float64, weights Weights) (Rates, error) {
	var rates Rates
	if err := Validate(target, weights); err != nil {
		return rates, err
	}

	sum := weights.Sum()
	for h, w := range weights {
		if w == 0 {
			rates[h] = NoRate
			continue
		}
		rates[h] = float64(MillisPerHour) / target * sum / w
	}
	return rates, nil
}
