/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package arrival

import (
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/cadence/internal/profile"
)

// ErrMalformedSchedule is returned by Validate for offsets that are out of order or out of range.
var ErrMalformedSchedule = errors.New("malformed schedule")

// Schedule is a strictly increasing list of millisecond offsets from local midnight.
type Schedule []int64

// Len returns the number of events in the day.
func (s Schedule) Len() int { return len(s) }

// At returns the millisecond offset of event i.
func (s Schedule) At(i int) int64 { return s[i] }

// Offset returns event i as a duration since midnight.
func (s Schedule) Offset(i int) time.Duration {
	return time.Duration(s[i]) * time.Millisecond
}

// Search returns the index of the first offset >= probe, or Len() when every
// offset is smaller. Ranges of two or fewer entries are scanned linearly.
func (s Schedule) Search(probe int64) int {
	lo, hi := 0, len(s)
	for hi-lo > 2 {
		mid := lo + (hi-lo)/2
		switch {
		case probe == s[mid]:
			return mid
		case probe < s[mid]:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	for i := lo; i < hi; i++ {
		if probe <= s[i] {
			return i
		}
	}
	return hi
}

// HourCounts tallies the events falling in each hour of the day.
func (s Schedule) HourCounts() [profile.HoursPerDay]int {
	var counts [profile.HoursPerDay]int
	for _, off := range s {
		counts[off/profile.MillisPerHour]++
	}
	return counts
}

// Validate checks that offsets are strictly increasing and within one day.
func (s Schedule) Validate() error {
	for i, off := range s {
		if off < 0 || off >= profile.MillisPerDay {
			return fmt.Errorf("%w: offset %d at index %d outside the day", ErrMalformedSchedule, off, i)
		}
		if i > 0 && off <= s[i-1] {
			return fmt.Errorf("%w: offset %d at index %d does not follow %d", ErrMalformedSchedule, off, i, s[i-1])
		}
	}
	return nil
}

// Build converts a target count and weight vector into a day's schedule.
func Build(sampler *Sampler, target float64, weights profile.Weights) (Schedule, profile.Rates, error) {
	rates, err := profile.InverseRates(target, weights)
	if err != nil {
		return nil, rates, err
	}
	return sampler.Day(rates), rates, nil
}
