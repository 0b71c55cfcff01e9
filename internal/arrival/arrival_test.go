/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package arrival

import (
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/friendsincode/cadence/internal/profile"
)

func TestSearch(t *testing.T) {
	s := Schedule{10, 20, 30}

	tests := []struct {
		probe int64
		want  int
	}{
		{0, 0},
		{10, 0},
		{15, 1},
		{20, 1},
		{25, 2},
		{30, 2},
		{35, 3},
	}
	for _, tt := range tests {
		if got := s.Search(tt.probe); got != tt.want {
			t.Errorf("Search(%d) = %d, want %d", tt.probe, got, tt.want)
		}
	}

	if got := (Schedule{}).Search(5); got != 0 {
		t.Errorf("empty Search = %d, want 0", got)
	}
	if got := (Schedule{7}).Search(8); got != 1 {
		t.Errorf("single Search(8) = %d, want 1", got)
	}
}

func TestSearchMatchesLowerBound(t *testing.T) {
	sampler := NewSeededSampler(7)
	rates, err := profile.InverseRates(5000, profile.UserVisit().Weights)
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	s := sampler.Day(rates)

	for probe := int64(-5); probe < profile.MillisPerDay+5; probe += 997 {
		want := sort.Search(len(s), func(i int) bool { return s[i] >= probe })
		if got := s.Search(probe); got != want {
			t.Fatalf("Search(%d) = %d, want %d", probe, got, want)
		}
	}
	for i, off := range s {
		if got := s.Search(off); got != i {
			t.Fatalf("Search(s[%d]) = %d", i, got)
		}
	}
}

func TestHourSkipsNoRate(t *testing.T) {
	h := NewSeededSampler(1).Hour(profile.NoRate, 1234)
	if !h.Skip {
		t.Fatal("expected skip hour")
	}
	if len(h.Gaps) != 1 || h.Gaps[0] != profile.MillisPerHour {
		t.Fatalf("gaps = %v, want single full-hour sentinel", h.Gaps)
	}
	if h.Carry != 1234 {
		t.Fatalf("carry = %d, want 1234", h.Carry)
	}
}

func TestHourCrossesBoundaryExactlyOnce(t *testing.T) {
	sampler := NewSeededSampler(42)
	starts := []int64{0, 1, 59_999, 1_800_000, 3_599_999}
	means := []float64{50, 8640, 600_000, 5_000_000}

	for _, mean := range means {
		for _, start := range starts {
			h := sampler.Hour(mean, start)
			if h.Skip {
				t.Fatalf("mean %v: unexpected skip", mean)
			}
			remaining := profile.MillisPerHour - start

			var sum int64
			for i, g := range h.Gaps {
				if g < 1 {
					t.Fatalf("mean %v start %d: gap %d = %d", mean, start, i, g)
				}
				sum += g
				if i < len(h.Gaps)-1 && sum >= remaining {
					t.Fatalf("mean %v start %d: gap %d crossed the boundary before the last gap", mean, start, i)
				}
			}
			if sum < remaining {
				t.Fatalf("mean %v start %d: gaps sum %d short of %d", mean, start, sum, remaining)
			}
			last := h.Gaps[len(h.Gaps)-1]
			if h.Carry != sum-remaining || h.Carry < 0 || h.Carry >= last {
				t.Fatalf("mean %v start %d: carry %d inconsistent (sum %d, last gap %d)", mean, start, h.Carry, sum, last)
			}
		}
	}
}

func TestDayAllZeroIsEmpty(t *testing.T) {
	rates, err := profile.InverseRates(1000, profile.Weights{})
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if s := NewSeededSampler(3).Day(rates); len(s) != 0 {
		t.Fatalf("schedule has %d events, want 0", len(s))
	}
}

func TestDayIsStrictlyIncreasingWithinDay(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		for _, p := range []profile.Profile{profile.UserVisit(), profile.StaffActivity(), profile.Uniform()} {
			s, _, err := Build(NewSeededSampler(seed), 20000, p.Weights)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if err := s.Validate(); err != nil {
				t.Fatalf("seed %d profile %s: %v", seed, p.Name, err)
			}
		}
	}
}

func TestDayRespectsZeroHours(t *testing.T) {
	weights := profile.Weights{}
	weights[10] = 1
	s, _, err := Build(NewSeededSampler(11), 500, weights)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	counts := s.HourCounts()
	for h, c := range counts {
		// The last gap of hour 10 may spill into hour 11.
		if h != 10 && h != 11 && c != 0 {
			t.Fatalf("hour %d has %d events, want 0", h, c)
		}
	}
	if counts[11] > 1 {
		t.Fatalf("hour 11 has %d events, want at most the single overshoot", counts[11])
	}
	if counts[10] < 400 {
		t.Fatalf("hour 10 has %d events, want about 500", counts[10])
	}
}

func TestHourAfterOvershootingGapIsEmpty(t *testing.T) {
	const mean = 223_000.0
	start := int64(profile.MillisPerHour + 2*mean)

	h := NewSeededSampler(3).Hour(mean, start)
	if len(h.Gaps) != 0 || h.Skip {
		t.Fatalf("gaps = %v skip=%v, want none", h.Gaps, h.Skip)
	}
	if h.Carry != start-profile.MillisPerHour {
		t.Fatalf("carry = %d, want %d", h.Carry, start-profile.MillisPerHour)
	}

	h = NewSeededSampler(3).Hour(mean, profile.MillisPerHour)
	if len(h.Gaps) != 0 || h.Carry != 0 {
		t.Fatalf("start on boundary: gaps = %v carry = %d", h.Gaps, h.Carry)
	}
}

func TestBuildLowTargetUserVisit(t *testing.T) {
	for seed := uint64(0); seed < 200; seed++ {
		s, _, err := Build(NewSeededSampler(seed), 50, profile.UserVisit().Weights)
		if err != nil {
			t.Fatalf("seed %d: build: %v", seed, err)
		}
		if err := s.Validate(); err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
	}
}

func TestDayMeanCountConvergesToTarget(t *testing.T) {
	const (
		target = 2000.0
		trials = 200
	)
	sampler := NewSeededSampler(99)

	for _, p := range []profile.Profile{profile.UserVisit(), profile.Uniform()} {
		rates, err := profile.InverseRates(target, p.Weights)
		if err != nil {
			t.Fatalf("rates: %v", err)
		}
		var total int
		for i := 0; i < trials; i++ {
			total += sampler.Day(rates).Len()
		}
		mean := float64(total) / trials
		// Poisson std of the mean is sqrt(target/trials) ~ 3.2; allow a wide band.
		if math.Abs(mean-target) > 30 {
			t.Fatalf("%s: mean count %.1f, want about %v", p.Name, mean, target)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []Schedule{
		{5, 5},
		{10, 3},
		{-1},
		{profile.MillisPerDay},
	}
	for _, s := range tests {
		if err := s.Validate(); !errors.Is(err, ErrMalformedSchedule) {
			t.Errorf("Validate(%v) = %v, want ErrMalformedSchedule", s, err)
		}
	}
}

func TestIntervalGeneratorUsesCurrentHour(t *testing.T) {
	weights := profile.Weights{}
	weights[9] = 1

	now := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	gen, err := NewIntervalGenerator(100, weights, func() time.Time { return now }, NewSeededSampler(5))
	if err != nil {
		t.Fatalf("generator: %v", err)
	}

	// All 100 events land in hour 9: mean gap 36 s.
	var sum int64
	n := 0
	for g := range gen.All() {
		if g < 1 {
			t.Fatalf("gap %d < 1", g)
		}
		sum += g
		n++
		if n == 5000 {
			break
		}
	}
	mean := float64(sum) / float64(n)
	if math.Abs(mean-36000) > 2000 {
		t.Fatalf("mean gap %.0f, want about 36000", mean)
	}

	now = time.Date(2026, 3, 2, 14, 45, 30, 0, time.UTC)
	if got := gen.Next(); got != 14*60*1000+30*1000 {
		t.Fatalf("no-rate hour gap = %d, want time to next hour", got)
	}
}

func TestIntervalGeneratorRejectsInvalidProfile(t *testing.T) {
	if _, err := NewIntervalGenerator(0, profile.Uniform().Weights, nil, nil); !errors.Is(err, profile.ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
}

func TestIntervalRoundsWithoutClamp(t *testing.T) {
	gen, err := NewIntervalGenerator(36_000_000, profile.Uniform().Weights, nil, NewSeededSampler(11))
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	var zeros int
	for i := 0; i < 100; i++ {
		if gen.Next() == 0 {
			zeros++
		}
	}
	if zeros == 0 {
		t.Fatal("sub-millisecond mean never rounded to zero")
	}

	s := NewSeededSampler(11)
	for i := 0; i < 100; i++ {
		if g := s.Gap(0.1); g != 1 {
			t.Fatalf("Gap(0.1) = %d, want clamp to 1", g)
		}
	}
}
