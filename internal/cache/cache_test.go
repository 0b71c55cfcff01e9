package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/arrival"
	"github.com/friendsincode/cadence/internal/profile"
)

func TestDisabledCacheAlwaysBuilds(t *testing.T) {
	c := Disabled(zerolog.Nop())
	if c.IsAvailable() {
		t.Fatal("disabled cache reports available")
	}

	calls := 0
	build := func() (arrival.Schedule, error) {
		calls++
		return arrival.Schedule{5, 10}, nil
	}

	for i := 0; i < 2; i++ {
		got, hit, err := c.ScheduleOrBuild(context.Background(), "uniform", 100, profile.Uniform().Weights, "me", build)
		if err != nil {
			t.Fatalf("ScheduleOrBuild: %v", err)
		}
		if hit || got.Len() != 2 {
			t.Fatalf("got %v hit=%v", got, hit)
		}
	}
	if calls != 2 {
		t.Fatalf("build called %d times, want 2", calls)
	}

	if _, ok := c.GetSchedule(context.Background(), "uniform"); ok {
		t.Fatal("disabled cache returned a schedule")
	}
	if err := c.InvalidateAll(context.Background()); err != nil {
		t.Fatalf("InvalidateAll on disabled cache: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestScheduleOrBuildPropagatesBuildError(t *testing.T) {
	boom := errors.New("boom")
	_, _, err := Disabled(zerolog.Nop()).ScheduleOrBuild(context.Background(), "p", 1, profile.Uniform().Weights, "me", func() (arrival.Schedule, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestCachedScheduleMatches(t *testing.T) {
	edited := profile.UserVisit().Weights
	edited[3] = 500

	cs := CachedSchedule{Profile: "custom", Target: 100, Weights: profile.UserVisit().Weights}

	tests := []struct {
		name    string
		target  float64
		weights profile.Weights
		want    bool
	}{
		{"same target and weights", 100, profile.UserVisit().Weights, true},
		{"different target", 200, profile.UserVisit().Weights, false},
		{"edited weights", 100, edited, false},
		{"other preset", 100, profile.Uniform().Weights, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cs.Matches(tt.target, tt.weights); got != tt.want {
				t.Fatalf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCachedScheduleKeepsWeightsThroughJSON(t *testing.T) {
	weights := profile.UserVisit().Weights
	weights[0] = 0.1
	data, err := json.Marshal(CachedSchedule{Profile: "custom", Target: 3, Weights: weights, Offsets: arrival.Schedule{1}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back CachedSchedule
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Matches(3, weights) {
		t.Fatalf("decoded schedule does not match its own weights: %+v", back)
	}
}
