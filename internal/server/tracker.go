package server

import (
	"sync"

	"github.com/friendsincode/cadence/internal/arrival"
	"github.com/friendsincode/cadence/internal/driver"
	"github.com/friendsincode/cadence/internal/profile"
)

// Snapshot is what the HTTP surface reads from a running driver.
// *driver.Driver[T] satisfies it for any T.
type Snapshot interface {
	Status() driver.Status
	Schedule() arrival.Schedule
}

// Tracker holds the driver currently running in this process. It is empty
// while the process is a follower or before the first run starts.
type Tracker struct {
	mu      sync.RWMutex
	current Snapshot
	rates   profile.Rates
	target  float64
}

// Set records the active driver and the rates its schedule was drawn from.
func (t *Tracker) Set(s Snapshot, rates profile.Rates, target float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current, t.rates, t.target = s, rates, target
}

// Clear forgets the active driver.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = nil
}

func (t *Tracker) get() (Snapshot, profile.Rates, float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current, t.rates, t.target, t.current != nil
}
