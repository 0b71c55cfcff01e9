/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package driver

import (
	"time"

	"github.com/friendsincode/cadence/internal/arrival"
)

// Cursor is the driver's position: the local midnight the schedule is
// anchored to and the index of the next event to fire.
type Cursor struct {
	Anchor time.Time
	Index  int
}

// StartOfDay returns local midnight of t in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Locate maps now onto the schedule. When every event of today has passed the
// cursor wraps to the first event of tomorrow. The schedule must not be empty.
func Locate(schedule arrival.Schedule, now time.Time) (c Cursor, wrapped bool) {
	c.Anchor = StartOfDay(now)
	elapsed := now.Sub(c.Anchor).Milliseconds()
	c.Index = schedule.Search(elapsed)
	if c.Index >= schedule.Len() {
		return c.nextDay(), true
	}
	return c, false
}

// Advance moves past the event just fired, wrapping to tomorrow after the last one.
func (c Cursor) Advance(schedule arrival.Schedule) (next Cursor, wrapped bool) {
	c.Index++
	if c.Index >= schedule.Len() {
		return c.nextDay(), true
	}
	return c, false
}

// Due returns the wall-clock time of the event under the cursor.
func (c Cursor) Due(schedule arrival.Schedule) time.Time {
	return c.Anchor.Add(schedule.Offset(c.Index))
}

// Delay returns how long to wait from now until the event under the cursor, never negative.
func (c Cursor) Delay(schedule arrival.Schedule, now time.Time) time.Duration {
	d := c.Due(schedule).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (c Cursor) nextDay() Cursor {
	return Cursor{Anchor: StartOfDay(c.Anchor.AddDate(0, 0, 1)), Index: 0}
}
