// Package elapsed derives recording duration from wall-clock samples.
//
// The displayed value is always recomputed as now - startedAt rather than
// accumulated per tick, so timer jitter never drifts the result.
package elapsed

import (
	"fmt"
	"time"
)

// Compute returns the elapsed milliseconds between startedAtMs and nowMs, never negative
func Compute(nowMs, startedAtMs int64) int64 {
	if nowMs < startedAtMs {
		return 0
	}
	return nowMs - startedAtMs
}

// FormatTime renders milliseconds as MM:SS, or HH:MM:SS once an hour has passed.
// Sub-second parts are dropped.
func FormatTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h == 0 {
		return fmt.Sprintf("%02d:%02d", m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Tracker keeps the pausable recording duration.
// It is not safe for concurrent use; the session event loop owns it.
type Tracker struct {
	now func() time.Time

	running   bool
	startedAt int64 // ms, valid while running
	frozen    int64 // ms accumulated up to the last pause
}

// NewTracker creates a tracker reading time from now (time.Now when nil)
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

func (t *Tracker) nowMs() int64 {
	return t.now().UnixMilli()
}

// Start begins a fresh measurement from zero
func (t *Tracker) Start() {
	t.frozen = 0
	t.startedAt = t.nowMs()
	t.running = true
}

// Pause freezes the elapsed value
func (t *Tracker) Pause() {
	if !t.running {
		return
	}
	t.frozen = Compute(t.nowMs(), t.startedAt)
	t.running = false
}

// Resume continues from the frozen value by moving startedAt to now - frozen
func (t *Tracker) Resume() {
	if t.running {
		return
	}
	t.startedAt = t.nowMs() - t.frozen
	t.running = true
}

// Reset stops the tracker and zeroes the elapsed value
func (t *Tracker) Reset() {
	t.running = false
	t.frozen = 0
	t.startedAt = 0
}

// Running reports whether time is currently accumulating
func (t *Tracker) Running() bool {
	return t.running
}

// StartedAt returns the effective start in Unix milliseconds (now - elapsed at the last resume)
func (t *Tracker) StartedAt() int64 {
	return t.startedAt
}

// ElapsedMs returns the current elapsed milliseconds
func (t *Tracker) ElapsedMs() int64 {
	if !t.running {
		return t.frozen
	}
	return Compute(t.nowMs(), t.startedAt)
}

// Elapsed returns ElapsedMs as a time.Duration
func (t *Tracker) Elapsed() time.Duration {
	return time.Duration(t.ElapsedMs()) * time.Millisecond
}
