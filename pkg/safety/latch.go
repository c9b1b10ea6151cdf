// Package safety implements the final authority over outbound device
// commands: hard clamps, sliding-window rate limits, and the emergency stop
// latch. Nothing reaches a device without passing this package.
package safety

import (
	"log/slog"
	"sync"
	"time"
)

// Latch is the emergency stop. Once engaged it stays engaged until an
// explicit clear; there is no timeout.
type Latch struct {
	mu      sync.Mutex
	engaged bool
	reason  string
	since   time.Time
	changed chan struct{}
}

// NewLatch returns a disengaged latch.
func NewLatch() *Latch {
	return &Latch{changed: make(chan struct{})}
}

// Engaged reports whether the latch is engaged.
func (l *Latch) Engaged() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engaged
}

// Status returns the engaged flag, the trigger reason, and when the latch
// last transitioned.
func (l *Latch) Status() (engaged bool, reason string, since time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engaged, l.reason, l.since
}

// Trigger engages the latch. Returns false if it was already engaged;
// triggering twice is a no-op that keeps the original reason.
func (l *Latch) Trigger(reason string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engaged {
		return false
	}
	l.engaged = true
	l.reason = reason
	l.since = time.Now()
	l.wakeLocked()
	slog.Warn("Emergency stop engaged", "reason", reason)
	return true
}

// Clear disengages the latch. Returns false if it was not engaged.
func (l *Latch) Clear() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.engaged {
		return false
	}
	l.engaged = false
	l.reason = ""
	l.since = time.Now()
	l.wakeLocked()
	slog.Info("Emergency stop cleared")
	return true
}

// Changed returns a channel closed on the next state transition. Callers
// re-arm by calling Changed again after a wake.
func (l *Latch) Changed() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changed
}

func (l *Latch) wakeLocked() {
	close(l.changed)
	l.changed = make(chan struct{})
}
