package safety

import (
	"sync"
	"time"
)

// rateWindow is the span of the sliding windows backing the per-minute
// limits.
const rateWindow = time.Minute

// RateLedger tracks successful dispatch timestamps over a sliding window,
// globally and per user and per device. Only dispatches that actually went
// out are recorded; denied or dropped items never consume budget.
type RateLedger struct {
	mu      sync.Mutex
	global  []time.Time
	perUser map[string][]time.Time
	perDev  map[string][]time.Time
}

// NewRateLedger returns an empty ledger.
func NewRateLedger() *RateLedger {
	return &RateLedger{
		perUser: make(map[string][]time.Time),
		perDev:  make(map[string][]time.Time),
	}
}

// Record notes one successful dispatch at the given instant.
func (r *RateLedger) Record(userID, deviceID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = append(prune(r.global, at), at)
	if userID != "" {
		r.perUser[userID] = append(prune(r.perUser[userID], at), at)
	}
	if deviceID != "" {
		r.perDev[deviceID] = append(prune(r.perDev[deviceID], at), at)
	}
}

// CountGlobal returns the number of dispatches within the window ending now.
func (r *RateLedger) CountGlobal(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = prune(r.global, now)
	return len(r.global)
}

// CountUser returns the user's dispatch count within the window ending now.
func (r *RateLedger) CountUser(userID string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perUser[userID] = prune(r.perUser[userID], now)
	if len(r.perUser[userID]) == 0 {
		delete(r.perUser, userID)
		return 0
	}
	return len(r.perUser[userID])
}

// CountDevice returns the device's dispatch count within the window ending
// now.
func (r *RateLedger) CountDevice(deviceID string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perDev[deviceID] = prune(r.perDev[deviceID], now)
	if len(r.perDev[deviceID]) == 0 {
		delete(r.perDev, deviceID)
		return 0
	}
	return len(r.perDev[deviceID])
}

// prune drops timestamps older than the window.
func prune(ts []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
