package mapping

import (
	"sync"
	"time"

	"github.com/streamrig/streamrig/pkg/models"
)

// Ledger GC parameters. Entries older than retention are collected
// opportunistically during Register, at most once per gcInterval.
const (
	ledgerRetention = time.Hour
	gcInterval      = 5 * time.Minute
)

// Ledger is the three-tier cooldown ledger:
//
//	global:    mappingID → last fire
//	perDevice: (mappingID, deviceID) → last fire
//	perUser:   (mappingID, userID) → last fire
//
// Entries are registered at match time, not at dispatch time, so a burst of
// events within one tick cannot all admit copies of the same mapping.
type Ledger struct {
	mu        sync.Mutex
	global    map[string]time.Time
	perDevice map[string]time.Time
	perUser   map[string]time.Time
	lastGC    time.Time
}

// NewLedger creates an empty cooldown ledger.
func NewLedger() *Ledger {
	return &Ledger{
		global:    make(map[string]time.Time),
		perDevice: make(map[string]time.Time),
		perUser:   make(map[string]time.Time),
	}
}

// Active reports whether any applicable cooldown tier still suppresses the
// mapping. A tier with zero duration is disabled.
func (l *Ledger) Active(mappingID, deviceID, userID string, cd models.Cooldowns, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cd.GlobalMs > 0 {
		if last, ok := l.global[mappingID]; ok && now.Sub(last) < msToDuration(cd.GlobalMs) {
			return true
		}
	}
	if cd.PerDeviceMs > 0 && deviceID != "" {
		if last, ok := l.perDevice[ledgerKey(mappingID, deviceID)]; ok && now.Sub(last) < msToDuration(cd.PerDeviceMs) {
			return true
		}
	}
	if cd.PerUserMs > 0 && userID != "" {
		if last, ok := l.perUser[ledgerKey(mappingID, userID)]; ok && now.Sub(last) < msToDuration(cd.PerUserMs) {
			return true
		}
	}
	return false
}

// Register records a fire for all three tiers and opportunistically collects
// stale entries.
func (l *Ledger) Register(mappingID, deviceID, userID string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.global[mappingID] = now
	if deviceID != "" {
		l.perDevice[ledgerKey(mappingID, deviceID)] = now
	}
	if userID != "" {
		l.perUser[ledgerKey(mappingID, userID)] = now
	}

	if now.Sub(l.lastGC) >= gcInterval {
		l.gcLocked(now)
		l.lastGC = now
	}
}

// gcLocked drops entries older than the retention window. Caller holds mu.
func (l *Ledger) gcLocked(now time.Time) {
	for _, m := range []map[string]time.Time{l.global, l.perDevice, l.perUser} {
		for k, t := range m {
			if now.Sub(t) > ledgerRetention {
				delete(m, k)
			}
		}
	}
}

func ledgerKey(mappingID, scope string) string {
	return mappingID + "\x00" + scope
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
