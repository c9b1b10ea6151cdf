package events

import (
	"sync"

	"github.com/streamrig/streamrig/pkg/models"
)

// recentLimit is the number of command outcomes retained for the admin
// surface's "recent outcomes" view.
const recentLimit = 256

// Counter names for conditions that never produce a command item.
// Items that do settle are counted under their terminal state/reason.
const (
	CounterCooldownActive = "cooldown_active"
	CounterRegexUnsafe    = "regex_unsafe"
	CounterRegexSlow      = "regex_slow"
	CounterQueueFull      = "queue_full"
)

// Recorder accumulates counters and a bounded ring of recent outcomes.
// All methods are safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	counters map[string]uint64
	recent   []Outcome // ring buffer, newest at head
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		counters: make(map[string]uint64),
	}
}

// Incr increments a named counter by one.
func (r *Recorder) Incr(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name]++
}

// IncrDrop increments the drop counter for the given reason.
func (r *Recorder) IncrDrop(reason models.DropReason) {
	r.Incr("dropped_" + string(reason))
}

// RecordOutcome stores an outcome in the recent ring and bumps the counter
// for its terminal state (and reason, if any).
func (r *Recorder) RecordOutcome(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := string(o.State)
	if o.Reason != "" {
		name += "_" + o.Reason
	}
	r.counters[name]++

	r.recent = append([]Outcome{o}, r.recent...)
	if len(r.recent) > recentLimit {
		r.recent = r.recent[:recentLimit]
	}
}

// Counters returns a copy of all counters.
func (r *Recorder) Counters() map[string]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]uint64, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}

// Recent returns up to limit most recent outcomes, newest first.
// limit <= 0 returns all retained outcomes.
func (r *Recorder) Recent(limit int) []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.recent) {
		limit = len(r.recent)
	}
	out := make([]Outcome, limit)
	copy(out, r.recent[:limit])
	return out
}
