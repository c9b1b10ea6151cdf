package ingest

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamrig/streamrig/pkg/mapping"
	"github.com/streamrig/streamrig/pkg/models"
	"github.com/streamrig/streamrig/pkg/pattern"
)

// Evaluator is the mapping engine surface the router needs.
type Evaluator interface {
	Evaluate(event *models.Event) []mapping.Match
}

// Expander is the pattern engine surface the router needs.
type Expander interface {
	Expand(patternID, deviceID string, priority int, origin pattern.Origin, localMaxIntensity, localMaxDurationMs int) (string, error)
}

// Submitter accepts direct command items; implemented by the dispatcher
// pool.
type Submitter interface {
	Submit(item *models.CommandItem) error
}

// Router drives one event through evaluation and enqueues the resulting
// actions. A mutex serializes enqueueing so all actions of one event land
// on the queue atomically with respect to other events.
type Router struct {
	mu       sync.Mutex
	engine   Evaluator
	patterns Expander
	pool     Submitter
	clock    func() time.Time
}

// NewRouter wires the router to its engines.
func NewRouter(engine Evaluator, patterns Expander, pool Submitter) *Router {
	return &Router{
		engine:   engine,
		patterns: patterns,
		pool:     pool,
		clock:    time.Now,
	}
}

// OnEvent evaluates one event and enqueues every matched action. Individual
// action failures (queue full, unknown pattern) are logged and do not block
// the remaining actions. Returns the number of actions accepted.
func (r *Router) OnEvent(raw *RawEvent) (int, error) {
	event, err := raw.Normalize()
	if err != nil {
		slog.Warn("Event rejected at normalization", "type", raw.Type, "error", err)
		return 0, err
	}
	return r.Route(event), nil
}

// Route evaluates an already-normalized event.
func (r *Router) Route(event *models.Event) int {
	matches := r.engine.Evaluate(event)
	if len(matches) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	accepted := 0
	for _, m := range matches {
		if r.enqueue(event, m) {
			accepted++
		}
	}

	slog.Debug("Event routed",
		"kind", event.Kind, "user_id", event.User.ID,
		"matches", len(matches), "accepted", accepted)
	return accepted
}

// enqueue turns one match into queue traffic.
func (r *Router) enqueue(event *models.Event, m mapping.Match) bool {
	switch m.Action.Type {
	case models.ActionPattern:
		origin := pattern.Origin{
			UserID:    event.User.ID,
			EventKind: event.Kind,
			MappingID: m.Mapping.ID,
		}
		_, err := r.patterns.Expand(m.Action.PatternID, m.Action.DeviceID, m.Action.Priority,
			origin, m.LocalMaxIntensity, m.LocalMaxDurationMs)
		if err != nil {
			slog.Warn("Pattern expansion failed",
				"mapping_id", m.Mapping.ID, "pattern_id", m.Action.PatternID, "error", err)
			return false
		}
		return true

	case models.ActionCommand:
		now := r.clock()
		item := &models.CommandItem{
			ID:                 uuid.New().String(),
			DeviceID:           m.Action.DeviceID,
			Kind:               m.Action.Command.Kind,
			Intensity:          m.Action.Command.Intensity,
			DurationMs:         m.Action.Command.DurationMs,
			ScheduledNotBefore: now,
			Priority:           m.Action.Priority,
			SubmittedAt:        now,
			OriginUserID:       event.User.ID,
			OriginEventKind:    event.Kind,
			MappingID:          m.Mapping.ID,
			LocalMaxIntensity:  m.LocalMaxIntensity,
			LocalMaxDurationMs: m.LocalMaxDurationMs,
		}
		if err := r.pool.Submit(item); err != nil {
			slog.Warn("Command submission refused",
				"mapping_id", m.Mapping.ID, "device_id", item.DeviceID, "error", err)
			return false
		}
		return true

	default:
		return false
	}
}
