// Package mapping implements the rule engine that evaluates incoming events
// against the user-defined mapping set and produces actions.
package mapping

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/streamrig/streamrig/pkg/config"
	"github.com/streamrig/streamrig/pkg/events"
	"github.com/streamrig/streamrig/pkg/models"
)

// Match is one evaluation result: the matched mapping and the action to
// execute, with intensity/duration already clamped to the mapping-local and
// global safety caps.
type Match struct {
	Mapping *models.Mapping
	Action  models.Action

	// Effective per-mapping caps (already narrowed by the global config),
	// carried onto command items for the arbiter's final clamp.
	LocalMaxIntensity  int
	LocalMaxDurationMs int
}

// Engine owns the mapping set and the cooldown ledger. The mapping set is
// read under a shared lock on the hot path; mutations come only from the
// admin surface.
type Engine struct {
	mu       sync.RWMutex
	mappings map[string]*compiledMapping

	cooldowns *Ledger
	safety    *config.SafetyConfig
	pub       *events.Publisher
	clock     func() time.Time
}

// NewEngine creates a mapping engine with an empty mapping set.
func NewEngine(safety *config.SafetyConfig, pub *events.Publisher) *Engine {
	return &Engine{
		mappings:  make(map[string]*compiledMapping),
		cooldowns: NewLedger(),
		safety:    safety,
		pub:       pub,
		clock:     time.Now,
	}
}

// Upsert admits a mapping into the engine, replacing any mapping with the
// same id. Structural validation and message-pattern safety run here, at
// admission time; admitted mappings never fail evaluation mid-stream.
func (e *Engine) Upsert(m *models.Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}

	cm := &compiledMapping{m: m}
	if p := m.Conditions.MessagePattern; p != "" {
		re, err := CompilePattern(p)
		if err != nil {
			return fmt.Errorf("message pattern: %w", err)
		}
		cm.msg = re
	}
	if g := strings.TrimSpace(m.Conditions.GiftName); g != "" && g != "*" {
		cm.lowGift = strings.ToLower(g)
	}

	e.mu.Lock()
	e.mappings[m.ID] = cm
	e.mu.Unlock()
	return nil
}

// Remove deletes a mapping. Removing an unknown id is a no-op.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	delete(e.mappings, id)
	e.mu.Unlock()
}

// Get returns a copy of the mapping with the given id.
func (e *Engine) Get(id string) (models.Mapping, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cm, ok := e.mappings[id]
	if !ok {
		return models.Mapping{}, false
	}
	return *cm.m, true
}

// List returns copies of all mappings, sorted by id.
func (e *Engine) List() []models.Mapping {
	e.mu.RLock()
	out := make([]models.Mapping, 0, len(e.mappings))
	for _, cm := range e.mappings {
		out = append(out, *cm.m)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetEnabled toggles a mapping without recompiling it.
func (e *Engine) SetEnabled(id string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cm, ok := e.mappings[id]
	if !ok {
		return false
	}
	cm.m.Enabled = enabled
	return true
}

// Evaluate matches an event against the mapping set and returns the actions
// to execute, highest priority first.
//
// Pipeline: kind+enabled select → conditions → cooldown filter → gift
// specificity → clamp + cooldown registration → priority sort. Cooldowns are
// registered at match time for the mappings that survive the specificity
// filter, so a discarded catch-all never burns its cooldown.
func (e *Engine) Evaluate(event *models.Event) []Match {
	now := e.clock()

	// Global follower-age floor. Unknown follow dates fail closed.
	if d := e.safety.MinFollowerAgeDays; d > 0 {
		minAge := time.Duration(d) * 24 * time.Hour
		if event.User.FollowedAt == nil || now.Sub(*event.User.FollowedAt) < minAge {
			return nil
		}
	}

	e.mu.RLock()
	candidates := make([]*compiledMapping, 0, len(e.mappings))
	for _, cm := range e.mappings {
		if cm.m.Enabled && cm.m.EventKind == event.Kind {
			candidates = append(candidates, cm)
		}
	}
	e.mu.RUnlock()

	var survivors []*compiledMapping
	hasSpecific := false
	for _, cm := range candidates {
		res := cm.matchesConditions(event, now)
		if res.regexRan && Slow(res.regexTime) {
			e.pub.Incr(events.CounterRegexSlow)
		}
		if !res.matched {
			continue
		}

		cd := e.effectiveCooldowns(cm.m)
		if e.cooldowns.Active(cm.m.ID, cm.m.Action.DeviceID, event.User.ID, cd, now) {
			e.pub.Incr(events.CounterCooldownActive)
			slog.Debug("Mapping suppressed by cooldown",
				"mapping_id", cm.m.ID, "user_id", event.User.ID)
			continue
		}

		if cm.hasConcreteGiftName() {
			hasSpecific = true
		}
		survivors = append(survivors, cm)
	}

	// Gift specificity: a concrete gift-name mapping displaces all
	// catch-all gift mappings from the same match set.
	if event.Kind == models.EventGift && hasSpecific {
		filtered := survivors[:0]
		for _, cm := range survivors {
			if cm.hasConcreteGiftName() {
				filtered = append(filtered, cm)
			}
		}
		survivors = filtered
	}

	matches := make([]Match, 0, len(survivors))
	for _, cm := range survivors {
		e.cooldowns.Register(cm.m.ID, cm.m.Action.DeviceID, event.User.ID, now)
		matches = append(matches, e.buildMatch(cm))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Action.Priority != matches[j].Action.Priority {
			return matches[i].Action.Priority > matches[j].Action.Priority
		}
		return matches[i].Mapping.ID < matches[j].Mapping.ID
	})
	return matches
}

// buildMatch copies the action and clamps command intensity/duration to the
// narrower of the mapping-local and global caps.
func (e *Engine) buildMatch(cm *compiledMapping) Match {
	maxIntensity := e.safety.MaxIntensity
	maxDuration := e.safety.MaxDurationMs
	if s := cm.m.Safety; s != nil {
		if s.MaxIntensity > 0 && s.MaxIntensity < maxIntensity {
			maxIntensity = s.MaxIntensity
		}
		if s.MaxDurationMs > 0 && s.MaxDurationMs < maxDuration {
			maxDuration = s.MaxDurationMs
		}
	}

	action := cm.m.Action
	if action.Type == models.ActionCommand && action.Command != nil {
		spec := *action.Command
		if spec.Intensity > maxIntensity {
			spec.Intensity = maxIntensity
		}
		if spec.DurationMs > maxDuration {
			spec.DurationMs = maxDuration
		}
		action.Command = &spec
	}

	return Match{
		Mapping:            cm.m,
		Action:             action,
		LocalMaxIntensity:  maxIntensity,
		LocalMaxDurationMs: maxDuration,
	}
}

// effectiveCooldowns applies configured defaults to tiers the mapping leaves
// unset.
func (e *Engine) effectiveCooldowns(m *models.Mapping) models.Cooldowns {
	cd := m.Cooldowns
	defaults := e.safety.DefaultCooldowns
	if cd.GlobalMs == 0 {
		cd.GlobalMs = defaults.GlobalMs
	}
	if cd.PerDeviceMs == 0 {
		cd.PerDeviceMs = defaults.PerDeviceMs
	}
	if cd.PerUserMs == 0 {
		cd.PerUserMs = defaults.PerUserMs
	}
	return cd
}
