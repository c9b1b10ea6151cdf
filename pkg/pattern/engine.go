// Package pattern implements the flow engine that expands named multi-step
// programs into scheduled command items and owns their cancellation tokens.
package pattern

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streamrig/streamrig/pkg/models"
)

// Sentinel errors for pattern operations.
var (
	// ErrPatternNotFound indicates the requested pattern id is unknown.
	ErrPatternNotFound = errors.New("pattern not found")
)

// Submitter accepts scheduled command items. Implemented by the dispatcher
// pool; expansion failures (queue full, emergency stop) surface through it.
// A refused item is settled by the submitter itself, outcome included.
type Submitter interface {
	Submit(item *models.CommandItem) error
}

// Origin identifies what triggered an expansion, for observability and
// per-user rate accounting on the resulting items.
type Origin struct {
	UserID    string
	EventKind models.EventKind
	MappingID string
}

// Execution is one run of a pattern. Its cancellation flag is the token the
// dispatcher checks before moving an item of this execution in-flight.
type Execution struct {
	ID        string
	PatternID string
	DeviceID  string
	StartedAt time.Time

	mu        sync.Mutex
	cancelled bool
	pending   int
}

// Cancelled reports whether the execution has been cancelled.
func (x *Execution) Cancelled() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.cancelled
}

// Engine owns the pattern set and the live execution registry.
type Engine struct {
	mu         sync.RWMutex
	patterns   map[string]*models.Pattern
	executions map[string]*Execution

	submitter Submitter
	clock     func() time.Time
}

// NewEngine creates a pattern engine with an empty pattern set. The
// submitter is set once at wiring time via SetSubmitter.
func NewEngine() *Engine {
	return &Engine{
		patterns:   make(map[string]*models.Pattern),
		executions: make(map[string]*Execution),
		clock:      time.Now,
	}
}

// SetSubmitter wires the dispatcher. Called once during startup.
func (e *Engine) SetSubmitter(s Submitter) {
	e.mu.Lock()
	e.submitter = s
	e.mu.Unlock()
}

// Upsert admits a pattern, replacing any pattern with the same id.
func (e *Engine) Upsert(p *models.Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.patterns[p.ID] = p
	e.mu.Unlock()
	return nil
}

// Remove deletes a pattern. Running executions of it are unaffected.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	delete(e.patterns, id)
	e.mu.Unlock()
}

// Get returns a copy of the pattern with the given id.
func (e *Engine) Get(id string) (models.Pattern, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.patterns[id]
	if !ok {
		return models.Pattern{}, false
	}
	return *p, true
}

// List returns copies of all patterns, sorted by id.
func (e *Engine) List() []models.Pattern {
	e.mu.RLock()
	out := make([]models.Pattern, 0, len(e.patterns))
	for _, p := range e.patterns {
		out = append(out, *p)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Expand runs the scheduling algorithm for the named pattern and submits one
// command item per command step, all bound to a fresh execution id.
//
// Scheduling is deterministic: pauses and command durations advance a
// cumulative delay, so each command's not-before time accounts for every
// preceding command COMPLETING, not merely starting.
func (e *Engine) Expand(patternID, deviceID string, priority int, origin Origin, localMaxIntensity, localMaxDurationMs int) (string, error) {
	e.mu.RLock()
	p, ok := e.patterns[patternID]
	submitter := e.submitter
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPatternNotFound, patternID)
	}

	now := e.clock()
	exec := &Execution{
		ID:        uuid.New().String(),
		PatternID: patternID,
		DeviceID:  deviceID,
		StartedAt: now,
	}

	items := scheduleItems(p, exec.ID, deviceID, priority, origin, now, localMaxIntensity, localMaxDurationMs)
	if len(items) == 0 {
		// Empty pattern: nothing to track, the execution id is disposable.
		return exec.ID, nil
	}

	exec.pending = len(items)
	e.mu.Lock()
	e.executions[exec.ID] = exec
	e.mu.Unlock()

	for i, item := range items {
		if err := submitter.Submit(item); err != nil {
			// A refused submission is fatal for the rest of the program:
			// cancel what was admitted and stop. The submitter settled the
			// refused item; only the never-submitted tail needs accounting.
			slog.Warn("Pattern expansion aborted",
				"execution_id", exec.ID, "pattern_id", patternID,
				"step_index", item.StepIndex, "error", err)
			e.adjustPending(exec, len(items)-i-1)
			_ = e.Cancel(exec.ID)
			return exec.ID, fmt.Errorf("submitting step %d: %w", item.StepIndex, err)
		}
	}

	slog.Debug("Pattern expanded",
		"execution_id", exec.ID, "pattern_id", patternID,
		"device_id", deviceID, "items", len(items))
	return exec.ID, nil
}

// scheduleItems builds the command items for one expansion.
func scheduleItems(p *models.Pattern, executionID, deviceID string, priority int, origin Origin, base time.Time, localMaxIntensity, localMaxDurationMs int) []*models.CommandItem {
	var items []*models.CommandItem
	cumulative := time.Duration(0)

	for i, step := range p.Steps {
		switch step.Type {
		case models.StepPause:
			cumulative += time.Duration(step.Pause.DurationMs) * time.Millisecond
		case models.StepCommand:
			offset := cumulative + time.Duration(step.DelayMs)*time.Millisecond
			items = append(items, &models.CommandItem{
				ID:                 uuid.New().String(),
				ExecutionID:        executionID,
				StepIndex:          i,
				DeviceID:           deviceID,
				Kind:               step.Command.Kind,
				Intensity:          step.Command.Intensity,
				DurationMs:         step.Command.DurationMs,
				ScheduledNotBefore: base.Add(offset),
				Priority:           priority,
				SubmittedAt:        base,
				OriginUserID:       origin.UserID,
				OriginEventKind:    origin.EventKind,
				MappingID:          origin.MappingID,
				LocalMaxIntensity:  localMaxIntensity,
				LocalMaxDurationMs: localMaxDurationMs,
			})
			// The next step waits for this command to complete.
			cumulative += time.Duration(step.Command.DurationMs) * time.Millisecond
		}
	}
	return items
}

// IsCancelled reports whether the given execution id is cancelled. Unknown
// ids (already settled or never tracked) report false.
func (e *Engine) IsCancelled(executionID string) bool {
	e.mu.RLock()
	exec, ok := e.executions[executionID]
	e.mu.RUnlock()
	return ok && exec.Cancelled()
}

// Cancel flags the execution as cancelled. The dispatcher drops its
// not-yet-inflight items; in-flight commands complete as-is. Cancelling an
// unknown id is a no-op returning success.
func (e *Engine) Cancel(executionID string) error {
	e.mu.RLock()
	exec, ok := e.executions[executionID]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	exec.mu.Lock()
	already := exec.cancelled
	exec.cancelled = true
	exec.mu.Unlock()

	if !already {
		slog.Info("Pattern execution cancelled",
			"execution_id", executionID, "pattern_id", exec.PatternID)
	}
	return nil
}

// CancelAll cancels every live execution. Used by the emergency stop.
func (e *Engine) CancelAll() {
	e.mu.RLock()
	ids := make([]string, 0, len(e.executions))
	for id := range e.executions {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		_ = e.Cancel(id)
	}
}

// ItemSettled informs the engine that one item of the execution reached a
// terminal state. When the last item settles the execution record is
// disposed.
func (e *Engine) ItemSettled(executionID string) {
	if executionID == "" {
		return
	}
	e.mu.RLock()
	exec, ok := e.executions[executionID]
	e.mu.RUnlock()
	if !ok {
		return
	}
	e.adjustPending(exec, 1)
}

// adjustPending decrements the pending count by n and disposes the record
// when it reaches zero.
func (e *Engine) adjustPending(exec *Execution, n int) {
	exec.mu.Lock()
	exec.pending -= n
	done := exec.pending <= 0
	exec.mu.Unlock()

	if done {
		e.mu.Lock()
		delete(e.executions, exec.ID)
		e.mu.Unlock()
	}
}

// LiveExecutions returns the number of tracked executions.
func (e *Engine) LiveExecutions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.executions)
}
