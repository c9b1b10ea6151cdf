package models

import (
	"errors"
	"fmt"
)

// StepType discriminates the Step tagged union.
type StepType string

// Step types.
const (
	StepPause   StepType = "pause"
	StepCommand StepType = "command"
)

// PauseStep delays all subsequent steps by DurationMs.
type PauseStep struct {
	DurationMs int `json:"duration_ms"`
}

// CommandStep emits one device command. The device is chosen at expansion
// time (patterns are device-agnostic programs).
type CommandStep struct {
	Kind       CommandKind `json:"kind"`
	Intensity  int         `json:"intensity"`
	DurationMs int         `json:"duration_ms"`
}

// Step is one entry of a pattern program. Exactly one of Pause/Command is
// set, matching Type. DelayMs is an optional extra offset added on top of
// the cumulative schedule for command steps.
type Step struct {
	Type    StepType     `json:"type"`
	Pause   *PauseStep   `json:"pause,omitempty"`
	Command *CommandStep `json:"command,omitempty"`
	DelayMs int          `json:"delay_ms,omitempty"`
}

// Pattern is a named ordered program of command and pause steps.
type Pattern struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps"`
}

// ErrInvalidStep indicates a malformed pattern step.
var ErrInvalidStep = errors.New("invalid step")

// Validate performs structural validation of the pattern. Empty patterns
// are valid (expansion enqueues nothing).
func (p *Pattern) Validate() error {
	if p.ID == "" {
		return ErrMissingID
	}
	for i, s := range p.Steps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks the step's tagged-union shape and bounds.
func (s *Step) Validate() error {
	if s.DelayMs < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidStep)
	}
	switch s.Type {
	case StepPause:
		if s.Pause == nil || s.Command != nil {
			return fmt.Errorf("%w: type=pause shape mismatch", ErrInvalidStep)
		}
		if s.Pause.DurationMs < 0 {
			return fmt.Errorf("%w: negative pause duration", ErrInvalidStep)
		}
		return nil
	case StepCommand:
		if s.Command == nil || s.Pause != nil {
			return fmt.Errorf("%w: type=command shape mismatch", ErrInvalidStep)
		}
		spec := CommandSpec{Kind: s.Command.Kind, Intensity: s.Command.Intensity, DurationMs: s.Command.DurationMs}
		return spec.Validate()
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidStep, s.Type)
	}
}
