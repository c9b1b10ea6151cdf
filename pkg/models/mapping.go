package models

import (
	"errors"
	"fmt"
)

// Command bounds enforced at mapping admission. The safety arbiter applies
// the same lower bounds again at dispatch time when clamping.
const (
	MinIntensity  = 1
	MaxIntensity  = 100
	MinDurationMs = 300
	MaxDurationMs = 30000
	MinPriority   = 0
	MaxPriority   = 10
)

// CommandKind identifies the kind of device command.
type CommandKind string

// Supported command kinds.
const (
	CommandShock   CommandKind = "shock"
	CommandVibrate CommandKind = "vibrate"
	CommandSound   CommandKind = "sound"
)

// ValidCommandKind reports whether k is a supported command kind.
func ValidCommandKind(k CommandKind) bool {
	switch k {
	case CommandShock, CommandVibrate, CommandSound:
		return true
	}
	return false
}

// ActionType discriminates the Action tagged union.
type ActionType string

// Action types.
const (
	ActionCommand ActionType = "command"
	ActionPattern ActionType = "pattern"
)

// CommandSpec is the direct-command arm of an Action.
type CommandSpec struct {
	Kind       CommandKind `json:"kind"`
	Intensity  int         `json:"intensity"`
	DurationMs int         `json:"duration_ms"`
}

// Action is what a mapping executes on match: either a single device command
// or the invocation of a named pattern.
type Action struct {
	Type      ActionType   `json:"type"`
	DeviceID  string       `json:"device_id"`
	Command   *CommandSpec `json:"command,omitempty"`
	PatternID string       `json:"pattern_id,omitempty"`
	Priority  int          `json:"priority"`
}

// Conditions narrows which events a mapping matches. All zero-valued fields
// are treated as "not set".
type Conditions struct {
	GiftName           string   `json:"gift_name,omitempty"` // case-insensitive exact match
	MinCoins           int      `json:"min_coins,omitempty"`
	MaxCoins           *int     `json:"max_coins,omitempty"`
	MessagePattern     string   `json:"message_pattern,omitempty"`
	MinLikes           int      `json:"min_likes,omitempty"`
	TeamLevelMin       int      `json:"team_level_min,omitempty"`
	FollowerAgeMinDays int      `json:"follower_age_min_days,omitempty"`
	Whitelist          []string `json:"whitelist,omitempty"`
	Blacklist          []string `json:"blacklist,omitempty"`
}

// Cooldowns holds the three cooldown tiers in milliseconds. Zero disables
// the tier.
type Cooldowns struct {
	GlobalMs    int64 `json:"global_ms,omitempty"`
	PerDeviceMs int64 `json:"per_device_ms,omitempty"`
	PerUserMs   int64 `json:"per_user_ms,omitempty"`
}

// SafetyOverrides are optional per-mapping caps that further narrow the
// global safety configuration. Zero disables the cap.
type SafetyOverrides struct {
	MaxIntensity  int `json:"max_intensity,omitempty"`
	MaxDurationMs int `json:"max_duration_ms,omitempty"`
}

// Mapping is a user-defined rule binding a condition predicate to an action.
type Mapping struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Enabled    bool             `json:"enabled"`
	EventKind  EventKind        `json:"event_kind"`
	Conditions Conditions       `json:"conditions"`
	Action     Action           `json:"action"`
	Cooldowns  Cooldowns        `json:"cooldowns"`
	Safety     *SafetyOverrides `json:"safety,omitempty"`
}

// Mapping validation errors.
var (
	ErrMissingID        = errors.New("missing id")
	ErrInvalidEventKind = errors.New("invalid event kind")
	ErrInvalidAction    = errors.New("invalid action")
	ErrInvalidCommand   = errors.New("invalid command")
	ErrInvalidCooldown  = errors.New("invalid cooldown")
)

// Validate performs structural validation of the mapping. It does NOT check
// message-pattern safety; that lives in pkg/mapping where the pattern is
// compiled and cached.
func (m *Mapping) Validate() error {
	if m.ID == "" {
		return ErrMissingID
	}
	if !ValidEventKind(m.EventKind) {
		return fmt.Errorf("%w: %q", ErrInvalidEventKind, m.EventKind)
	}
	if err := m.Action.Validate(); err != nil {
		return err
	}
	if m.Cooldowns.GlobalMs < 0 || m.Cooldowns.PerDeviceMs < 0 || m.Cooldowns.PerUserMs < 0 {
		return ErrInvalidCooldown
	}
	if c := m.Conditions; c.MinCoins < 0 || c.MinLikes < 0 || c.TeamLevelMin < 0 || c.FollowerAgeMinDays < 0 {
		return fmt.Errorf("negative condition bound")
	}
	if c := m.Conditions; c.MaxCoins != nil && *c.MaxCoins < c.MinCoins {
		return fmt.Errorf("max_coins %d below min_coins %d", *c.MaxCoins, c.MinCoins)
	}
	return nil
}

// Validate checks the action's tagged-union shape and command bounds.
func (a *Action) Validate() error {
	if a.DeviceID == "" {
		return fmt.Errorf("%w: missing device_id", ErrInvalidAction)
	}
	if a.Priority < MinPriority || a.Priority > MaxPriority {
		return fmt.Errorf("%w: priority %d out of range [%d,%d]", ErrInvalidAction, a.Priority, MinPriority, MaxPriority)
	}
	switch a.Type {
	case ActionCommand:
		if a.Command == nil {
			return fmt.Errorf("%w: type=command without command spec", ErrInvalidAction)
		}
		return a.Command.Validate()
	case ActionPattern:
		if a.PatternID == "" {
			return fmt.Errorf("%w: type=pattern without pattern_id", ErrInvalidAction)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, a.Type)
	}
}

// Validate checks command kind and bounds.
func (c *CommandSpec) Validate() error {
	if !ValidCommandKind(c.Kind) {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCommand, c.Kind)
	}
	if c.Intensity < MinIntensity || c.Intensity > MaxIntensity {
		return fmt.Errorf("%w: intensity %d out of range [%d,%d]", ErrInvalidCommand, c.Intensity, MinIntensity, MaxIntensity)
	}
	if c.DurationMs < MinDurationMs || c.DurationMs > MaxDurationMs {
		return fmt.Errorf("%w: duration %dms out of range [%d,%d]", ErrInvalidCommand, c.DurationMs, MinDurationMs, MaxDurationMs)
	}
	return nil
}
