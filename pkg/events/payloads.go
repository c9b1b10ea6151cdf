// Package events is the observability side-channel of the core: counters,
// recent command outcomes, and a WebSocket hub for live delivery to the
// admin dashboard.
package events

import (
	"time"

	"github.com/streamrig/streamrig/pkg/models"
)

// Payload types delivered over the WebSocket hub.
const (
	TypeCommandOutcome = "command.outcome"
	TypeSystemStatus   = "system.status"
)

// Outcome records the terminal state of one command item. Broadcast live and
// kept in the recent-outcomes ring for the admin surface.
type Outcome struct {
	Type        string             `json:"type"` // TypeCommandOutcome
	ItemID      string             `json:"item_id"`
	ExecutionID string             `json:"execution_id,omitempty"`
	StepIndex   int                `json:"step_index,omitempty"`
	DeviceID    string             `json:"device_id"`
	Kind        models.CommandKind `json:"kind"`
	Intensity   int                `json:"intensity"`
	DurationMs  int                `json:"duration_ms"`
	State       models.ItemState   `json:"state"` // done | failed | dropped
	Reason      string             `json:"reason,omitempty"`
	Attempts    int                `json:"attempts"`
	MappingID   string             `json:"mapping_id,omitempty"`
	UserID      string             `json:"user_id,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// SystemStatus announces system-level transitions (emergency stop set/clear).
type SystemStatus struct {
	Type          string    `json:"type"` // TypeSystemStatus
	EmergencyStop bool      `json:"emergency_stop"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
