package models

import "time"

// ItemState is the lifecycle state of a queued command item.
//
// Pending → Scheduled (waiting) → InFlight → Done | Failed | Dropped(reason)
type ItemState string

// Command item states.
const (
	ItemPending   ItemState = "pending"
	ItemScheduled ItemState = "scheduled"
	ItemInFlight  ItemState = "in_flight"
	ItemDone      ItemState = "done"
	ItemFailed    ItemState = "failed"
	ItemDropped   ItemState = "dropped"
)

// DropReason explains why an item reached the Dropped terminal state, or why
// a submission was refused.
type DropReason string

// Drop reasons.
const (
	DropCancelled     DropReason = "cancelled"
	DropEmergencyStop DropReason = "emergency_stop"
	DropQueueFull     DropReason = "queue_full"
	DropGlobalRate    DropReason = "global_rate"
	DropUserRate      DropReason = "user_rate"
	DropDeviceRate    DropReason = "device_rate"
)

// FailReason explains why an item reached the Failed terminal state.
type FailReason string

// Fail reasons.
const (
	FailAuth            FailReason = "auth"
	FailExceededRetries FailReason = "exceeded_retries"
)

// CommandItem is one atomic unit placed on the dispatch queue and ultimately
// sent to the device backend. Items are owned by the queue from submission
// to terminal state; no other component mutates them.
type CommandItem struct {
	ID          string      `json:"id"`
	ExecutionID string      `json:"execution_id,omitempty"` // binds all items of one pattern run
	StepIndex   int         `json:"step_index,omitempty"`
	DeviceID    string      `json:"device_id"`
	Kind        CommandKind `json:"kind"`
	Intensity   int         `json:"intensity"`
	DurationMs  int         `json:"duration_ms"`

	ScheduledNotBefore time.Time `json:"scheduled_not_before"`
	Priority           int       `json:"priority"`
	SubmittedAt        time.Time `json:"submitted_at"`
	Attempts           int       `json:"attempts"`

	// Origin of the item, for observability and per-user rate accounting.
	OriginUserID    string    `json:"origin_user_id,omitempty"`
	OriginEventKind EventKind `json:"origin_event_kind,omitempty"`
	MappingID       string    `json:"mapping_id,omitempty"`

	// Mapping-local safety caps carried along so the arbiter stays a pure
	// function over the item. Zero = no local cap.
	LocalMaxIntensity  int `json:"-"`
	LocalMaxDurationMs int `json:"-"`
}
