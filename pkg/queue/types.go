// Package queue implements the bounded priority dispatch queue and the
// worker pool that drains it through the safety arbiter to the device
// backend.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/streamrig/streamrig/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrQueueFull indicates the bounded queue refused a submission.
	ErrQueueFull = errors.New("queue full")

	// ErrEmergencyStop indicates a submission was refused because the
	// emergency stop latch is engaged.
	ErrEmergencyStop = errors.New("emergency stop engaged")
)

// DeviceSender is the device backend surface the workers dispatch through.
type DeviceSender interface {
	SendCommand(ctx context.Context, item *models.CommandItem, intensity, durationMs int) error
}

// ExecutionRegistry is the pattern engine surface the dispatcher consults
// for cooperative cancellation and settlement bookkeeping.
type ExecutionRegistry interface {
	IsCancelled(executionID string) bool
	ItemSettled(executionID string)
	CancelAll()
}

// AuthAlerter is notified when the device backend rejects our credentials.
// May be nil (alerting disabled).
type AuthAlerter interface {
	NotifyAuthFailure(ctx context.Context, deviceID string, err error)
}

// PoolStats is a point-in-time snapshot of the dispatcher.
type PoolStats struct {
	QueueDepth          int       `json:"queue_depth"`
	InFlight            int       `json:"in_flight"`
	WorkerCount         int       `json:"worker_count"`
	EmergencyStop       bool      `json:"emergency_stop"`
	EmergencyStopReason string    `json:"emergency_stop_reason,omitempty"`
	EmergencyStopSince  time.Time `json:"emergency_stop_since,omitempty"`
}
