package safety

import (
	"log/slog"
	"time"

	"github.com/streamrig/streamrig/pkg/config"
	"github.com/streamrig/streamrig/pkg/models"
)

// Decision is the arbiter's verdict on a command item. When allowed, the
// Intensity and DurationMs fields carry the clamped values to send.
type Decision struct {
	Allowed    bool
	Reason     models.DropReason
	Intensity  int
	DurationMs int
}

// Arbiter is the last gate before dispatch. It is consulted by the workers
// for every item, immediately before the device call.
type Arbiter struct {
	cfg    *config.SafetyConfig
	latch  *Latch
	ledger *RateLedger
}

// NewArbiter creates an arbiter over the given latch and ledger.
func NewArbiter(cfg *config.SafetyConfig, latch *Latch, ledger *RateLedger) *Arbiter {
	return &Arbiter{cfg: cfg, latch: latch, ledger: ledger}
}

// Latch exposes the emergency stop latch the arbiter enforces.
func (a *Arbiter) Latch() *Latch { return a.latch }

// Validate decides whether the item may be dispatched now. Checks run in
// order: emergency stop, global rate, per-user rate, per-device rate; then
// intensity and duration are clamped. Validation does not consume rate
// budget; call RecordDispatch only after the device accepted the command.
func (a *Arbiter) Validate(item *models.CommandItem, now time.Time) Decision {
	if a.latch.Engaged() {
		return Decision{Reason: models.DropEmergencyStop}
	}

	if a.cfg.MaxCommandsPerMinute > 0 && a.ledger.CountGlobal(now) >= a.cfg.MaxCommandsPerMinute {
		slog.Warn("Global rate limit hit", "limit", a.cfg.MaxCommandsPerMinute)
		return Decision{Reason: models.DropGlobalRate}
	}
	if item.OriginUserID != "" && a.cfg.MaxCommandsPerUser > 0 &&
		a.ledger.CountUser(item.OriginUserID, now) >= a.cfg.MaxCommandsPerUser {
		slog.Warn("Per-user rate limit hit", "user_id", item.OriginUserID, "limit", a.cfg.MaxCommandsPerUser)
		return Decision{Reason: models.DropUserRate}
	}
	if item.DeviceID != "" && a.cfg.MaxCommandsPerDevice > 0 &&
		a.ledger.CountDevice(item.DeviceID, now) >= a.cfg.MaxCommandsPerDevice {
		slog.Warn("Per-device rate limit hit", "device_id", item.DeviceID, "limit", a.cfg.MaxCommandsPerDevice)
		return Decision{Reason: models.DropDeviceRate}
	}

	intensity, duration := a.clamp(item)
	return Decision{Allowed: true, Intensity: intensity, DurationMs: duration}
}

// RecordDispatch consumes rate budget for a successfully sent command.
func (a *Arbiter) RecordDispatch(item *models.CommandItem, at time.Time) {
	a.ledger.Record(item.OriginUserID, item.DeviceID, at)
}

// clamp bounds intensity and duration to [min, effective max], where the
// effective max is the narrower of the global cap and the item's local cap.
func (a *Arbiter) clamp(item *models.CommandItem) (int, int) {
	maxIntensity := a.cfg.MaxIntensity
	if item.LocalMaxIntensity > 0 && item.LocalMaxIntensity < maxIntensity {
		maxIntensity = item.LocalMaxIntensity
	}
	maxDuration := a.cfg.MaxDurationMs
	if item.LocalMaxDurationMs > 0 && item.LocalMaxDurationMs < maxDuration {
		maxDuration = item.LocalMaxDurationMs
	}

	intensity := item.Intensity
	if intensity > maxIntensity {
		intensity = maxIntensity
	}
	if intensity < models.MinIntensity {
		intensity = models.MinIntensity
	}

	duration := item.DurationMs
	if duration > maxDuration {
		duration = maxDuration
	}
	if duration < models.MinDurationMs {
		duration = models.MinDurationMs
	}
	return intensity, duration
}
