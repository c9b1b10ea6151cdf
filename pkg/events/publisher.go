package events

import (
	"time"

	"github.com/streamrig/streamrig/pkg/models"
)

// Publisher combines the Recorder and the Hub: every published outcome is
// counted, retained, and broadcast live. The hub may be nil (streaming
// disabled); the recorder is required.
type Publisher struct {
	recorder *Recorder
	hub      *Hub
}

// NewPublisher creates a Publisher. hub may be nil.
func NewPublisher(recorder *Recorder, hub *Hub) *Publisher {
	return &Publisher{recorder: recorder, hub: hub}
}

// Recorder exposes the underlying recorder for stats queries.
func (p *Publisher) Recorder() *Recorder {
	return p.recorder
}

// PublishOutcome records and broadcasts a terminal command outcome.
func (p *Publisher) PublishOutcome(o Outcome) {
	o.Type = TypeCommandOutcome
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}
	p.recorder.RecordOutcome(o)
	if p.hub != nil {
		p.hub.Broadcast(o)
	}
}

// PublishItemOutcome builds an Outcome from a settled item and publishes it.
func (p *Publisher) PublishItemOutcome(item *models.CommandItem, state models.ItemState, reason string) {
	p.PublishOutcome(Outcome{
		ItemID:      item.ID,
		ExecutionID: item.ExecutionID,
		StepIndex:   item.StepIndex,
		DeviceID:    item.DeviceID,
		Kind:        item.Kind,
		Intensity:   item.Intensity,
		DurationMs:  item.DurationMs,
		State:       state,
		Reason:      reason,
		Attempts:    item.Attempts,
		MappingID:   item.MappingID,
		UserID:      item.OriginUserID,
	})
}

// PublishSystemStatus broadcasts an emergency-stop transition and counts it.
func (p *Publisher) PublishSystemStatus(engaged bool, reason string) {
	if engaged {
		p.recorder.Incr("emergency_stop_triggered")
	} else {
		p.recorder.Incr("emergency_stop_cleared")
	}
	if p.hub != nil {
		p.hub.Broadcast(SystemStatus{
			Type:          TypeSystemStatus,
			EmergencyStop: engaged,
			Reason:        reason,
			Timestamp:     time.Now(),
		})
	}
}

// Incr forwards to the recorder, for conditions with no command item.
func (p *Publisher) Incr(name string) {
	p.recorder.Incr(name)
}
