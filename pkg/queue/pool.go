package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/streamrig/streamrig/pkg/config"
	"github.com/streamrig/streamrig/pkg/events"
	"github.com/streamrig/streamrig/pkg/models"
	"github.com/streamrig/streamrig/pkg/safety"
)

// DispatcherPool owns the command queue and the worker goroutines draining
// it. It is the single point of admission for command items and the owner
// of the emergency stop procedure.
type DispatcherPool struct {
	cfg      *config.QueueConfig
	queue    *CommandQueue
	arbiter  *safety.Arbiter
	device   DeviceSender
	patterns ExecutionRegistry
	pub      *events.Publisher
	alerter  AuthAlerter

	workers  []*Worker
	inFlight atomic.Int64

	mu      sync.Mutex
	started bool
}

// NewDispatcherPool creates a pool. alerter may be nil.
func NewDispatcherPool(cfg *config.QueueConfig, arbiter *safety.Arbiter, device DeviceSender, patterns ExecutionRegistry, pub *events.Publisher, alerter AuthAlerter) *DispatcherPool {
	return &DispatcherPool{
		cfg:      cfg,
		queue:    NewCommandQueue(cfg.MaxQueueSize),
		arbiter:  arbiter,
		device:   device,
		patterns: patterns,
		pub:      pub,
		alerter:  alerter,
		workers:  make([]*Worker, 0, cfg.WorkerCount),
	}
}

// Start spawns the worker goroutines. Safe to call multiple times;
// subsequent calls are no-ops.
func (p *DispatcherPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		slog.Warn("Dispatcher pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true

	slog.Info("Starting dispatcher pool", "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		w := NewWorker(fmt.Sprintf("worker-%d", i), p.cfg, p.queue, p.arbiter, p.device, p.patterns, p.pub, p.alerter)
		w.inFlight = &p.inFlight
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}
}

// Stop signals all workers and waits for in-flight dispatches to finish.
// Safe to call multiple times; worker stops are idempotent.
func (p *DispatcherPool) Stop() {
	slog.Info("Stopping dispatcher pool", "queue_depth", p.queue.Len())
	for _, w := range p.workers {
		w.Stop()
	}
	slog.Info("Dispatcher pool stopped")
}

// Submit admits one item to the queue. Refusals settle the item immediately:
// the caller never has to publish an outcome for a refused item.
func (p *DispatcherPool) Submit(item *models.CommandItem) error {
	if p.arbiter.Latch().Engaged() {
		p.settleDropped(item, models.DropEmergencyStop)
		return ErrEmergencyStop
	}

	if err := p.queue.Push(item); err != nil {
		p.pub.Incr(events.CounterQueueFull)
		p.settleDropped(item, models.DropQueueFull)
		slog.Warn("Queue full, submission refused",
			"item_id", item.ID, "device_id", item.DeviceID, "depth", p.queue.Len())
		return err
	}
	return nil
}

// TriggerEmergencyStop engages the latch, drains every queued item as
// dropped, and cancels all live pattern executions. Idempotent: a second
// trigger while engaged returns false and does nothing.
func (p *DispatcherPool) TriggerEmergencyStop(reason string) bool {
	if !p.arbiter.Latch().Trigger(reason) {
		return false
	}

	drained := p.queue.DrainAll()
	for _, item := range drained {
		p.settleDropped(item, models.DropEmergencyStop)
	}
	p.patterns.CancelAll()
	p.pub.PublishSystemStatus(true, reason)

	slog.Warn("Emergency stop executed", "reason", reason, "drained", len(drained))
	return true
}

// ClearEmergencyStop disengages the latch. Nothing dropped or cancelled by
// the stop is resurrected.
func (p *DispatcherPool) ClearEmergencyStop() bool {
	if !p.arbiter.Latch().Clear() {
		return false
	}
	p.pub.PublishSystemStatus(false, "")
	return true
}

// Stats returns a snapshot of the dispatcher.
func (p *DispatcherPool) Stats() PoolStats {
	engaged, reason, since := p.arbiter.Latch().Status()
	s := PoolStats{
		QueueDepth:    p.queue.Len(),
		InFlight:      int(p.inFlight.Load()),
		WorkerCount:   len(p.workers),
		EmergencyStop: engaged,
	}
	if engaged {
		s.EmergencyStopReason = reason
		s.EmergencyStopSince = since
	}
	return s
}

// settleDropped publishes a terminal dropped outcome and releases the
// item's execution slot.
func (p *DispatcherPool) settleDropped(item *models.CommandItem, reason models.DropReason) {
	p.patterns.ItemSettled(item.ExecutionID)
	p.pub.PublishItemOutcome(item, models.ItemDropped, string(reason))
}
