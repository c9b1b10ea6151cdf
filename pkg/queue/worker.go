package queue

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/streamrig/streamrig/pkg/config"
	"github.com/streamrig/streamrig/pkg/device"
	"github.com/streamrig/streamrig/pkg/events"
	"github.com/streamrig/streamrig/pkg/models"
	"github.com/streamrig/streamrig/pkg/safety"
)

// Worker is a single dispatcher goroutine. It polls the queue for ready
// items, passes them through the arbiter, and drives the device call with
// retries until the item settles.
type Worker struct {
	id       string
	cfg      *config.QueueConfig
	queue    *CommandQueue
	arbiter  *safety.Arbiter
	device   DeviceSender
	patterns ExecutionRegistry
	pub      *events.Publisher
	alerter  AuthAlerter

	// Shared with the pool for its in-flight gauge; nil when the worker
	// runs standalone.
	inFlight *atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a dispatcher worker. alerter may be nil.
func NewWorker(id string, cfg *config.QueueConfig, q *CommandQueue, arbiter *safety.Arbiter, dev DeviceSender, patterns ExecutionRegistry, pub *events.Publisher, alerter AuthAlerter) *Worker {
	return &Worker{
		id:       id,
		cfg:      cfg,
		queue:    q,
		arbiter:  arbiter,
		device:   dev,
		patterns: patterns,
		pub:      pub,
		alerter:  alerter,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish. The current
// item's dispatch completes before the worker exits. Safe to call multiple
// times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Dispatcher worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Dispatcher worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, dispatcher worker shutting down")
			return
		default:
			item := w.queue.PopReady(time.Now())
			if item == nil {
				w.sleep(w.pollInterval())
				continue
			}
			w.process(ctx, item)
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// process takes one popped item to a terminal state.
func (w *Worker) process(ctx context.Context, item *models.CommandItem) {
	if w.inFlight != nil {
		w.inFlight.Add(1)
		defer w.inFlight.Add(-1)
	}

	log := slog.With("worker_id", w.id, "item_id", item.ID, "device_id", item.DeviceID)

	if item.ExecutionID != "" && w.patterns.IsCancelled(item.ExecutionID) {
		w.settle(item, models.ItemDropped, string(models.DropCancelled))
		return
	}

	decision := w.arbiter.Validate(item, time.Now())
	if !decision.Allowed {
		log.Info("Item denied by safety arbiter", "reason", decision.Reason)
		w.settle(item, models.ItemDropped, string(decision.Reason))
		return
	}

	w.dispatch(ctx, item, decision, log)
}

// dispatch drives the device call with exponential backoff until success,
// a terminal failure, or the item's wall-clock budget is spent.
func (w *Worker) dispatch(ctx context.Context, item *models.CommandItem, decision safety.Decision, log *slog.Logger) {
	itemCtx, cancel := context.WithTimeout(ctx, w.cfg.ItemBudget)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.cfg.RetryBackoffBase
	bo.MaxElapsedTime = w.cfg.ItemBudget
	bo.Reset()

	for attempt := 1; ; attempt++ {
		// Conditions can change between retries; re-check the kill switches.
		if w.arbiter.Latch().Engaged() {
			w.settle(item, models.ItemDropped, string(models.DropEmergencyStop))
			return
		}
		if item.ExecutionID != "" && w.patterns.IsCancelled(item.ExecutionID) {
			w.settle(item, models.ItemDropped, string(models.DropCancelled))
			return
		}

		item.Attempts = attempt
		err := w.device.SendCommand(itemCtx, item, decision.Intensity, decision.DurationMs)
		if err == nil {
			w.arbiter.RecordDispatch(item, time.Now())
			w.settle(item, models.ItemDone, "")
			log.Debug("Item dispatched", "attempts", attempt)
			return
		}

		if device.IsAuth(err) {
			log.Error("Device backend rejected credentials", "error", err)
			if w.alerter != nil {
				w.alerter.NotifyAuthFailure(context.Background(), item.DeviceID, err)
			}
			w.settle(item, models.ItemFailed, string(models.FailAuth))
			return
		}

		if attempt > w.cfg.MaxRetries {
			log.Warn("Item failed after exhausting retries", "attempts", attempt, "error", err)
			w.settle(item, models.ItemFailed, string(models.FailExceededRetries))
			return
		}

		delay := bo.NextBackOff()
		if ra := device.RetryAfter(err); ra > delay {
			delay = ra
		}
		if delay == backoff.Stop || itemCtx.Err() != nil {
			log.Warn("Item budget exhausted", "attempts", attempt, "error", err)
			w.settle(item, models.ItemFailed, string(models.FailExceededRetries))
			return
		}

		log.Info("Device call failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-w.stopCh:
			// Shutdown mid-retry: the item never reached the device, drop it
			// rather than leaving it unsettled.
			w.settle(item, models.ItemDropped, string(models.DropCancelled))
			return
		case <-itemCtx.Done():
			w.settle(item, models.ItemFailed, string(models.FailExceededRetries))
			return
		case <-time.After(delay):
		}
	}
}

// settle publishes the terminal outcome and releases the item's execution
// slot.
func (w *Worker) settle(item *models.CommandItem, state models.ItemState, reason string) {
	if item.ExecutionID != "" {
		w.patterns.ItemSettled(item.ExecutionID)
	}
	w.pub.PublishItemOutcome(item, state, reason)
}
