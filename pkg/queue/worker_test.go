package queue

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/streamrig/streamrig/pkg/config"
	"github.com/streamrig/streamrig/pkg/device"
	"github.com/streamrig/streamrig/pkg/events"
	"github.com/streamrig/streamrig/pkg/models"
	"github.com/streamrig/streamrig/pkg/safety"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice returns the scripted errors in order, then succeeds.
type fakeDevice struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (d *fakeDevice) SendCommand(_ context.Context, _ *models.CommandItem, _, _ int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.errs) == 0 {
		return nil
	}
	err := d.errs[0]
	d.errs = d.errs[1:]
	return err
}

func (d *fakeDevice) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// fakeRegistry implements ExecutionRegistry with in-memory state.
type fakeRegistry struct {
	mu           sync.Mutex
	cancelled    map[string]bool
	settled      int
	cancelAllHit bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{cancelled: make(map[string]bool)}
}

func (r *fakeRegistry) IsCancelled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled[id]
}

func (r *fakeRegistry) ItemSettled(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != "" {
		r.settled++
	}
}

func (r *fakeRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelAllHit = true
}

type fakeAlerter struct {
	mu       sync.Mutex
	failures int
}

func (a *fakeAlerter) NotifyAuthFailure(context.Context, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures++
}

type workerFixture struct {
	worker   *Worker
	dev      *fakeDevice
	registry *fakeRegistry
	alerter  *fakeAlerter
	recorder *events.Recorder
	arbiter  *safety.Arbiter
}

func fastQueueConfig() *config.QueueConfig {
	cfg := config.DefaultQueueConfig()
	cfg.RetryBackoffBase = time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	cfg.PollIntervalJitter = time.Millisecond
	cfg.ItemBudget = 2 * time.Second
	return cfg
}

func newWorkerFixture(t *testing.T, dev *fakeDevice) *workerFixture {
	t.Helper()
	cfg := fastQueueConfig()
	recorder := events.NewRecorder()
	pub := events.NewPublisher(recorder, nil)
	arbiter := safety.NewArbiter(config.DefaultSafetyConfig(), safety.NewLatch(), safety.NewRateLedger())
	registry := newFakeRegistry()
	alerter := &fakeAlerter{}

	return &workerFixture{
		worker:   NewWorker("w-test", cfg, NewCommandQueue(cfg.MaxQueueSize), arbiter, dev, registry, pub, alerter),
		dev:      dev,
		registry: registry,
		alerter:  alerter,
		recorder: recorder,
		arbiter:  arbiter,
	}
}

func readyItem(id string) *models.CommandItem {
	return &models.CommandItem{
		ID:                 id,
		ExecutionID:        "exec-1",
		DeviceID:           "dev-1",
		Kind:               models.CommandVibrate,
		Intensity:          50,
		DurationMs:         1000,
		OriginUserID:       "u1",
		ScheduledNotBefore: time.Now().Add(-time.Second),
		SubmittedAt:        time.Now(),
	}
}

func apiError(class device.ErrorClass, status int) *device.APIError {
	return &device.APIError{Class: class, Status: status}
}

func TestProcessSuccess(t *testing.T) {
	f := newWorkerFixture(t, &fakeDevice{})

	f.worker.process(context.Background(), readyItem("i1"))

	recent := f.recorder.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, models.ItemDone, recent[0].State)
	assert.Equal(t, 1, recent[0].Attempts)
	assert.Equal(t, 1, f.registry.settled)
}

func TestProcessDropsCancelledExecution(t *testing.T) {
	f := newWorkerFixture(t, &fakeDevice{})
	f.registry.cancelled["exec-1"] = true

	f.worker.process(context.Background(), readyItem("i1"))

	assert.Equal(t, 0, f.dev.callCount(), "cancelled item must not reach the device")
	recent := f.recorder.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, models.ItemDropped, recent[0].State)
	assert.Equal(t, string(models.DropCancelled), recent[0].Reason)
}

func TestProcessDropsWhenLatchEngaged(t *testing.T) {
	f := newWorkerFixture(t, &fakeDevice{})
	f.arbiter.Latch().Trigger("test")

	f.worker.process(context.Background(), readyItem("i1"))

	assert.Equal(t, 0, f.dev.callCount())
	recent := f.recorder.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, string(models.DropEmergencyStop), recent[0].Reason)
}

func TestProcessRetriesTransientErrors(t *testing.T) {
	f := newWorkerFixture(t, &fakeDevice{errs: []error{
		apiError(device.ClassServer, 500),
		apiError(device.ClassNetwork, 0),
	}})

	f.worker.process(context.Background(), readyItem("i1"))

	assert.Equal(t, 3, f.dev.callCount())
	recent := f.recorder.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, models.ItemDone, recent[0].State)
	assert.Equal(t, 3, recent[0].Attempts)
}

func TestProcessAuthFailureIsTerminal(t *testing.T) {
	f := newWorkerFixture(t, &fakeDevice{errs: []error{
		apiError(device.ClassAuth, 401),
	}})

	f.worker.process(context.Background(), readyItem("i1"))

	assert.Equal(t, 1, f.dev.callCount(), "auth failures are never retried")
	recent := f.recorder.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, models.ItemFailed, recent[0].State)
	assert.Equal(t, string(models.FailAuth), recent[0].Reason)
	assert.Equal(t, 1, f.alerter.failures)
}

func TestProcessExceededRetries(t *testing.T) {
	f := newWorkerFixture(t, &fakeDevice{errs: []error{
		apiError(device.ClassServer, 500),
		apiError(device.ClassServer, 500),
		apiError(device.ClassServer, 500),
		apiError(device.ClassServer, 500),
	}})

	f.worker.process(context.Background(), readyItem("i1"))

	// MaxRetries=3 allows 4 attempts total.
	assert.Equal(t, 4, f.dev.callCount())
	recent := f.recorder.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, models.ItemFailed, recent[0].State)
	assert.Equal(t, string(models.FailExceededRetries), recent[0].Reason)
}

func TestProcessLatchEngagedMidRetry(t *testing.T) {
	f := newWorkerFixture(t, &fakeDevice{errs: []error{
		apiError(device.ClassServer, 500),
		apiError(device.ClassServer, 500),
	}})

	f.arbiter.Latch().Clear()
	go func() {
		time.Sleep(2 * time.Millisecond)
		f.arbiter.Latch().Trigger("mid-retry")
	}()

	f.worker.process(context.Background(), readyItem("i1"))

	recent := f.recorder.Recent(1)
	require.Len(t, recent, 1)
	// Either the retry observed the latch, or the command went through
	// before the trigger landed; both are terminal.
	assert.Contains(t, []models.ItemState{models.ItemDropped, models.ItemDone}, recent[0].State)
}

func TestWorkerDrainsQueueViaRunLoop(t *testing.T) {
	f := newWorkerFixture(t, &fakeDevice{})
	require.NoError(t, f.worker.queue.Push(readyItem("i1")))
	require.NoError(t, f.worker.queue.Push(readyItem("i2")))

	f.worker.Start(context.Background())
	defer f.worker.Stop()

	require.Eventually(t, func() bool {
		return f.dev.callCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func init() {
	// Tests exercise failure paths on purpose; keep the noise down.
	slog.SetLogLoggerLevel(slog.LevelError)
}
