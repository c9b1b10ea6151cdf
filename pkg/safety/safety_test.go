package safety

import (
	"testing"
	"time"

	"github.com/streamrig/streamrig/pkg/config"
	"github.com/streamrig/streamrig/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatchLifecycle(t *testing.T) {
	l := NewLatch()
	assert.False(t, l.Engaged())

	assert.True(t, l.Trigger("panic button"))
	assert.True(t, l.Engaged())

	engaged, reason, since := l.Status()
	assert.True(t, engaged)
	assert.Equal(t, "panic button", reason)
	assert.False(t, since.IsZero())

	// Idempotent: a second trigger reports no transition and keeps the
	// original reason.
	assert.False(t, l.Trigger("other"))
	_, reason, _ = l.Status()
	assert.Equal(t, "panic button", reason)

	assert.True(t, l.Clear())
	assert.False(t, l.Engaged())
	assert.False(t, l.Clear())
}

func TestLatchChangedWakes(t *testing.T) {
	l := NewLatch()
	ch := l.Changed()

	select {
	case <-ch:
		t.Fatal("channel closed before any transition")
	default:
	}

	l.Trigger("test")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("transition did not close the channel")
	}

	// Re-armed channel observes the next transition.
	ch = l.Changed()
	l.Clear()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("clear did not close the channel")
	}
}

func TestRateLedgerSlidingWindow(t *testing.T) {
	r := NewRateLedger()
	base := time.Now()

	for i := 0; i < 3; i++ {
		r.Record("u1", "d1", base.Add(time.Duration(i)*time.Second))
	}
	r.Record("u2", "d1", base.Add(3*time.Second))

	at := base.Add(5 * time.Second)
	assert.Equal(t, 4, r.CountGlobal(at))
	assert.Equal(t, 3, r.CountUser("u1", at))
	assert.Equal(t, 1, r.CountUser("u2", at))
	assert.Equal(t, 4, r.CountDevice("d1", at))
	assert.Equal(t, 0, r.CountDevice("d2", at))

	// Entries slide out of the window individually.
	at = base.Add(rateWindow + 1500*time.Millisecond)
	assert.Equal(t, 2, r.CountGlobal(at))
	assert.Equal(t, 1, r.CountUser("u1", at))

	at = base.Add(rateWindow + time.Hour)
	assert.Equal(t, 0, r.CountGlobal(at))
	assert.Equal(t, 0, r.CountUser("u1", at))
	assert.Equal(t, 0, r.CountDevice("d1", at))
}

func item(user, device string, intensity, durationMs int) *models.CommandItem {
	return &models.CommandItem{
		ID:           "i1",
		DeviceID:     device,
		Kind:         models.CommandVibrate,
		Intensity:    intensity,
		DurationMs:   durationMs,
		OriginUserID: user,
	}
}

func newArbiter(cfg *config.SafetyConfig) *Arbiter {
	return NewArbiter(cfg, NewLatch(), NewRateLedger())
}

func TestArbiterEmergencyStopDeniesEverything(t *testing.T) {
	a := newArbiter(config.DefaultSafetyConfig())
	a.Latch().Trigger("test")

	d := a.Validate(item("u1", "d1", 10, 1000), time.Now())
	assert.False(t, d.Allowed)
	assert.Equal(t, models.DropEmergencyStop, d.Reason)

	a.Latch().Clear()
	assert.True(t, a.Validate(item("u1", "d1", 10, 1000), time.Now()).Allowed)
}

func TestArbiterGlobalRateLimit(t *testing.T) {
	cfg := config.DefaultSafetyConfig()
	cfg.MaxCommandsPerMinute = 2
	a := newArbiter(cfg)
	now := time.Now()

	it := item("u1", "d1", 10, 1000)
	for i := 0; i < 2; i++ {
		require.True(t, a.Validate(it, now).Allowed)
		a.RecordDispatch(it, now)
	}

	d := a.Validate(it, now)
	assert.False(t, d.Allowed)
	assert.Equal(t, models.DropGlobalRate, d.Reason)

	// Budget returns once entries leave the window.
	assert.True(t, a.Validate(it, now.Add(rateWindow+time.Second)).Allowed)
}

func TestArbiterPerUserAndPerDeviceLimits(t *testing.T) {
	cfg := config.DefaultSafetyConfig()
	cfg.MaxCommandsPerMinute = 100
	cfg.MaxCommandsPerUser = 1
	cfg.MaxCommandsPerDevice = 2
	a := newArbiter(cfg)
	now := time.Now()

	a.RecordDispatch(item("u1", "d1", 10, 1000), now)

	d := a.Validate(item("u1", "d2", 10, 1000), now)
	assert.Equal(t, models.DropUserRate, d.Reason)

	// Another user on the same device is fine until the device cap.
	require.True(t, a.Validate(item("u2", "d1", 10, 1000), now).Allowed)
	a.RecordDispatch(item("u2", "d1", 10, 1000), now)

	d = a.Validate(item("u3", "d1", 10, 1000), now)
	assert.Equal(t, models.DropDeviceRate, d.Reason)
}

func TestArbiterValidateDoesNotConsumeBudget(t *testing.T) {
	cfg := config.DefaultSafetyConfig()
	cfg.MaxCommandsPerMinute = 1
	a := newArbiter(cfg)
	now := time.Now()

	it := item("u1", "d1", 10, 1000)
	for i := 0; i < 5; i++ {
		assert.True(t, a.Validate(it, now).Allowed, "attempt %d", i)
	}
}

func TestArbiterClamping(t *testing.T) {
	cfg := config.DefaultSafetyConfig()
	cfg.MaxIntensity = 80
	cfg.MaxDurationMs = 10000
	a := newArbiter(cfg)
	now := time.Now()

	// Above global caps
	d := a.Validate(item("u1", "d1", 95, 20000), now)
	require.True(t, d.Allowed)
	assert.Equal(t, 80, d.Intensity)
	assert.Equal(t, 10000, d.DurationMs)

	// Local cap narrower than global
	it := item("u1", "d1", 95, 20000)
	it.LocalMaxIntensity = 40
	it.LocalMaxDurationMs = 2000
	d = a.Validate(it, now)
	require.True(t, d.Allowed)
	assert.Equal(t, 40, d.Intensity)
	assert.Equal(t, 2000, d.DurationMs)

	// Below minimums is raised to the floor
	d = a.Validate(item("u1", "d1", 0, 100), now)
	require.True(t, d.Allowed)
	assert.Equal(t, models.MinIntensity, d.Intensity)
	assert.Equal(t, models.MinDurationMs, d.DurationMs)
}
