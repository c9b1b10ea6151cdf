package pattern

import (
	"errors"
	"testing"
	"time"

	"github.com/streamrig/streamrig/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSubmitter records submitted items and can be told to refuse after a
// number of accepted submissions. Like the real dispatcher, it settles the
// item it refuses.
type captureSubmitter struct {
	items      []*models.CommandItem
	failAfter  int
	failureErr error
	settle     func(executionID string)
}

func (s *captureSubmitter) Submit(item *models.CommandItem) error {
	if s.failureErr != nil && len(s.items) >= s.failAfter {
		if s.settle != nil {
			s.settle(item.ExecutionID)
		}
		return s.failureErr
	}
	s.items = append(s.items, item)
	return nil
}

func cmdStep(kind models.CommandKind, intensity, durationMs, delayMs int) models.Step {
	return models.Step{
		Type:    models.StepCommand,
		Command: &models.CommandStep{Kind: kind, Intensity: intensity, DurationMs: durationMs},
		DelayMs: delayMs,
	}
}

func pauseStep(durationMs int) models.Step {
	return models.Step{
		Type:  models.StepPause,
		Pause: &models.PauseStep{DurationMs: durationMs},
	}
}

func newEngineWithPattern(t *testing.T, p *models.Pattern) (*Engine, *captureSubmitter) {
	t.Helper()
	e := NewEngine()
	sub := &captureSubmitter{}
	e.SetSubmitter(sub)
	require.NoError(t, e.Upsert(p))
	return e, sub
}

func TestExpandUnknownPattern(t *testing.T) {
	e := NewEngine()
	e.SetSubmitter(&captureSubmitter{})

	_, err := e.Expand("nope", "dev-1", 5, Origin{}, 100, 30000)
	assert.ErrorIs(t, err, ErrPatternNotFound)
}

func TestExpandCumulativeDelayScheduling(t *testing.T) {
	p := &models.Pattern{
		ID:   "wave",
		Name: "wave",
		Steps: []models.Step{
			cmdStep(models.CommandVibrate, 40, 1000, 0), // at base
			pauseStep(500),
			cmdStep(models.CommandVibrate, 60, 2000, 250), // at base + 1000 + 500 + 250
			cmdStep(models.CommandShock, 20, 300, 0),      // at base + 1000 + 500 + 2000
		},
	}
	e, sub := newEngineWithPattern(t, p)
	base := time.Now()
	e.clock = func() time.Time { return base }

	execID, err := e.Expand("wave", "dev-1", 7, Origin{UserID: "u1", EventKind: models.EventGift, MappingID: "m1"}, 80, 5000)
	require.NoError(t, err)
	require.Len(t, sub.items, 3)

	assert.Equal(t, base, sub.items[0].ScheduledNotBefore)
	assert.Equal(t, base.Add(1750*time.Millisecond), sub.items[1].ScheduledNotBefore)
	assert.Equal(t, base.Add(3500*time.Millisecond), sub.items[2].ScheduledNotBefore)

	for i, item := range sub.items {
		assert.Equal(t, execID, item.ExecutionID, "item %d", i)
		assert.Equal(t, "dev-1", item.DeviceID)
		assert.Equal(t, 7, item.Priority)
		assert.Equal(t, "u1", item.OriginUserID)
		assert.Equal(t, models.EventGift, item.OriginEventKind)
		assert.Equal(t, "m1", item.MappingID)
		assert.Equal(t, 80, item.LocalMaxIntensity)
		assert.Equal(t, 5000, item.LocalMaxDurationMs)
	}
	// Step indices refer back to the pattern definition, pauses included.
	assert.Equal(t, 0, sub.items[0].StepIndex)
	assert.Equal(t, 2, sub.items[1].StepIndex)
	assert.Equal(t, 3, sub.items[2].StepIndex)
}

// Successive commands never overlap: the second command's not-before is at
// least the first command's duration plus any pause between them.
func TestExpandCommandsNeverOverlap(t *testing.T) {
	const a, p = 1200, 800
	pat := &models.Pattern{
		ID: "two",
		Steps: []models.Step{
			cmdStep(models.CommandVibrate, 50, a, 0),
			pauseStep(p),
			cmdStep(models.CommandVibrate, 50, 1000, 0),
		},
	}
	e, sub := newEngineWithPattern(t, pat)
	base := time.Now()
	e.clock = func() time.Time { return base }

	_, err := e.Expand("two", "dev-1", 0, Origin{}, 100, 30000)
	require.NoError(t, err)
	require.Len(t, sub.items, 2)

	gap := sub.items[1].ScheduledNotBefore.Sub(sub.items[0].ScheduledNotBefore)
	assert.GreaterOrEqual(t, gap, time.Duration(a+p)*time.Millisecond)
}

func TestExpandEmptyPattern(t *testing.T) {
	e, sub := newEngineWithPattern(t, &models.Pattern{ID: "empty"})

	execID, err := e.Expand("empty", "dev-1", 0, Origin{}, 100, 30000)
	require.NoError(t, err)
	assert.NotEmpty(t, execID)
	assert.Empty(t, sub.items)
	assert.Equal(t, 0, e.LiveExecutions())
}

func TestExpandAbortsOnRefusedSubmission(t *testing.T) {
	pat := &models.Pattern{
		ID: "three",
		Steps: []models.Step{
			cmdStep(models.CommandVibrate, 50, 1000, 0),
			cmdStep(models.CommandVibrate, 50, 1000, 0),
			cmdStep(models.CommandVibrate, 50, 1000, 0),
		},
	}
	e := NewEngine()
	sub := &captureSubmitter{failAfter: 1, failureErr: errors.New("queue full"), settle: e.ItemSettled}
	e.SetSubmitter(sub)
	require.NoError(t, e.Upsert(pat))

	execID, err := e.Expand("three", "dev-1", 0, Origin{}, 100, 30000)
	require.Error(t, err)
	assert.Len(t, sub.items, 1, "expansion stops at the first refusal")
	assert.True(t, e.IsCancelled(execID), "aborted execution is cancelled")

	// The one admitted item settling disposes the execution record.
	e.ItemSettled(execID)
	assert.Equal(t, 0, e.LiveExecutions())
	assert.False(t, e.IsCancelled(execID))
}

func TestCancelLifecycle(t *testing.T) {
	pat := &models.Pattern{
		ID: "two",
		Steps: []models.Step{
			cmdStep(models.CommandVibrate, 50, 1000, 0),
			cmdStep(models.CommandVibrate, 50, 1000, 0),
		},
	}
	e, _ := newEngineWithPattern(t, pat)

	execID, err := e.Expand("two", "dev-1", 0, Origin{}, 100, 30000)
	require.NoError(t, err)
	assert.False(t, e.IsCancelled(execID))
	assert.Equal(t, 1, e.LiveExecutions())

	require.NoError(t, e.Cancel(execID))
	assert.True(t, e.IsCancelled(execID))

	// Cancelling twice, or cancelling an unknown id, is a quiet success.
	require.NoError(t, e.Cancel(execID))
	require.NoError(t, e.Cancel("never-existed"))

	e.ItemSettled(execID)
	assert.Equal(t, 1, e.LiveExecutions())
	e.ItemSettled(execID)
	assert.Equal(t, 0, e.LiveExecutions())
}

func TestCancelAll(t *testing.T) {
	pat := &models.Pattern{
		ID:    "one",
		Steps: []models.Step{cmdStep(models.CommandVibrate, 50, 1000, 0)},
	}
	e, _ := newEngineWithPattern(t, pat)

	id1, err := e.Expand("one", "dev-1", 0, Origin{}, 100, 30000)
	require.NoError(t, err)
	id2, err := e.Expand("one", "dev-2", 0, Origin{}, 100, 30000)
	require.NoError(t, err)

	e.CancelAll()
	assert.True(t, e.IsCancelled(id1))
	assert.True(t, e.IsCancelled(id2))
}

func TestUpsertRejectsInvalidPattern(t *testing.T) {
	e := NewEngine()
	err := e.Upsert(&models.Pattern{
		ID:    "bad",
		Steps: []models.Step{{Type: models.StepCommand}},
	})
	assert.Error(t, err)
}

func TestListSortedAndGet(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Upsert(&models.Pattern{ID: "b"}))
	require.NoError(t, e.Upsert(&models.Pattern{ID: "a"}))

	list := e.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	_, ok := e.Get("a")
	assert.True(t, ok)
	e.Remove("a")
	_, ok = e.Get("a")
	assert.False(t, ok)
}
