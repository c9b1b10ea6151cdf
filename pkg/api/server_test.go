package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamrig/streamrig/pkg/config"
	"github.com/streamrig/streamrig/pkg/device"
	"github.com/streamrig/streamrig/pkg/events"
	"github.com/streamrig/streamrig/pkg/ingest"
	"github.com/streamrig/streamrig/pkg/mapping"
	"github.com/streamrig/streamrig/pkg/models"
	"github.com/streamrig/streamrig/pkg/pattern"
	"github.com/streamrig/streamrig/pkg/queue"
	"github.com/streamrig/streamrig/pkg/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDispatcher struct {
	engaged bool
	reason  string
	items   []*models.CommandItem
}

func (d *fakeDispatcher) Submit(item *models.CommandItem) error {
	d.items = append(d.items, item)
	return nil
}

func (d *fakeDispatcher) TriggerEmergencyStop(reason string) bool {
	if d.engaged {
		return false
	}
	d.engaged = true
	d.reason = reason
	return true
}

func (d *fakeDispatcher) ClearEmergencyStop() bool {
	if !d.engaged {
		return false
	}
	d.engaged = false
	return true
}

func (d *fakeDispatcher) Stats() queue.PoolStats {
	return queue.PoolStats{QueueDepth: len(d.items), WorkerCount: 4, EmergencyStop: d.engaged, EmergencyStopReason: d.reason}
}

type fakeDevices struct {
	devices []device.Device
	err     error
}

func (f *fakeDevices) ListDevices(context.Context) ([]device.Device, error) {
	return f.devices, f.err
}

type apiFixture struct {
	engine     *gin.Engine
	dispatcher *fakeDispatcher
	recorder   *events.Recorder
	mappings   *services.MappingService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	recorder := events.NewRecorder()
	hub := events.NewHub(5 * time.Second)
	pub := events.NewPublisher(recorder, hub)

	mapEngine := mapping.NewEngine(config.DefaultSafetyConfig(), pub)
	patEngine := pattern.NewEngine()
	dispatcher := &fakeDispatcher{}
	patEngine.SetSubmitter(dispatcher)

	mappingSvc := services.NewMappingService(mapEngine, nil)
	patternSvc := services.NewPatternService(patEngine, nil)
	router := ingest.NewRouter(mapEngine, patEngine, dispatcher)

	srv := NewServer(
		config.DefaultServerConfig(),
		mappingSvc, patternSvc, router, dispatcher,
		&fakeDevices{devices: []device.Device{{ID: "dev-1", Name: "Collar"}}},
		recorder, hub, nil,
	)
	return &apiFixture{
		engine:     srv.Routes(),
		dispatcher: dispatcher,
		recorder:   recorder,
		mappings:   mappingSvc,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func apiMapping(id string) *models.Mapping {
	return &models.Mapping{
		ID:        id,
		Name:      id,
		Enabled:   true,
		EventKind: models.EventGift,
		Conditions: models.Conditions{
			GiftName: "Rose",
		},
		Action: models.Action{
			Type:     models.ActionCommand,
			DeviceID: "dev-1",
			Command:  &models.CommandSpec{Kind: models.CommandVibrate, Intensity: 50, DurationMs: 1000},
			Priority: 5,
		},
	}
}

func TestMappingCRUD(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/mappings", apiMapping("m1"))
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/mappings/m1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Mapping
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "m1", got.ID)

	w = f.do(t, http.MethodGet, "/api/mappings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPatch, "/api/mappings/m1/enabled", gin.H{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	m, err := f.mappings.Get("m1")
	require.NoError(t, err)
	assert.False(t, m.Enabled)

	w = f.do(t, http.MethodDelete, "/api/mappings/m1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/mappings/m1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMappingValidationErrors(t *testing.T) {
	f := newAPIFixture(t)

	bad := apiMapping("m1")
	bad.EventKind = "hug"
	w := f.do(t, http.MethodPost, "/api/mappings", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	unsafe := apiMapping("m2")
	unsafe.EventKind = models.EventChat
	unsafe.Conditions.MessagePattern = "(a+)+$"
	w = f.do(t, http.MethodPost, "/api/mappings", unsafe)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMappingExportImport(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/mappings", apiMapping("m1")).Code)

	w := f.do(t, http.MethodGet, "/api/mappings/export", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var exported struct {
		Mappings []models.Mapping `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exported))
	require.Len(t, exported.Mappings, 1)

	f2 := newAPIFixture(t)
	w = f2.do(t, http.MethodPost, "/api/mappings/import", gin.H{"mappings": exported.Mappings})
	require.Equal(t, http.StatusOK, w.Code)
	var result map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, float64(1), result["accepted"])
}

func TestPatternCRUD(t *testing.T) {
	f := newAPIFixture(t)

	p := &models.Pattern{
		ID:   "p1",
		Name: "wave",
		Steps: []models.Step{
			{Type: models.StepCommand, Command: &models.CommandStep{Kind: models.CommandVibrate, Intensity: 40, DurationMs: 1000}},
		},
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/patterns", p).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/patterns/p1", nil).Code)
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/patterns/p1", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/patterns/p1", nil).Code)
}

func TestIngestEventRoutesActions(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/mappings", apiMapping("m1")).Code)

	w := f.do(t, http.MethodPost, "/api/events", gin.H{
		"type":     "gift",
		"user":     gin.H{"userId": "u1", "userName": "alice"},
		"giftName": "Rose",
		"coins":    10,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["actions"])
	require.Len(t, f.dispatcher.items, 1)
	assert.Equal(t, "dev-1", f.dispatcher.items[0].DeviceID)
}

func TestIngestEventRejectsMalformed(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/events", gin.H{"type": "hug", "user": gin.H{"userId": "u1"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/events", gin.H{"type": "gift"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEmergencyStopEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/emergency-stop", gin.H{"reason": "panic"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.dispatcher.engaged)
	assert.Equal(t, "panic", f.dispatcher.reason)

	// Second trigger reports no transition but stays engaged.
	w = f.do(t, http.MethodPost, "/api/emergency-stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["transition"])

	w = f.do(t, http.MethodDelete, "/api/emergency-stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.dispatcher.engaged)
}

func TestSystemStatsAndOutcomes(t *testing.T) {
	f := newAPIFixture(t)
	f.recorder.RecordOutcome(events.Outcome{ItemID: "i1", State: models.ItemDone})

	w := f.do(t, http.MethodGet, "/api/system/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Contains(t, stats, "dispatcher")
	assert.Contains(t, stats, "counters")

	w = f.do(t, http.MethodGet, "/api/system/outcomes?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/system/outcomes?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDevices(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Devices []device.Device `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Devices, 1)
	assert.Equal(t, "dev-1", resp.Devices[0].ID)
}

func TestHealthWithoutStore(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
