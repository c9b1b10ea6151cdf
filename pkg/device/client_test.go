package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/streamrig/streamrig/pkg/config"
	"github.com/streamrig/streamrig/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("TEST_DEVICE_KEY", "secret-token")
	return NewClient(&config.DeviceConfig{
		BaseURL:        srv.URL,
		APIKeyEnv:      "TEST_DEVICE_KEY",
		RequestTimeout: 5 * time.Second,
	})
}

func testItem() *models.CommandItem {
	return &models.CommandItem{
		ID:       "i1",
		DeviceID: "dev-1",
		Kind:     models.CommandVibrate,
	}
}

func TestSendCommandRequestShape(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody controlRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})

	err := c.SendCommand(context.Background(), testItem(), 42, 1500)
	require.NoError(t, err)

	assert.Equal(t, "/control/dev-1", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, controlRequest{Type: "vibrate", Intensity: 42, Duration: 1500}, gotBody)
}

func TestSendCommandClassifiesErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		wantClass  ErrorClass
		wantRetry  bool
	}{
		{"unauthorized", http.StatusUnauthorized, "", ClassAuth, false},
		{"forbidden", http.StatusForbidden, "", ClassAuth, false},
		{"rate limited", http.StatusTooManyRequests, "7", ClassRateLimited, true},
		{"server error", http.StatusInternalServerError, "", ClassServer, true},
		{"bad gateway", http.StatusBadGateway, "", ClassServer, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
			})

			err := c.SendCommand(context.Background(), testItem(), 10, 1000)
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantClass, apiErr.Class)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantRetry, IsRetryable(err))
			assert.Equal(t, tt.wantClass == ClassAuth, IsAuth(err))

			if tt.retryAfter != "" {
				assert.Equal(t, 7*time.Second, RetryAfter(err))
			}
		})
	}
}

func TestSendCommandNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	t.Setenv("TEST_DEVICE_KEY", "k")
	c := NewClient(&config.DeviceConfig{
		BaseURL:        srv.URL,
		APIKeyEnv:      "TEST_DEVICE_KEY",
		RequestTimeout: time.Second,
	})

	err := c.SendCommand(context.Background(), testItem(), 10, 1000)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ClassNetwork, apiErr.Class)
	assert.True(t, IsRetryable(err))
}

func TestListDevices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/devices", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]Device{
			{ID: "dev-1", Name: "Collar", IsPaused: false},
			{ID: "dev-2", Name: "Wand", IsPaused: true},
		})
	})

	devices, err := c.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "dev-1", devices[0].ID)
	assert.True(t, devices[1].IsPaused)
}

func TestListDevicesAuthFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.ListDevices(context.Background())
	assert.True(t, IsAuth(err))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("Wed, 21 Oct 2026 07:28:00 GMT"))
}
