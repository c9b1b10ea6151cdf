// Package device is the REST adapter to the external device control backend.
// It owns authentication, request shaping, and the classification of
// backend failures into retry policy buckets.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/streamrig/streamrig/pkg/config"
	"github.com/streamrig/streamrig/pkg/models"
	"github.com/streamrig/streamrig/pkg/version"
)

// Device is one controllable device as reported by the backend.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsPaused bool   `json:"isPaused"`
}

// controlRequest is the wire shape of a control call.
type controlRequest struct {
	Type      string `json:"type"`
	Intensity int    `json:"intensity"`
	Duration  int    `json:"duration"`
}

// Client talks to the device backend. Safe for concurrent use by the
// dispatcher workers.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	perSecond float64
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
}

// NewClient creates a device backend client from configuration. The API key
// is read from the environment variable named by the config.
func NewClient(cfg *config.DeviceConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     os.Getenv(cfg.APIKeyEnv),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		perSecond:  cfg.RequestsPerSecond,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// SendCommand issues one control call for the item. The returned error, if
// any, is an *APIError classified for the caller's retry policy.
func (c *Client) SendCommand(ctx context.Context, item *models.CommandItem, intensity, durationMs int) error {
	if err := c.waitDevice(ctx, item.DeviceID); err != nil {
		return classifyTransport(err)
	}

	body, err := json.Marshal(controlRequest{
		Type:      string(item.Kind),
		Intensity: intensity,
		Duration:  durationMs,
	})
	if err != nil {
		return fmt.Errorf("encoding control request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/control/%s", c.baseURL, url.PathEscape(item.DeviceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building control request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", version.Full())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		slog.Debug("Device command accepted",
			"device_id", item.DeviceID, "kind", item.Kind,
			"intensity", intensity, "duration_ms", durationMs)
		return nil
	}
	return classifyResponse(resp)
}

// ListDevices fetches the device inventory from the backend.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/devices", nil)
	if err != nil {
		return nil, fmt.Errorf("building devices request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", version.Full())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyResponse(resp)
	}

	var devices []Device
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		return nil, fmt.Errorf("decoding device list: %w", err)
	}
	return devices, nil
}

// waitDevice applies the optional per-device client-side smoothing limiter.
func (c *Client) waitDevice(ctx context.Context, deviceID string) error {
	if c.perSecond <= 0 {
		return nil
	}
	c.mu.Lock()
	lim, ok := c.limiters[deviceID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.perSecond), 1)
		c.limiters[deviceID] = lim
	}
	c.mu.Unlock()
	return lim.Wait(ctx)
}

// classifyResponse maps a non-2xx response to an *APIError.
func classifyResponse(resp *http.Response) *APIError {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	apiErr := &APIError{Status: resp.StatusCode, Message: string(snippet)}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		apiErr.Class = ClassAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Class = ClassRateLimited
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 500:
		apiErr.Class = ClassServer
	default:
		// Unexpected 4xx: treat as server-side, retryable.
		apiErr.Class = ClassServer
	}
	return apiErr
}

// parseRetryAfter handles the delay-seconds form of the header. The HTTP-date
// form is rare from API backends and falls back to zero.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
