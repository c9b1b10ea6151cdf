// Package notify sends operator alerts to Slack for conditions that need a
// human: credential failures against the device backend and emergency stop
// transitions.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/streamrig/streamrig/pkg/config"
)

const postTimeout = 10 * time.Second

// Notifier posts operator alerts to a Slack channel. A nil *Notifier is
// valid and drops all notifications.
type Notifier struct {
	api     *goslack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Notifier from configuration. Returns nil when alerting is
// disabled or the token environment variable is empty.
func New(cfg *config.NotifyConfig) *Notifier {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		slog.Warn("Slack alerting enabled but token env is empty", "token_env", cfg.TokenEnv)
		return nil
	}
	return &Notifier{
		api:     goslack.New(token),
		channel: cfg.Channel,
		logger:  slog.Default().With("component", "notify"),
	}
}

// NewWithAPIURL creates a Notifier that targets a custom API URL. Useful
// for testing with a mock server.
func NewWithAPIURL(token, channel, apiURL string) *Notifier {
	return &Notifier{
		api:     goslack.New(token, goslack.OptionAPIURL(apiURL)),
		channel: channel,
		logger:  slog.Default().With("component", "notify"),
	}
}

// NotifyAuthFailure alerts that the device backend rejected our
// credentials. Failures to deliver are logged, never propagated: alerting
// must not affect dispatch.
func (n *Notifier) NotifyAuthFailure(ctx context.Context, deviceID string, cause error) {
	if n == nil {
		return
	}
	n.post(ctx, fmt.Sprintf(":rotating_light: Device backend rejected credentials (device `%s`): %v", deviceID, cause))
}

// NotifyEmergencyStop alerts an emergency stop transition.
func (n *Notifier) NotifyEmergencyStop(ctx context.Context, engaged bool, reason string) {
	if n == nil {
		return
	}
	if engaged {
		n.post(ctx, fmt.Sprintf(":octagonal_sign: Emergency stop ENGAGED: %s", reason))
	} else {
		n.post(ctx, ":large_green_circle: Emergency stop cleared")
	}
}

func (n *Notifier) post(ctx context.Context, text string) {
	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	_, _, err := n.api.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Warn("Slack notification failed", "error", err)
	}
}
