package config

// ServerConfig contains admin HTTP server settings.
type ServerConfig struct {
	// ListenAddr is the admin HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// AllowedWSOrigins restricts which origins may open the live outcome
	// WebSocket. Empty allows same-origin only.
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{ListenAddr: ":8090"}
}

// NotifyConfig contains Slack alerting settings for operator-facing alerts
// (device auth failures, emergency stop).
type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env"`
	Channel  string `yaml:"channel"`
}

// DefaultNotifyConfig returns the built-in notify defaults (disabled).
func DefaultNotifyConfig() *NotifyConfig {
	return &NotifyConfig{
		TokenEnv: "SLACK_TOKEN",
	}
}
