// Package config loads the streaming client configuration from YAML with
// environment-variable expansion, applies defaults, and validates.
package config

import "time"

// Config is the root configuration for a streaming client instance.
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Audio     AudioConfig     `yaml:"audio"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Coalesce  CoalesceConfig  `yaml:"coalesce"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// SessionConfig identifies the endpoints and control-plane cadence.
type SessionConfig struct {
	UplinkURL    string        `yaml:"uplink_url"`
	PushURL      string        `yaml:"push_url"`
	TokenEnv     string        `yaml:"token_env"`
	MimeType     string        `yaml:"mime_type"`
	PingInterval time.Duration `yaml:"ping_interval"`
	MetaEvery    int           `yaml:"meta_every"`
}

// AudioConfig tunes the jitter sender.
type AudioConfig struct {
	MaxQueueChunks int           `yaml:"max_queue_chunks"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	TargetLatency  time.Duration `yaml:"target_latency"`
}

// ReconnectConfig tunes the backoff cycle shared by both legs.
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// HeartbeatConfig tunes the downlink staleness watchdog.
type HeartbeatConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}

// CoalesceConfig tunes instruction batching.
type CoalesceConfig struct {
	Window time.Duration `yaml:"window"`
}

// RecorderConfig configures the optional session-event recorder. Disabled
// unless a database host is set.
type RecorderConfig struct {
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// Enabled reports whether the recorder should run.
func (c RecorderConfig) Enabled() bool {
	return c.Database.Host != ""
}

// DBConfig holds PostgreSQL connection parameters.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// TelemetryConfig configures the optional best-effort webhook reporter.
type TelemetryConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Enabled reports whether the telemetry reporter should run.
func (c TelemetryConfig) Enabled() bool {
	return c.WebhookURL != ""
}
