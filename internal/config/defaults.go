package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultTokenEnv       = "AITUTOR_TOKEN"
	DefaultMimeType       = "audio/webm;codecs=opus"
	DefaultPingInterval   = 25 * time.Second
	DefaultMetaEvery      = 50
	DefaultMaxQueueChunks = 400
	DefaultFlushInterval  = 20 * time.Millisecond
	DefaultTargetLatency  = 80 * time.Millisecond
	DefaultBaseDelay      = 1 * time.Second
	DefaultMaxDelay       = 30 * time.Second
	DefaultMaxAttempts    = 5
	DefaultCheckInterval  = 10 * time.Second
	DefaultStaleAfter     = 35 * time.Second
	DefaultCoalesceWindow = 30 * time.Millisecond
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultDBMaxConns     = 4
	DefaultDBMinConns     = 1
	DefaultBatchSize      = 100
	DefaultRecorderFlush  = 5 * time.Second
	DefaultBufferSize     = 1000
	DefaultWebhookTimeout = 3 * time.Second
)

func (c *Config) applyDefaults() {
	if c.Session.TokenEnv == "" {
		c.Session.TokenEnv = DefaultTokenEnv
	}
	if c.Session.MimeType == "" {
		c.Session.MimeType = DefaultMimeType
	}
	if c.Session.PingInterval == 0 {
		c.Session.PingInterval = DefaultPingInterval
	}
	if c.Session.MetaEvery == 0 {
		c.Session.MetaEvery = DefaultMetaEvery
	}

	if c.Audio.MaxQueueChunks == 0 {
		c.Audio.MaxQueueChunks = DefaultMaxQueueChunks
	}
	if c.Audio.FlushInterval == 0 {
		c.Audio.FlushInterval = DefaultFlushInterval
	}
	if c.Audio.TargetLatency == 0 {
		c.Audio.TargetLatency = DefaultTargetLatency
	}

	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultBaseDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}

	if c.Heartbeat.CheckInterval == 0 {
		c.Heartbeat.CheckInterval = DefaultCheckInterval
	}
	if c.Heartbeat.StaleAfter == 0 {
		c.Heartbeat.StaleAfter = DefaultStaleAfter
	}

	if c.Coalesce.Window == 0 {
		c.Coalesce.Window = DefaultCoalesceWindow
	}

	if c.Recorder.Enabled() {
		applyDBDefaults(&c.Recorder.Database)
		if c.Recorder.BatchSize == 0 {
			c.Recorder.BatchSize = DefaultBatchSize
		}
		if c.Recorder.FlushInterval == 0 {
			c.Recorder.FlushInterval = DefaultRecorderFlush
		}
		if c.Recorder.BufferSize == 0 {
			c.Recorder.BufferSize = DefaultBufferSize
		}
	}

	if c.Telemetry.Enabled() && c.Telemetry.Timeout == 0 {
		c.Telemetry.Timeout = DefaultWebhookTimeout
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultDBMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultDBMinConns
	}
}
