package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are sane.
func (c *Config) Validate() error {
	if c.Session.UplinkURL == "" {
		return errors.New("session.uplink_url is required")
	}
	if !strings.HasPrefix(c.Session.UplinkURL, "ws://") && !strings.HasPrefix(c.Session.UplinkURL, "wss://") {
		return fmt.Errorf("session.uplink_url must be a ws:// or wss:// URL, got %q", c.Session.UplinkURL)
	}
	if c.Session.PushURL == "" {
		return errors.New("session.push_url is required")
	}
	if !strings.HasPrefix(c.Session.PushURL, "http://") && !strings.HasPrefix(c.Session.PushURL, "https://") {
		return fmt.Errorf("session.push_url must be an http:// or https:// URL, got %q", c.Session.PushURL)
	}
	if c.Session.MetaEvery < 1 {
		return errors.New("session.meta_every must be >= 1")
	}

	if c.Audio.MaxQueueChunks < 1 {
		return errors.New("audio.max_queue_chunks must be >= 1")
	}
	if c.Audio.FlushInterval <= 0 {
		return errors.New("audio.flush_interval must be positive")
	}

	if c.Reconnect.MaxAttempts < 1 {
		return errors.New("reconnect.max_attempts must be >= 1")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return errors.New("reconnect.max_delay must be >= reconnect.base_delay")
	}

	if c.Heartbeat.StaleAfter <= c.Heartbeat.CheckInterval {
		return errors.New("heartbeat.stale_after must be greater than heartbeat.check_interval")
	}

	if c.Recorder.Enabled() {
		if err := c.Recorder.Database.validate("recorder.database"); err != nil {
			return err
		}
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if c.Recorder.BufferSize < 1 {
			return errors.New("recorder.buffer_size must be >= 1")
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Port < 1 || db.Port > 65535 {
		return fmt.Errorf("%s.port must be between 1 and 65535, got %d", prefix, db.Port)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	return nil
}
