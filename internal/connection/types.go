package connection

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrMissingToken = errors.New("no credential token available")
	ErrPushOnly     = errors.New("transport is receive-only")
	ErrClosed       = errors.New("transport closed")
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

var stateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateError:        "error",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Frame is one unit on the wire in either direction.
//
// Uplink: Binary marks a raw audio chunk; otherwise Data is a JSON control
// message. Downlink: Event names the server-push category ("instruction",
// "keepalive") and ID carries the resume cursor when the server sets one.
type Frame struct {
	Binary bool
	Event  string
	ID     string
	Data   []byte
}

// Callbacks are installed on a transport when it is dialed. OnClose reports
// the transport's own failure or the peer closing; it is not invoked for a
// locally initiated Close.
type Callbacks struct {
	OnFrame func(Frame)
	OnClose func(err error, normal bool)
}

// Transport is a live connection. Exactly one live Transport exists per
// controller; it is replaced wholesale on reconnect, never reused.
type Transport interface {
	// Send writes one frame. Callers serialize through the controller.
	Send(f Frame) error

	// Close shuts the transport down. normal indicates an intentional
	// closure and is conveyed to the peer where the protocol supports it.
	Close(normal bool) error
}

// Dialer establishes a connected Transport. The returned transport must
// already be delivering frames to cb.
type Dialer func(ctx context.Context, token string, cb Callbacks) (Transport, error)

// Config holds reconnect tuning for a controller.
type Config struct {
	BaseDelay   time.Duration // backoff base (default 1s)
	MaxDelay    time.Duration // backoff cap (default 30s)
	MaxAttempts int           // reconnect ceiling (default 5)
}

// DefaultConfig returns the stock reconnect policy.
func DefaultConfig() Config {
	return Config{
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

func (c *Config) applyDefaults() {
	if c.BaseDelay == 0 {
		c.BaseDelay = 1 * time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
}

// backoffDelay computes the delay before reconnect attempt n (1-based):
// min(base * 2^n, max).
func backoffDelay(cfg Config, attempt int) time.Duration {
	d := cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	return d
}
