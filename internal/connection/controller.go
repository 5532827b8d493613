package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Calicanx/aitutor-stream/internal/auth"
)

// Controller owns one logical connection: it dials, tracks state, fans out
// status and frame notifications, and drives reconnection with bounded
// exponential backoff.
type Controller struct {
	cfg    Config
	dial   Dialer
	tokens auth.TokenSource
	logger *slog.Logger

	mu             sync.Mutex
	state          State
	transport      Transport
	gen            uint64 // bumped per dial; stales out late close callbacks
	intentional    bool
	attempts       int
	reconnectTimer *time.Timer

	nextSubID  int
	statusSubs []statusSub
	frameSubs  []frameSub

	// Optional hooks for reconnect diagnostics.
	retryHook  func(attempt int, delay time.Duration)
	giveUpHook func()

	connectGroup singleflight.Group
}

type statusSub struct {
	id int
	fn func(State)
}

type frameSub struct {
	id int
	fn func(Frame)
}

// NewController creates a controller. The controller is idle until Connect.
func NewController(cfg Config, dial Dialer, tokens auth.TokenSource, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Controller{
		cfg:    cfg,
		dial:   dial,
		tokens: tokens,
		logger: logger,
		state:  StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the connection. It fails fast with ErrMissingToken
// when no credential is available, before any network attempt. Concurrent
// calls while an attempt is in flight share that attempt; calling while
// already connected is a no-op.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if c.tokens.Token() == "" {
		c.setState(StateError)
		return ErrMissingToken
	}

	_, err, _ := c.connectGroup.Do("connect", func() (any, error) {
		return nil, c.dialOnce(ctx)
	})
	return err
}

// dialOnce performs a single dial attempt and installs the new transport.
func (c *Controller) dialOnce(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.cancelReconnectLocked()
	c.intentional = false
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.setState(StateConnecting)

	transport, err := c.dial(ctx, c.tokens.Token(), Callbacks{
		OnFrame: c.notifyFrame,
		OnClose: func(err error, normal bool) { c.handleClose(gen, err, normal) },
	})
	if err != nil {
		c.mu.Lock()
		c.transport = nil
		c.mu.Unlock()
		c.setState(StateError)
		return err
	}

	c.mu.Lock()
	if c.intentional {
		// Disconnect raced the dial; drop the fresh transport.
		c.mu.Unlock()
		transport.Close(true)
		c.setState(StateDisconnected)
		return nil
	}
	c.transport = transport
	c.attempts = 0
	c.cancelReconnectLocked()
	c.mu.Unlock()

	c.setState(StateConnected)
	return nil
}

// Disconnect intentionally closes the connection. No reconnect is scheduled
// afterward, even if the transport's close event arrives late. The
// controller stays reusable: a later Connect starts fresh.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.attempts = 0
	c.cancelReconnectLocked()
	transport := c.transport
	c.transport = nil
	c.gen++ // stale out any in-flight close callback
	c.mu.Unlock()

	if transport != nil {
		transport.Close(true)
	}
	c.setState(StateDisconnected)
}

// Send writes a frame if connected. Delivery is best-effort: while not
// connected the frame is silently dropped, and write failures are logged,
// not returned. The close path notices broken transports.
func (c *Controller) Send(f Frame) {
	c.mu.Lock()
	transport := c.transport
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || transport == nil {
		return
	}
	if err := transport.Send(f); err != nil {
		c.logger.Debug("frame dropped", "error", err)
	}
}

// ForceReconnect tears the transport down as if an unintentional close had
// occurred, entering the backoff cycle. Used by the heartbeat watchdog when
// the connection has gone silently dead.
func (c *Controller) ForceReconnect() {
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		return
	}
	transport := c.transport
	c.transport = nil
	c.gen++
	c.mu.Unlock()

	if transport != nil {
		transport.Close(false)
	}
	c.logger.Warn("forcing reconnect")
	c.setState(StateDisconnected)
	c.scheduleReconnect()
}

// OnStatusChange registers a status observer. Observers are notified
// synchronously on every state transition, in registration order. The
// returned func unregisters; calling it twice is harmless.
func (c *Controller) OnStatusChange(fn func(State)) func() {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.statusSubs = append(c.statusSubs, statusSub{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.statusSubs {
			if s.id == id {
				c.statusSubs = append(c.statusSubs[:i], c.statusSubs[i+1:]...)
				return
			}
		}
	}
}

// OnFrame registers an observer for inbound frames.
func (c *Controller) OnFrame(fn func(Frame)) func() {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.frameSubs = append(c.frameSubs, frameSub{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.frameSubs {
			if s.id == id {
				c.frameSubs = append(c.frameSubs[:i], c.frameSubs[i+1:]...)
				return
			}
		}
	}
}

// SetRetryHook installs a callback invoked when a reconnect is scheduled.
func (c *Controller) SetRetryHook(fn func(attempt int, delay time.Duration)) {
	c.mu.Lock()
	c.retryHook = fn
	c.mu.Unlock()
}

// SetGiveUpHook installs a callback invoked when the attempt ceiling is
// reached and automatic recovery stops.
func (c *Controller) SetGiveUpHook(fn func()) {
	c.mu.Lock()
	c.giveUpHook = fn
	c.mu.Unlock()
}

// handleClose reacts to a transport-reported close. gen guards against a
// stale transport's close racing a newer connect attempt.
func (c *Controller) handleClose(gen uint64, err error, normal bool) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.transport = nil
	intentional := c.intentional
	c.mu.Unlock()

	if intentional || normal {
		c.setState(StateDisconnected)
		return
	}

	c.logger.Warn("connection lost", "error", err)
	c.setState(StateDisconnected)
	c.scheduleReconnect()
}

// scheduleReconnect arms the single reconnect timer, cancelling any previous
// one. Once attempts passes the ceiling, recovery stops silently and the
// controller parks in the error state until the embedder calls Connect.
func (c *Controller) scheduleReconnect() {
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		return
	}
	c.attempts++
	if c.attempts > c.cfg.MaxAttempts {
		giveUp := c.giveUpHook
		c.mu.Unlock()
		c.logger.Warn("reconnect attempts exhausted", "attempts", c.cfg.MaxAttempts)
		c.setState(StateError)
		if giveUp != nil {
			giveUp()
		}
		return
	}

	attempt := c.attempts
	delay := backoffDelay(c.cfg, attempt)
	c.cancelReconnectLocked()
	c.reconnectTimer = time.AfterFunc(delay, c.redial)
	retry := c.retryHook
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
	if retry != nil {
		retry(attempt, delay)
	}
}

// redial runs when the backoff timer fires. It shares the singleflight
// group with Connect so an embedder call racing the timer still yields a
// single dial and a single live transport.
func (c *Controller) redial() {
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.mu.Unlock()

	_, err, _ := c.connectGroup.Do("connect", func() (any, error) {
		return nil, c.dialOnce(context.Background())
	})
	if err != nil {
		c.scheduleReconnect()
	}
}

// cancelReconnectLocked stops any pending reconnect timer. Caller holds mu.
func (c *Controller) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// HasPendingReconnect reports whether a reconnect timer is armed.
func (c *Controller) HasPendingReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectTimer != nil
}

// Attempts returns the current reconnect attempt counter.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// setState transitions the state and notifies observers. Re-assigning the
// same state is a no-op: no duplicate notifications.
func (c *Controller) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	subs := make([]statusSub, len(c.statusSubs))
	copy(subs, c.statusSubs)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fn(s)
	}
}

// notifyFrame fans a frame out to observers. The set is snapshotted so
// observers added during delivery do not see the in-flight frame.
func (c *Controller) notifyFrame(f Frame) {
	c.mu.Lock()
	subs := make([]frameSub, len(c.frameSubs))
	copy(subs, c.frameSubs)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fn(f)
	}
}
