// Package heartbeat detects push connections that die without a close
// event, e.g. behind a proxy or NAT that times the stream out silently.
// The peer is expected to send keepalives; when none arrive for longer
// than the staleness threshold, the watchdog fires its callback so the
// owning controller can tear down and reconnect.
package heartbeat

import (
	"log/slog"
	"sync"
	"time"
)

// Config holds watchdog tuning.
type Config struct {
	CheckInterval time.Duration // how often staleness is evaluated (default 10s)
	StaleAfter    time.Duration // silence threshold (default 35s)
}

// DefaultConfig returns the stock tuning. StaleAfter is deliberately larger
// than the expected keepalive period to avoid false positives.
func DefaultConfig() Config {
	return Config{
		CheckInterval: 10 * time.Second,
		StaleAfter:    35 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	if c.CheckInterval == 0 {
		c.CheckInterval = 10 * time.Second
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = 35 * time.Second
	}
}

// Watchdog tracks the last keepalive timestamp and fires onStale once when
// the connection goes silent. It stops itself after firing; the owner
// restarts it when the connection reopens.
type Watchdog struct {
	cfg     Config
	onStale func()
	logger  *slog.Logger

	mu       sync.Mutex
	lastBeat time.Time
	running  bool
	stop     chan struct{}
}

// NewWatchdog creates a watchdog. onStale runs on the watchdog goroutine.
func NewWatchdog(cfg Config, onStale func(), logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Watchdog{
		cfg:     cfg,
		onStale: onStale,
		logger:  logger,
	}
}

// Start begins staleness checks, resetting the keepalive clock. Calling
// Start while running restarts the clock only.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastBeat = time.Now()
	if w.running {
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	go w.loop(w.stop)
}

// Stop halts checks. The watchdog never fires after Stop returns: any
// check already racing Stop re-validates under the lock.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.stop)
	w.running = false
	w.stop = nil
}

// Beat records a keepalive observation.
func (w *Watchdog) Beat() {
	w.mu.Lock()
	w.lastBeat = time.Now()
	w.mu.Unlock()
}

// Running reports whether checks are active.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watchdog) loop(stop chan struct{}) {
	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.stop != stop {
				// Stopped (and possibly restarted) since this tick fired.
				w.mu.Unlock()
				return
			}
			silence := time.Since(w.lastBeat)
			if silence <= w.cfg.StaleAfter {
				w.mu.Unlock()
				continue
			}
			// Stale: fire once and stop checking until restarted.
			w.running = false
			w.stop = nil
			w.mu.Unlock()

			w.logger.Warn("no keepalive received, connection stale",
				"silence", silence,
				"threshold", w.cfg.StaleAfter,
			)
			if w.onStale != nil {
				w.onStale()
			}
			return
		}
	}
}
