package audio

import (
	"log/slog"
	"sync"
	"time"
)

// Config holds jitter sender tuning.
type Config struct {
	MaxQueueChunks int           // ring capacity (default 400)
	FlushInterval  time.Duration // emission cadence (default 20ms)
	TargetLatency  time.Duration // buffered duration that starts the cycle (default 80ms)
}

// DefaultConfig returns the stock tuning: 20ms ticks, 80ms start target,
// 400-chunk ring (8s worst-case buffered latency).
func DefaultConfig() Config {
	return Config{
		MaxQueueChunks: 400,
		FlushInterval:  20 * time.Millisecond,
		TargetLatency:  80 * time.Millisecond,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxQueueChunks == 0 {
		c.MaxQueueChunks = 400
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 20 * time.Millisecond
	}
	if c.TargetLatency == 0 {
		c.TargetLatency = 80 * time.Millisecond
	}
}

// EmitFunc receives one chunk per tick while the emission cycle runs.
type EmitFunc func(chunk []byte)

// Stats is a point-in-time snapshot of sender counters.
type Stats struct {
	Queued  int
	Pushed  int64
	Emitted int64
	Dropped int64
}

// JitterSender decouples chunk arrival from network emission. Push is
// synchronous and never blocks; emission runs on its own goroutine at a
// fixed cadence and halts itself when the ring drains.
type JitterSender struct {
	cfg    Config
	emit   EmitFunc
	logger *slog.Logger

	mu      sync.Mutex
	ring    *chunkRing
	running bool
	stop    chan struct{}
	emitted int64
}

// NewJitterSender creates a sender that forwards chunks to emit.
func NewJitterSender(cfg Config, emit EmitFunc, logger *slog.Logger) *JitterSender {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &JitterSender{
		cfg:    cfg,
		emit:   emit,
		logger: logger,
		ring:   newChunkRing(cfg.MaxQueueChunks),
	}
}

// Push enqueues a chunk, evicting the oldest first when the ring is full.
// If the sender is idle and the estimated buffered duration has reached the
// target latency, the emission cycle starts.
func (s *JitterSender) Push(chunk []byte) {
	s.mu.Lock()
	if s.ring.push(chunk) {
		s.logger.Debug("audio queue full, dropped oldest chunk")
	}

	if !s.running && s.bufferedLocked() >= s.cfg.TargetLatency {
		s.running = true
		s.stop = make(chan struct{})
		go s.emitLoop(s.stop)
	}
	s.mu.Unlock()
}

// Clear cancels the emission cycle and discards every queued chunk. Used on
// disconnect and reconnect so stale audio never replays into a new session.
func (s *JitterSender) Clear() {
	s.mu.Lock()
	s.ring.clear()
	if s.running {
		close(s.stop)
		s.running = false
		s.stop = nil
	}
	s.mu.Unlock()
}

// Len returns the number of queued chunks.
func (s *JitterSender) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.len()
}

// Running reports whether the emission cycle is active.
func (s *JitterSender) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats returns current counters.
func (s *JitterSender) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Queued:  s.ring.len(),
		Pushed:  s.ring.totalPushed,
		Emitted: s.emitted,
		Dropped: s.ring.totalDropped,
	}
}

// bufferedLocked estimates queued duration as queue length times the tick
// interval. Caller holds mu.
func (s *JitterSender) bufferedLocked() time.Duration {
	return time.Duration(s.ring.len()) * s.cfg.FlushInterval
}

// emitLoop dequeues and emits exactly one chunk per tick, strictly FIFO,
// and halts when the ring is empty. stop identifies this cycle so a Clear
// followed by a fresh start cannot leave two loops running.
func (s *JitterSender) emitLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.stop != stop {
				// Superseded by Clear + restart.
				s.mu.Unlock()
				return
			}
			chunk, ok := s.ring.pop()
			if !ok {
				s.running = false
				s.stop = nil
				s.mu.Unlock()
				return
			}
			s.emitted++
			s.mu.Unlock()

			s.emit(chunk)
		}
	}
}
