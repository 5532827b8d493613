package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Calicanx/aitutor-stream/internal/audio"
	"github.com/Calicanx/aitutor-stream/internal/auth"
	"github.com/Calicanx/aitutor-stream/internal/coalesce"
	"github.com/Calicanx/aitutor-stream/internal/connection"
	"github.com/Calicanx/aitutor-stream/internal/heartbeat"
)

// Config holds the session wiring.
type Config struct {
	UplinkURL string // WebSocket endpoint for audio
	PushURL   string // SSE endpoint for instructions

	MimeType     string        // audio MIME type hint (default "audio/webm;codecs=opus")
	PingInterval time.Duration // uplink ping cadence (default 25s)
	MetaEvery    int           // send audio_meta with every Nth emitted chunk (default 50)

	Reconnect      connection.Config
	Audio          audio.Config
	Heartbeat      heartbeat.Config
	CoalesceWindow time.Duration
}

func (c *Config) applyDefaults() {
	if c.MimeType == "" {
		c.MimeType = "audio/webm;codecs=opus"
	}
	if c.PingInterval == 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.MetaEvery == 0 {
		c.MetaEvery = 50
	}
}

// Session is one logical tutoring session: an audio uplink and an
// instruction downlink sharing a lifecycle.
type Session struct {
	cfg    Config
	logger *slog.Logger
	id     string

	uplink    *connection.Controller
	downlink  *connection.Controller
	sender    *audio.JitterSender
	watchdog  *heartbeat.Watchdog
	coalescer *coalesce.Coalescer

	mu         sync.Mutex
	combined   connection.State
	nextSubID  int
	statusSubs []statusSub
	pingStop   chan struct{}
	sinks      []EventSink
	closed     bool

	chunkSeq atomic.Int64 // emitted chunk counter, drives audio_meta cadence
}

type statusSub struct {
	id int
	fn func(connection.State)
}

// New wires a session. Sinks receive lifecycle events (recorder, telemetry).
func New(cfg Config, tokens auth.TokenSource, logger *slog.Logger, sinks ...EventSink) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	s := &Session{
		cfg:      cfg,
		logger:   logger,
		id:       uuid.New().String(),
		combined: connection.StateDisconnected,
		sinks:    sinks,
	}

	s.uplink = connection.NewController(
		cfg.Reconnect,
		connection.NewWebSocketDialer(connection.WSConfig{URL: cfg.UplinkURL}, logger.With("link", "uplink")),
		tokens,
		logger.With("link", "uplink"),
	)
	s.downlink = connection.NewController(
		cfg.Reconnect,
		connection.NewSSEDialer(connection.SSEConfig{URL: cfg.PushURL}, logger.With("link", "downlink")).Dialer(),
		tokens,
		logger.With("link", "downlink"),
	)

	s.sender = audio.NewJitterSender(cfg.Audio, s.emitChunk, logger)
	s.coalescer = coalesce.New(cfg.CoalesceWindow, logger)
	s.watchdog = heartbeat.NewWatchdog(cfg.Heartbeat, s.onStale, logger)

	s.uplink.OnFrame(s.handleUplinkFrame)
	s.downlink.OnFrame(s.handleDownlinkFrame)

	s.uplink.OnStatusChange(func(state connection.State) {
		if state == connection.StateConnected {
			// Never replay pre-connection audio into a fresh transport.
			s.sender.Clear()
			s.startPing()
		} else {
			s.stopPing()
		}
		s.recombine()
	})
	s.downlink.OnStatusChange(func(state connection.State) {
		if state == connection.StateConnected {
			s.watchdog.Start()
		} else {
			s.watchdog.Stop()
		}
		s.recombine()
	})

	s.uplink.SetRetryHook(func(attempt int, delay time.Duration) {
		s.record(Event{Kind: EventReconnectPending, Link: "uplink", Attempt: attempt, Delay: delay})
	})
	s.uplink.SetGiveUpHook(func() {
		s.record(Event{Kind: EventRetriesExhausted, Link: "uplink"})
	})
	s.downlink.SetRetryHook(func(attempt int, delay time.Duration) {
		s.record(Event{Kind: EventReconnectPending, Link: "downlink", Attempt: attempt, Delay: delay})
	})
	s.downlink.SetGiveUpHook(func() {
		s.record(Event{Kind: EventRetriesExhausted, Link: "downlink"})
	})

	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Connect opens both legs. It is idempotent while connecting or connected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session is cleaned up")
	}
	s.mu.Unlock()

	if err := s.uplink.Connect(ctx); err != nil {
		return fmt.Errorf("connect uplink: %w", err)
	}
	if err := s.downlink.Connect(ctx); err != nil {
		return fmt.Errorf("connect downlink: %w", err)
	}
	s.record(Event{Kind: EventConnected})
	return nil
}

// Disconnect intentionally closes both legs, cancels every timer the
// session owns and discards buffered audio. The session stays reusable.
func (s *Session) Disconnect() {
	s.stopPing()
	s.watchdog.Stop()
	s.sender.Clear()
	s.uplink.Disconnect()
	s.downlink.Disconnect()
	s.record(Event{Kind: EventDisconnected})
}

// Cleanup disconnects and releases observers and pending batches. The
// session must not be used afterward.
func (s *Session) Cleanup() {
	s.Disconnect()
	s.coalescer.Stop()

	s.mu.Lock()
	s.closed = true
	s.statusSubs = nil
	s.mu.Unlock()
}

// SendAudioBytes enqueues one captured audio chunk. Never blocks; while
// disconnected the jitter queue still bounds memory and is cleared before
// the next connection.
func (s *Session) SendAudioBytes(chunk []byte) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || len(chunk) == 0 {
		return
	}
	s.sender.Push(chunk)
}

// Status returns the combined session status.
func (s *Session) Status() connection.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.combined
}

// OnStatusChange registers an observer for the combined status. The
// returned func unregisters.
func (s *Session) OnStatusChange(fn func(connection.State)) func() {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.statusSubs = append(s.statusSubs, statusSub{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.statusSubs {
			if sub.id == id {
				s.statusSubs = append(s.statusSubs[:i], s.statusSubs[i+1:]...)
				return
			}
		}
	}
}

// OnInstruction registers an observer for coalesced instruction payloads.
func (s *Session) OnInstruction(fn func(payload string)) func() {
	return s.coalescer.Subscribe(fn)
}

// AudioStats exposes jitter sender counters for diagnostics.
func (s *Session) AudioStats() audio.Stats {
	return s.sender.Stats()
}

// emitChunk is the jitter sender's emit callback: one binary frame per
// tick, plus the audio_meta hint with every Nth chunk.
func (s *Session) emitChunk(chunk []byte) {
	s.uplink.Send(connection.Frame{Binary: true, Data: chunk})

	if n := s.chunkSeq.Add(1); n%int64(s.cfg.MetaEvery) == 0 {
		s.uplink.Send(connection.Frame{
			Data: audioMetaMessage(s.cfg.MimeType, len(chunk), time.Now()),
		})
	}
}

// handleUplinkFrame parses control-plane responses. Parse failures on
// control frames are swallowed: they must never break the dispatch path.
func (s *Session) handleUplinkFrame(f connection.Frame) {
	if f.Binary {
		return
	}
	var msg controlMessage
	if err := json.Unmarshal(f.Data, &msg); err != nil {
		s.logger.Debug("malformed control frame dropped", "error", err)
		return
	}
	switch msg.Type {
	case "pong":
		// Uplink liveness is the socket itself; nothing to track.
	default:
		s.logger.Debug("unhandled control frame", "type", msg.Type)
	}
}

// handleDownlinkFrame routes push events: instructions into the coalescer,
// keepalives into the watchdog. Anything else is dropped quietly.
func (s *Session) handleDownlinkFrame(f connection.Frame) {
	switch f.Event {
	case "instruction":
		s.coalescer.Add(string(f.Data))
	case "keepalive":
		s.watchdog.Beat()
	default:
		s.logger.Debug("unhandled push event", "event", f.Event)
	}
}

// onStale runs when the watchdog declares the downlink silently dead.
func (s *Session) onStale() {
	s.record(Event{Kind: EventStaleConnection, Link: "downlink"})
	s.downlink.ForceReconnect()
}

// startPing arms the uplink ping ticker, replacing any previous one.
func (s *Session) startPing() {
	s.mu.Lock()
	if s.pingStop != nil {
		close(s.pingStop)
	}
	stop := make(chan struct{})
	s.pingStop = stop
	s.mu.Unlock()

	go s.pingLoop(stop)
}

func (s *Session) stopPing() {
	s.mu.Lock()
	if s.pingStop != nil {
		close(s.pingStop)
		s.pingStop = nil
	}
	s.mu.Unlock()
}

func (s *Session) pingLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.uplink.Send(connection.Frame{Data: pingMessage(time.Now())})
		}
	}
}

// recombine recomputes the combined status from both legs and notifies
// observers when it actually changes.
func (s *Session) recombine() {
	up := s.uplink.State()
	down := s.downlink.State()
	combined := combine(up, down)

	s.mu.Lock()
	if s.combined == combined {
		s.mu.Unlock()
		return
	}
	s.combined = combined
	subs := make([]statusSub, len(s.statusSubs))
	copy(subs, s.statusSubs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(combined)
	}
}

// combine folds two leg states into the single exposed status. Error wins,
// then connecting; connected requires both legs.
func combine(up, down connection.State) connection.State {
	switch {
	case up == connection.StateError || down == connection.StateError:
		return connection.StateError
	case up == connection.StateConnecting || down == connection.StateConnecting:
		return connection.StateConnecting
	case up == connection.StateConnected && down == connection.StateConnected:
		return connection.StateConnected
	default:
		return connection.StateDisconnected
	}
}

// record fans an event out to sinks, stamping session ID and time.
func (s *Session) record(e Event) {
	e.SessionID = s.id
	if e.At.IsZero() {
		e.At = time.Now()
	}
	for _, sink := range s.sinks {
		sink.Record(e)
	}
}
