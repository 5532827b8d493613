// streamprobe opens a live tutoring session, streams synthetic audio chunks
// at an uneven cadence, and prints coalesced instruction batches.
// Usage: go run ./cmd/streamprobe --config configs/session.example.yaml
//
// Required environment variable (name configurable via session.token_env):
//
//	AITUTOR_TOKEN - bearer token for both transports
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Calicanx/aitutor-stream/internal/audio"
	"github.com/Calicanx/aitutor-stream/internal/auth"
	"github.com/Calicanx/aitutor-stream/internal/config"
	"github.com/Calicanx/aitutor-stream/internal/connection"
	"github.com/Calicanx/aitutor-stream/internal/database"
	"github.com/Calicanx/aitutor-stream/internal/heartbeat"
	"github.com/Calicanx/aitutor-stream/internal/recorder"
	"github.com/Calicanx/aitutor-stream/internal/session"
	"github.com/Calicanx/aitutor-stream/internal/telemetry"
	"github.com/Calicanx/aitutor-stream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/session.example.yaml", "path to config file")
	chunkSize := flag.Int("chunk-bytes", 1920, "size of each synthetic audio chunk")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	tokens := auth.Env(cfg.Session.TokenEnv)

	// Optional sinks
	var sinks []session.EventSink
	var rec *recorder.Recorder
	if cfg.Recorder.Enabled() {
		pool, err := database.Connect(ctx, cfg.Recorder.Database)
		if err != nil {
			logger.Error("failed to connect recorder database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		rec = recorder.New(cfg.Recorder, pool, logger)
		if err := rec.Start(ctx); err != nil {
			logger.Error("failed to start recorder", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, rec)
	}
	if cfg.Telemetry.Enabled() {
		sinks = append(sinks, telemetry.New(cfg.Telemetry, logger))
	}

	sess := session.New(session.Config{
		UplinkURL:    cfg.Session.UplinkURL,
		PushURL:      cfg.Session.PushURL,
		MimeType:     cfg.Session.MimeType,
		PingInterval: cfg.Session.PingInterval,
		MetaEvery:    cfg.Session.MetaEvery,
		Reconnect: connection.Config{
			BaseDelay:   cfg.Reconnect.BaseDelay,
			MaxDelay:    cfg.Reconnect.MaxDelay,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		},
		Audio: audio.Config{
			MaxQueueChunks: cfg.Audio.MaxQueueChunks,
			FlushInterval:  cfg.Audio.FlushInterval,
			TargetLatency:  cfg.Audio.TargetLatency,
		},
		Heartbeat: heartbeat.Config{
			CheckInterval: cfg.Heartbeat.CheckInterval,
			StaleAfter:    cfg.Heartbeat.StaleAfter,
		},
		CoalesceWindow: cfg.Coalesce.Window,
	}, tokens, logger, sinks...)
	defer sess.Cleanup()

	sess.OnStatusChange(func(state connection.State) {
		logger.Info("session status", "status", state.String())
	})
	sess.OnInstruction(func(payload string) {
		fmt.Printf("instruction: %s\n", payload)
	})

	if err := sess.Connect(ctx); err != nil {
		logger.Error("failed to connect session", "error", err)
		os.Exit(1)
	}
	logger.Info("session connected", "id", sess.ID())

	// Stream synthetic audio with deliberately bursty timing so the jitter
	// sender has something to smooth.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(5+rand.Intn(50)) * time.Millisecond):
				chunk := make([]byte, *chunkSize)
				rand.Read(chunk)
				sess.SendAudioBytes(chunk)
			}
		}
	}()

	// Periodic stats until shutdown.
	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			sess.Disconnect()
			if rec != nil {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
				rec.Stop(stopCtx)
				stopCancel()
			}
			return
		case <-statsTicker.C:
			stats := sess.AudioStats()
			logger.Info("audio stats",
				"queued", stats.Queued,
				"pushed", stats.Pushed,
				"emitted", stats.Emitted,
				"dropped", stats.Dropped,
			)
		}
	}
}
