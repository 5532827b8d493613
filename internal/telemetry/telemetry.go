// Package telemetry posts session events to a webhook. Delivery is
// explicitly fire-and-forget: Record returns nothing and failures are
// logged at Warn and discarded. Consumers that need durable events use the
// recorder instead.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/Calicanx/aitutor-stream/internal/config"
	"github.com/Calicanx/aitutor-stream/internal/session"
)

// Reporter implements session.EventSink over an HTTP webhook.
type Reporter struct {
	cfg    config.TelemetryConfig
	client *http.Client
	logger *slog.Logger

	sent   atomic.Int64
	failed atomic.Int64
}

// payload is the webhook wire format.
type payload struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Link      string `json:"link,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
	DelayMs   int64  `json:"delay_ms,omitempty"`
	At        int64  `json:"at"` // unix milliseconds
}

// New creates a reporter.
func New(cfg config.TelemetryConfig, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = config.DefaultWebhookTimeout
	}
	return &Reporter{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Record posts the event asynchronously. No delivery guarantee.
func (r *Reporter) Record(e session.Event) {
	go r.post(e)
}

// Sent returns the number of successfully delivered events.
func (r *Reporter) Sent() int64 { return r.sent.Load() }

// Failed returns the number of events that could not be delivered.
func (r *Reporter) Failed() int64 { return r.failed.Load() }

func (r *Reporter) post(e session.Event) {
	body, err := json.Marshal(payload{
		SessionID: e.SessionID,
		Kind:      string(e.Kind),
		Link:      e.Link,
		Attempt:   e.Attempt,
		DelayMs:   e.Delay.Milliseconds(),
		At:        e.At.UnixMilli(),
	})
	if err != nil {
		r.failed.Add(1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("telemetry request build failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("telemetry delivery failed", "error", err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		r.failed.Add(1)
		r.logger.Warn("telemetry rejected", "status", resp.StatusCode)
		return
	}
	r.sent.Add(1)
}
