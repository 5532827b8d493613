// Package recorder persists session lifecycle events to Postgres for
// diagnostics dashboards. Delivery is best-effort by contract: a full
// buffer drops the event, a failed flush is logged and never propagated,
// and the realtime path never blocks on the database.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Calicanx/aitutor-stream/internal/config"
	"github.com/Calicanx/aitutor-stream/internal/session"
)

const insertEventSQL = `
	INSERT INTO session_events (session_id, kind, link, attempt, delay_ms, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// eventRow is the flattened database representation of a session event.
type eventRow struct {
	SessionID  string
	Kind       string
	Link       string
	Attempt    int
	DelayMs    int64
	OccurredAt int64 // unix microseconds
}

// Metrics holds recorder counters.
type Metrics struct {
	Recorded    int64
	Dropped     int64
	Flushed     int64
	FlushErrors int64
}

// Recorder batches session events and writes them with pgx batches.
// It implements session.EventSink.
type Recorder struct {
	cfg    config.RecorderConfig
	db     *pgxpool.Pool
	logger *slog.Logger

	input chan session.Event

	batchMu sync.Mutex
	batch   []eventRow
	metrics Metrics

	flushTicker *time.Ticker
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a recorder writing to db.
func New(cfg config.RecorderConfig, db *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan session.Event, cfg.BufferSize),
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// Record enqueues an event without blocking. Dropped when the buffer is full.
func (r *Recorder) Record(e session.Event) {
	select {
	case r.input <- e:
	default:
		r.batchMu.Lock()
		r.metrics.Dropped++
		r.batchMu.Unlock()
	}
}

// Start begins consuming events and flushing batches.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("session recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop drains goroutines and performs a final flush.
func (r *Recorder) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("session recorder stop timed out")
	}

	r.flush()
	r.logger.Info("session recorder stopped")
	return nil
}

// Stats returns current counters.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case e := <-r.input:
			r.add(transform(e))
		}
	}
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush()
		}
	}
}

func (r *Recorder) add(row eventRow) {
	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	r.metrics.Recorded++
	full := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if full {
		r.flush()
	}
}

// flush writes the accumulated batch in one round trip.
func (r *Recorder) flush() {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}
	rows := r.batch
	r.batch = make([]eventRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	if r.db == nil {
		return
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertEventSQL,
			row.SessionID, row.Kind, row.Link, row.Attempt, row.DelayMs, row.OccurredAt)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := r.db.SendBatch(ctx, batch).Close()

	r.batchMu.Lock()
	if err != nil {
		r.metrics.FlushErrors++
		r.batchMu.Unlock()
		r.logger.Warn("session event flush failed", "rows", len(rows), "error", err)
		return
	}
	r.metrics.Flushed += int64(len(rows))
	r.batchMu.Unlock()
}

// transform flattens an event for insertion.
func transform(e session.Event) eventRow {
	return eventRow{
		SessionID:  e.SessionID,
		Kind:       string(e.Kind),
		Link:       e.Link,
		Attempt:    e.Attempt,
		DelayMs:    e.Delay.Milliseconds(),
		OccurredAt: e.At.UnixMicro(),
	}
}
