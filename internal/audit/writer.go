package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/rpcpool/internal/event"
)

// Writer consumes lifecycle events and batch-inserts them into the
// channel_events table.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	// Ingestion buffer filled by sink methods
	in chan eventRow

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
	dropped atomic.Int64
}

var _ event.Sink = (*Writer)(nil)

// NewWriter creates a new Writer. Zero config fields fall back to
// DefaultConfig values.
func NewWriter(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		in:     make(chan eventRow, cfg.BufferSize),
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming events and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("audit writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer. Buffered events are drained
// and flushed before returning; the passed context bounds the final
// database write.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping audit writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("audit writer stop timed out")
	}

	// Final drain and flush
	w.drain()
	w.flush(ctx)

	w.logger.Info("audit writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	m := w.metrics
	w.batchMu.Unlock()
	m.Dropped = w.dropped.Load()
	return m
}

// -----------------------------------------------------------------------------
// Sink
// -----------------------------------------------------------------------------

// ConnectSucceeded records a connect event.
func (w *Writer) ConnectSucceeded(e event.ConnectEvent) {
	w.enqueue(eventRow{
		OccurredAt: time.Now().UnixMicro(),
		Instance:   w.cfg.Instance,
		Slot:       e.Slot,
		Kind:       KindConnect,
		ConnID:     e.ConnID.String(),
		DurationUs: e.Duration.Microseconds(),
	})
}

// ConnectFailed records a connect_failure event.
func (w *Writer) ConnectFailed(e event.ConnectFailureEvent) {
	w.enqueue(eventRow{
		OccurredAt: time.Now().UnixMicro(),
		Instance:   w.cfg.Instance,
		Slot:       e.Slot,
		Kind:       KindConnectFailure,
		DurationUs: e.Duration.Microseconds(),
		Detail:     errText(e.Err),
	})
}

// Disconnected records a disconnect event.
func (w *Writer) Disconnected(e event.DisconnectEvent) {
	w.enqueue(eventRow{
		OccurredAt: time.Now().UnixMicro(),
		Instance:   w.cfg.Instance,
		Slot:       e.Slot,
		Kind:       KindDisconnect,
		ConnID:     e.ConnID.String(),
		DurationUs: e.Uptime.Microseconds(),
		Detail:     errText(e.Err),
	})
}

// ChannelGet is not audited.
func (w *Writer) ChannelGet(event.GetEvent) {}

// PoolGet is not audited.
func (w *Writer) PoolGet(event.PoolGetEvent) {}

// PoolStatus is not audited.
func (w *Writer) PoolStatus(event.StatusEvent) {}

// enqueue hands a row to the consumer without blocking.
func (w *Writer) enqueue(r eventRow) {
	select {
	case w.in <- r:
	default:
		w.dropped.Add(1)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// -----------------------------------------------------------------------------
// Batching
// -----------------------------------------------------------------------------

// consumeLoop reads from the ingestion buffer and accumulates batches.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case r := <-w.in:
			w.handleRow(r)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleRow adds a row to the batch.
func (w *Writer) handleRow(r eventRow) {
	w.batchMu.Lock()
	w.batch = append(w.batch, r)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// drain moves rows still sitting in the ingestion buffer into the batch.
func (w *Writer) drain() {
	for {
		select {
		case r := <-w.in:
			w.batchMu.Lock()
			w.batch = append(w.batch, r)
			w.batchMu.Unlock()
		default:
			return
		}
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed channel events",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch. The table is append-only.
func (w *Writer) batchInsert(ctx context.Context, rows []eventRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO channel_events (occurred_at, instance, slot, kind, conn_id, duration_us, detail)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, r.OccurredAt, r.Instance, r.Slot, r.Kind, r.ConnID, r.DurationUs, r.Detail)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
