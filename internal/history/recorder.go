package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feedmux/feedgate/internal/buffer"
	"github.com/feedmux/feedgate/internal/model"
)

// Config holds recorder tuning.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max latency before a partial batch is written
	BufferSize    int           // Initial queue capacity
}

// row is one archived update, flattened for insertion. Ladders and position
// lists are stored as JSON payloads; ticks get typed columns.
type row struct {
	Tenant     string
	Kind       string
	Selector   string
	TimeMS     int64
	ReceivedAt int64

	// Tick columns (KindTick only)
	Bid, Ask, Last float64
	Volume         int64

	// JSON payload (orderbook/position only)
	Payload []byte
}

// Metrics counts recorder activity.
type Metrics struct {
	Inserts int64 `json:"inserts"`
	Errors  int64 `json:"errors"`
	Flushes int64 `json:"flushes"`
	Dropped int64 `json:"dropped"` // Updates discarded because they could not be encoded
}

// Recorder batches accepted updates into Postgres.
type Recorder struct {
	cfg    Config
	db     *pgxpool.Pool
	logger *slog.Logger

	input *buffer.Queue[model.Update]

	batchMu sync.Mutex
	batch   []row
	metrics Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecorder creates a Recorder writing to db.
func NewRecorder(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  buffer.NewQueue[model.Update](cfg.BufferSize),
		batch:  make([]row, 0, cfg.BatchSize),
	}
}

// HandleUpdate enqueues an accepted update for archival. Never blocks the
// caller; satisfies the core's update-sink contract.
func (r *Recorder) HandleUpdate(u model.Update) {
	r.input.Push(u)
}

// Start begins consuming and flushing.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("history recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the queue and writes the final batch.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping history recorder")

	r.input.Close()
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("history recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("history recorder stop timed out")
	}

	r.flush()
	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// consumeLoop drains the queue into batches.
func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	for {
		u, ok := r.input.Pop()
		if !ok {
			return
		}
		r.handleUpdate(u)
	}
}

// flushLoop writes partial batches on the flush interval.
func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.flush()
		}
	}
}

func (r *Recorder) handleUpdate(u model.Update) {
	rw, ok := r.transform(u)
	if !ok {
		r.batchMu.Lock()
		r.metrics.Dropped++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.batch = append(r.batch, rw)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush()
	}
}

// transform flattens an update into a row.
func (r *Recorder) transform(u model.Update) (row, bool) {
	rw := row{
		Tenant:     u.Key.Tenant,
		Kind:       string(u.Key.Kind),
		Selector:   u.Key.Selector,
		TimeMS:     u.TimeMS,
		ReceivedAt: time.Now().UnixMilli(),
	}

	switch {
	case u.Tick != nil:
		rw.Bid = u.Tick.Bid
		rw.Ask = u.Tick.Ask
		rw.Last = u.Tick.Last
		rw.Volume = u.Tick.Volume

	case u.OrderBook != nil:
		payload, err := json.Marshal(u.OrderBook)
		if err != nil {
			return row{}, false
		}
		rw.Payload = payload

	case u.Positions != nil:
		payload, err := json.Marshal(u.Positions)
		if err != nil {
			return row{}, false
		}
		rw.Payload = payload

	default:
		return row{}, false
	}

	return rw, true
}

// flush writes the current batch to the database.
func (r *Recorder) flush() {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}
	batch := r.batch
	r.batch = make([]row, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	if err := r.batchInsert(batch); err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch))
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed history",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert writes rows with pgx.Batch. Tick rows carry typed columns;
// book and position rows carry a JSON payload. ON CONFLICT keeps the
// archive idempotent across recorder restarts.
func (r *Recorder) batchInsert(rows []row) error {
	batch := &pgx.Batch{}
	for _, rw := range rows {
		switch rw.Kind {
		case string(model.KindTick):
			batch.Queue(`
				INSERT INTO tick_history (tenant, selector, time_ms, received_at, bid, ask, last, volume)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (tenant, selector, time_ms) DO NOTHING
			`, rw.Tenant, rw.Selector, rw.TimeMS, rw.ReceivedAt, rw.Bid, rw.Ask, rw.Last, rw.Volume)
		default:
			batch.Queue(`
				INSERT INTO update_history (tenant, kind, selector, time_ms, received_at, payload)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (tenant, kind, selector, time_ms) DO NOTHING
			`, rw.Tenant, rw.Kind, rw.Selector, rw.TimeMS, rw.ReceivedAt, rw.Payload)
		}
	}

	ctx := r.ctx
	if ctx == nil || ctx.Err() != nil {
		// Final flush after Stop still needs a usable context.
		ctx = context.Background()
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
