package persistence

import (
	"database/sql"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"papertrade/internal/ledger"
	"papertrade/pkg/db"
)

// writeOp is one buffered audit insert.
type writeOp struct {
	table string
	query string
	args  []any
}

// durationRecorder receives the latency of each committed batch.
type durationRecorder interface {
	RecordDuration(d time.Duration)
}

// AuditWriter batches trade and capital-flow audit rows off the trading path.
// Audit rows are a convenience copy; the ledger snapshot stays the source of truth.
type AuditWriter struct {
	db          *sql.DB
	buffer      []writeOp
	mu          sync.Mutex
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	latency     durationRecorder

	totalWrites  atomic.Uint64
	totalBatches atomic.Uint64
	totalErrors  atomic.Uint64
	lastBatch    atomic.Int64
	lastFlush    atomic.Int64
}

// AuditWriterMetrics provides statistics about batch operations.
type AuditWriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	Pending       int       `json:"pending"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// NewAuditWriter creates a batch writer.
// maxSize: max rows before auto-flush
// interval: time-based flush interval
func NewAuditWriter(database *sql.DB, maxSize int, interval time.Duration) *AuditWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	aw := &AuditWriter{
		db:          database,
		buffer:      make([]writeOp, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	aw.wg.Add(1)
	go aw.backgroundFlush()

	return aw
}

// WithLatency records batch commit latency into h. Call before the first write.
func (aw *AuditWriter) WithLatency(h durationRecorder) *AuditWriter {
	aw.latency = h
	return aw
}

// RecordTrade queues a simulated fill.
func (aw *AuditWriter) RecordTrade(rec ledger.TradeRecord) {
	aw.write(writeOp{
		table: "trade_audit",
		query: `INSERT OR IGNORE INTO trade_audit (id, asset, side, qty, price, fee, profit, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args: []any{
			rec.ID, string(rec.Asset), string(rec.Type),
			rec.Quantity.String(), rec.Price.String(), rec.Fee.String(), rec.Profit.String(),
			rec.Reason, rec.Timestamp,
		},
	})
}

// RecordFlow queues a deposit or withdrawal.
func (aw *AuditWriter) RecordFlow(f db.CapitalFlow) {
	if f.UserID == "" {
		log.Printf("⚠️ AuditWriter: dropping flow %s without user id", f.ID)
		return
	}
	aw.write(writeOp{
		table: "capital_flows",
		query: `INSERT OR IGNORE INTO capital_flows (id, user_id, asset, kind, amount, fee, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		args: []any{f.ID, f.UserID, f.Asset, f.Kind, f.Amount, f.Fee, f.CreatedAt},
	})
}

func (aw *AuditWriter) write(op writeOp) {
	aw.mu.Lock()
	aw.buffer = append(aw.buffer, op)
	shouldFlush := len(aw.buffer) >= aw.maxSize
	aw.mu.Unlock()

	if shouldFlush {
		aw.Flush()
	}
}

// Flush immediately writes all buffered rows to the database.
func (aw *AuditWriter) Flush() error {
	aw.mu.Lock()
	if len(aw.buffer) == 0 {
		aw.mu.Unlock()
		return nil
	}

	ops := aw.buffer
	aw.buffer = make([]writeOp, 0, aw.maxSize)
	aw.mu.Unlock()

	return aw.executeBatch(ops)
}

// executeBatch runs a batch of inserts in a transaction.
func (aw *AuditWriter) executeBatch(ops []writeOp) error {
	aw.totalWrites.Add(uint64(len(ops)))
	aw.totalBatches.Add(1)
	aw.lastBatch.Store(int64(len(ops)))
	aw.lastFlush.Store(time.Now().UnixNano())

	start := time.Now()
	tx, err := aw.db.Begin()
	if err != nil {
		aw.totalErrors.Add(1)
		log.Printf("❌ AuditWriter: failed to begin transaction: %v", err)
		return err
	}

	for _, op := range ops {
		if _, err := tx.Exec(op.query, op.args...); err != nil {
			tx.Rollback()
			aw.totalErrors.Add(1)
			log.Printf("❌ AuditWriter: insert into %s failed, rolling back: %v", op.table, err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		aw.totalErrors.Add(1)
		log.Printf("❌ AuditWriter: commit failed: %v", err)
		return err
	}
	if aw.latency != nil {
		aw.latency.RecordDuration(time.Since(start))
	}
	return nil
}

// backgroundFlush periodically flushes the buffer.
func (aw *AuditWriter) backgroundFlush() {
	defer aw.wg.Done()
	ticker := time.NewTicker(aw.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := aw.Flush(); err != nil {
				log.Printf("⚠️ AuditWriter: background flush error: %v", err)
			}
		case <-aw.done:
			if err := aw.Flush(); err != nil {
				log.Printf("⚠️ AuditWriter: final flush error: %v", err)
			}
			return
		}
	}
}

// Pending returns the number of queued rows.
func (aw *AuditWriter) Pending() int {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return len(aw.buffer)
}

func (aw *AuditWriter) Metrics() AuditWriterMetrics {
	m := AuditWriterMetrics{
		TotalWrites:   aw.totalWrites.Load(),
		TotalBatches:  aw.totalBatches.Load(),
		TotalErrors:   aw.totalErrors.Load(),
		Pending:       aw.Pending(),
		LastBatchSize: int(aw.lastBatch.Load()),
	}
	if ns := aw.lastFlush.Load(); ns > 0 {
		m.LastFlushTime = time.Unix(0, ns)
	}
	return m
}

// Close flushes what is left and stops the background loop. Safe to call twice.
func (aw *AuditWriter) Close() error {
	aw.closeOnce.Do(func() { close(aw.done) })
	aw.wg.Wait()
	return nil
}
