package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"vwap-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond

	snapshotsKept = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/signals.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching for
// observations and signal results.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS observations (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol   TEXT    NOT NULL,
			exchange TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			price    REAL    NOT NULL,
			volume   REAL    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_observations_instrument
			ON observations(exchange, symbol, ts);

		CREATE TABLE IF NOT EXISTS signals (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol    TEXT    NOT NULL,
			exchange  TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			price     REAL    NOT NULL,
			vwap      REAL    NOT NULL,
			deviation REAL    NOT NULL,
			zscore    REAL    NOT NULL,
			action    TEXT    NOT NULL,
			ready     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_signals_instrument
			ON signals(exchange, symbol, ts);

		CREATE TABLE IF NOT EXISTS engine_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// Run reads observations from obsCh and inserts them in batched transactions.
// Flushes every batchSize observations OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or obsCh is closed.
func (w *Writer) Run(ctx context.Context, obsCh <-chan model.Observation) {
	batch := make([]model.Observation, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertObservationBatch(batch); err != nil {
			log.Printf("[sqlite] observation batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d observations in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case o, ok := <-obsCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, o)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// RunSignals reads signal results from sigCh and inserts them in batched
// transactions. Blocks until ctx is cancelled or sigCh is closed.
func (w *Writer) RunSignals(ctx context.Context, sigCh <-chan model.SignalResult) {
	batch := make([]model.SignalResult, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertSignalBatch(batch); err != nil {
			log.Printf("[sqlite] signal batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d signals in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case res, ok := <-sigCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, res)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertObservationBatch inserts a batch of observations in a single transaction.
func (w *Writer) insertObservationBatch(observations []model.Observation) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO observations (symbol, exchange, ts, price, volume)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, o := range observations {
		_, err := stmt.Exec(o.Symbol, o.Exchange, o.TS.UnixMilli(), o.Price, o.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// insertSignalBatch inserts a batch of signal results in a single transaction.
func (w *Writer) insertSignalBatch(results []model.SignalResult) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO signals (symbol, exchange, ts, price, vwap, deviation, zscore, action, ready)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		ready := 0
		if r.Ready {
			ready = 1
		}
		_, err := stmt.Exec(r.Symbol, r.Exchange, r.TS.UnixMilli(),
			r.Price, r.VWAP, r.Deviation, r.ZScore, string(r.Action), ready)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// SaveSnapshotJSON persists a JSON-encoded engine snapshot, pruning old ones.
func (w *Writer) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	_, err := w.db.ExecContext(ctx, `INSERT INTO engine_snapshots (data) VALUES (?)`, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err = w.db.ExecContext(ctx,
		`DELETE FROM engine_snapshots WHERE id NOT IN
		 (SELECT id FROM engine_snapshots ORDER BY created_at DESC, id DESC LIMIT ?)`,
		snapshotsKept)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}
	return nil
}

// GetLastObservationTS returns the last stored observation timestamp (Unix
// milliseconds) for a given instrument. Returns 0 if none exist.
func (w *Writer) GetLastObservationTS(exchange, symbol string) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM observations WHERE exchange = ? AND symbol = ?`,
		exchange, symbol,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
