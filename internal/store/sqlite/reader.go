package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vwap-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only queries against a signal engine database. It is
// used by the restorer backfill and by the backtest replayer.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite database in read-only mode.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open readonly: %w", err)
	}
	return &Reader{db: db}, nil
}

// NewReaderFromDB wraps an already open database handle.
func NewReaderFromDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// ReadObservations returns observations for one instrument with ts strictly
// after afterTS (Unix milliseconds), ordered by ts ascending.
func (r *Reader) ReadObservations(exchange, symbol string, afterTS int64) ([]model.Observation, error) {
	rows, err := r.db.Query(`
		SELECT symbol, exchange, ts, price, volume
		FROM observations
		WHERE exchange = ? AND symbol = ? AND ts > ?
		ORDER BY ts ASC
	`, exchange, symbol, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// ReadAllObservations returns all observations across instruments with ts
// strictly after afterTS, ordered by ts ascending. Used by the replayer.
func (r *Reader) ReadAllObservations(afterTS int64) ([]model.Observation, error) {
	rows, err := r.db.Query(`
		SELECT symbol, exchange, ts, price, volume
		FROM observations
		WHERE ts > ?
		ORDER BY ts ASC
	`, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query all observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

func scanObservations(rows *sql.Rows) ([]model.Observation, error) {
	var out []model.Observation
	for rows.Next() {
		var o model.Observation
		var ts int64
		if err := rows.Scan(&o.Symbol, &o.Exchange, &ts, &o.Price, &o.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan observation: %w", err)
		}
		o.TS = time.UnixMilli(ts)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ReadLatestSnapshotJSON returns the most recent engine snapshot, or nil if
// none has been stored yet.
func (r *Reader) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM engine_snapshots ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
