package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the pipeline from concrete storage implementations
// (Redis, SQLite). Each implementation satisfies one or more of these ports.

// ObservationWriter persists raw observations.
type ObservationWriter interface {
	// Run reads observations from obsCh and writes them.
	// Blocks until ctx is cancelled or obsCh is closed.
	Run(ctx context.Context, obsCh <-chan Observation)

	// Close releases underlying resources.
	Close() error
}

// SignalWriter persists signal results.
type SignalWriter interface {
	// RunSignals reads signal results from a channel and writes them.
	// Blocks until ctx is cancelled or channel is closed.
	RunSignals(ctx context.Context, sigCh <-chan SignalResult)

	// Close releases underlying resources.
	Close() error
}

// ObservationReader reads stored observations for backfill and replay.
type ObservationReader interface {
	// ReadObservations reads observations for one instrument after a Unix timestamp.
	ReadObservations(exchange, symbol string, afterTS int64) ([]Observation, error)

	// ReadAllObservations reads observations for all instruments after a Unix timestamp.
	ReadAllObservations(afterTS int64) ([]Observation, error)

	// Close releases underlying resources.
	Close() error
}

// SnapshotStore reads and writes engine snapshots as raw JSON.
// Using []byte avoids a model→vwap→model import cycle.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded engine snapshot.
	SaveSnapshotJSON(ctx context.Context, data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error)
}
