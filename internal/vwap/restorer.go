package vwap

import (
	"log"

	"vwap-systemv1/internal/model"
)

// BackfillReader is the interface needed for observation backfill reads.
type BackfillReader interface {
	ReadAllObservations(afterTS int64) ([]model.Observation, error)
}

// Restorer orchestrates engine state restoration on startup.
// It follows a priority chain: stored snapshot → observation backfill → cold start.
type Restorer struct {
	cfg Config
}

// NewRestorer creates a Restorer for the given engine config.
func NewRestorer(cfg Config) *Restorer {
	return &Restorer{cfg: cfg}
}

// RestoreFromSnap attempts to restore a Book from a snapshot.
// If snap is nil, returns a fresh Book (cold start).
func (r *Restorer) RestoreFromSnap(snap *BookSnapshot) (*Book, error) {
	if snap == nil {
		log.Println("[restorer] no snapshot found — cold starting signal engines")
		return NewBook(r.cfg)
	}

	log.Printf("[restorer] restoring from snapshot (version=%d, instruments=%d)",
		snap.Version, len(snap.Instruments))

	book, err := RestoreBook(r.cfg, snap)
	if err != nil {
		log.Printf("[restorer] WARNING: snapshot restore failed: %v — falling back to cold start", err)
		return NewBook(r.cfg)
	}
	return book, nil
}

// Backfill reads stored observations newer than afterTS and feeds them into
// the book to warm up cold engines before the live feed starts. If onResult
// is non-nil it is called with each replayed signal result, letting the
// caller repopulate downstream history. Returns the number of observations fed.
func (r *Restorer) Backfill(book *Book, reader BackfillReader, afterTS int64, onResult func(model.SignalResult)) int {
	if reader == nil {
		return 0
	}

	observations, err := reader.ReadAllObservations(afterTS)
	if err != nil {
		log.Printf("[restorer] WARNING: observation backfill read failed: %v", err)
		return 0
	}

	fed := 0
	for _, obs := range observations {
		res, err := book.Process(obs)
		if err != nil {
			continue // stored junk — skip, same as live path
		}
		if onResult != nil {
			onResult(res)
		}
		fed++
	}

	if fed > 0 {
		log.Printf("[restorer] backfilled %d observations", fed)
	}
	return fed
}
