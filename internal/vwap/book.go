package vwap

import (
	"context"
	"log"
	"time"

	"vwap-systemv1/internal/model"
)

// Book manages one independent Engine per instrument. Engines share no
// state, so separate instruments never interfere — the Book only routes.
// Designed for single-goroutine usage — no locks needed.
type Book struct {
	cfg     Config
	engines map[string]*Engine // key = "exchange:symbol"

	// Metrics hooks (optional, set externally)
	OnReject    func()              // called when an observation fails validation
	OnDrop      func()              // called when a result is dropped due to a full channel
	OnProcessed func(time.Duration) // called with the compute latency of each accepted observation

	// ResetRequests, if set before Run, delivers session rollover requests
	// that are serviced on the Run goroutine between observations.
	ResetRequests <-chan struct{}

	// SnapshotRequests, if set before Run, serves checkpoint requests on the
	// Run goroutine. The caller sends a reply channel and receives a
	// consistent snapshot taken between observations.
	SnapshotRequests <-chan chan *BookSnapshot
}

// NewBook creates a Book that lazily instantiates engines with cfg.
// Returns an error if cfg is invalid, so a bad configuration is caught
// once at startup rather than on first observation.
func NewBook(cfg Config) (*Book, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Book{
		cfg:     cfg,
		engines: make(map[string]*Engine, 16),
	}, nil
}

// Process routes one observation to its instrument's engine, creating the
// engine on first sight of the instrument.
func (b *Book) Process(obs model.Observation) (model.SignalResult, error) {
	key := obs.Key()
	eng, ok := b.engines[key]
	if !ok {
		// cfg was validated in NewBook, so this cannot fail.
		eng, _ = NewEngine(b.cfg)
		b.engines[key] = eng
	}
	return eng.Ingest(obs)
}

// Engine returns the engine for an instrument key, or nil if the
// instrument has not been seen.
func (b *Book) Engine(key string) *Engine {
	return b.engines[key]
}

// Symbols returns the instrument keys currently tracked.
func (b *Book) Symbols() []string {
	keys := make([]string, 0, len(b.engines))
	for k := range b.engines {
		keys = append(keys, k)
	}
	return keys
}

// ResetAll resets every engine, starting a fresh accounting session for
// all instruments at once (e.g. at the session rollover).
func (b *Book) ResetAll() {
	for _, eng := range b.engines {
		eng.Reset()
	}
}

// Run consumes observations and emits signal results. Invalid observations
// are logged and skipped without mutating any engine. Blocks until ctx is
// cancelled or obsCh is closed.
func (b *Book) Run(ctx context.Context, obsCh <-chan model.Observation, resultCh chan<- model.SignalResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.ResetRequests:
			log.Printf("[vwap] session reset — clearing %d engines", len(b.engines))
			b.ResetAll()
		case req := <-b.SnapshotRequests:
			req <- SnapshotBook(b)
		case obs, ok := <-obsCh:
			if !ok {
				return
			}
			start := time.Now()
			res, err := b.Process(obs)
			if err != nil {
				log.Printf("[vwap] rejected observation %s: %v", obs.Key(), err)
				if b.OnReject != nil {
					b.OnReject()
				}
				continue
			}
			if b.OnProcessed != nil {
				b.OnProcessed(time.Since(start))
			}
			select {
			case resultCh <- res:
			default:
				// drop if channel full
				if b.OnDrop != nil {
					b.OnDrop()
				}
			}
		}
	}
}
