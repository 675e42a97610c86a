package vwap

import (
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// EngineSnapshot holds the serialized state of a single engine instance.
type EngineSnapshot struct {
	WindowSize int       `json:"window_size"`
	Threshold  float64   `json:"threshold"`
	CumPV      float64   `json:"cum_pv"`
	CumVol     float64   `json:"cum_vol"`
	Buf        []float64 `json:"buf,omitempty"`
	Idx        int       `json:"idx,omitempty"`
	Count      int       `json:"count"`
	Sum        float64   `json:"sum,omitempty"`
	SumSq      float64   `json:"sum_sq,omitempty"`
}

// InstrumentSnapshot holds the engine snapshot for a single instrument.
type InstrumentSnapshot struct {
	Symbol   string         `json:"symbol"`
	Exchange string         `json:"exchange"`
	Engine   EngineSnapshot `json:"engine"`
}

// BookSnapshot holds the full state of a Book across instruments.
type BookSnapshot struct {
	Instruments []InstrumentSnapshot `json:"instruments"`
	TakenAt     time.Time            `json:"taken_at"`
	Version     int                  `json:"version"` // schema version for forward compat
}

// Snapshot serializes the engine state for checkpoint persistence.
func (e *Engine) Snapshot() EngineSnapshot {
	bufCopy := make([]float64, len(e.buf))
	copy(bufCopy, e.buf)
	return EngineSnapshot{
		WindowSize: e.cfg.WindowSize,
		Threshold:  e.cfg.Threshold,
		CumPV:      e.cumPV,
		CumVol:     e.cumVol,
		Buf:        bufCopy,
		Idx:        e.idx,
		Count:      e.count,
		Sum:        e.sum,
		SumSq:      e.sumSq,
	}
}

// RestoreFromSnapshot restores engine state from a checkpoint. The snapshot
// must match the engine's configured window size; a mismatch means the
// config changed since the checkpoint and the engine should cold-start.
func (e *Engine) RestoreFromSnapshot(snap EngineSnapshot) error {
	if snap.WindowSize != e.cfg.WindowSize {
		return fmt.Errorf("snapshot window size %d does not match configured %d",
			snap.WindowSize, e.cfg.WindowSize)
	}
	e.cumPV = snap.CumPV
	e.cumVol = snap.CumVol
	e.idx = snap.Idx
	e.count = snap.Count
	e.sum = snap.Sum
	e.sumSq = snap.SumSq
	if len(snap.Buf) == e.cfg.WindowSize {
		copy(e.buf, snap.Buf)
	} else {
		for i := range e.buf {
			e.buf[i] = 0
		}
	}
	return nil
}

// SnapshotBook captures the full state of a Book.
func SnapshotBook(b *Book) *BookSnapshot {
	snap := &BookSnapshot{Version: 1, TakenAt: time.Now()}
	for key, eng := range b.engines {
		is := InstrumentSnapshot{Symbol: key, Engine: eng.Snapshot()}
		// Key format from Observation.Key() is "exchange:symbol".
		for i := range key {
			if key[i] == ':' {
				is.Exchange = key[:i]
				is.Symbol = key[i+1:]
				break
			}
		}
		snap.Instruments = append(snap.Instruments, is)
	}
	return snap
}

// RestoreBook rebuilds a Book from a snapshot. It is tolerant of config
// changes: instruments whose snapshot no longer matches the configured
// window size cold-start fresh instead of failing the restore.
func RestoreBook(cfg Config, snap *BookSnapshot) (*Book, error) {
	b, err := NewBook(cfg)
	if err != nil {
		return nil, err
	}

	restored, cold := 0, 0
	for _, is := range snap.Instruments {
		eng, err := NewEngine(cfg)
		if err != nil {
			return nil, err
		}
		if err := eng.RestoreFromSnapshot(is.Engine); err != nil {
			cold++
		} else {
			restored++
		}
		key := is.Symbol
		if is.Exchange != "" {
			key = is.Exchange + ":" + is.Symbol
		}
		b.engines[key] = eng
	}

	if cold > 0 {
		log.Printf("[vwap] restored %d, cold-started %d engines", restored, cold)
	}
	return b, nil
}

// MarshalJSON serializes the book snapshot to JSON.
func (bs *BookSnapshot) MarshalJSON() ([]byte, error) {
	type Alias BookSnapshot
	return json.Marshal((*Alias)(bs))
}

// UnmarshalJSON deserializes the book snapshot from JSON.
func (bs *BookSnapshot) UnmarshalJSON(data []byte) error {
	type Alias BookSnapshot
	return json.Unmarshal(data, (*Alias)(bs))
}
