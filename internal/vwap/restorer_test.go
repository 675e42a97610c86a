package vwap

import (
	"testing"

	"vwap-systemv1/internal/model"
)

// fakeReader serves canned observations for backfill tests.
type fakeReader struct {
	observations []model.Observation
	err          error
}

func (f *fakeReader) ReadAllObservations(afterTS int64) ([]model.Observation, error) {
	return f.observations, f.err
}

func TestRestorer_BackfillWarmsEngines(t *testing.T) {
	cfg := Config{WindowSize: 3, Threshold: 2.0}
	r := NewRestorer(cfg)
	book, _ := r.RestoreFromSnap(nil)

	reader := &fakeReader{observations: []model.Observation{
		obsFor("AAA", 100, 1),
		obsFor("AAA", 105, 2),
		obsFor("AAA", 95, 1),
	}}

	var results []model.SignalResult
	fed := r.Backfill(book, reader, 0, func(res model.SignalResult) {
		results = append(results, res)
	})

	if fed != 3 {
		t.Fatalf("fed = %d, want 3", fed)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}

	eng := book.Engine("BINANCE:AAA")
	if eng == nil {
		t.Fatal("engine should exist after backfill")
	}
	if !eng.Ready() {
		t.Error("engine should be ready: backfill fed a full window")
	}
	if eng.CumulativeVolume() != 4 {
		t.Errorf("cumulative volume = %v, want 4", eng.CumulativeVolume())
	}
}

func TestRestorer_BackfillSkipsInvalidObservations(t *testing.T) {
	cfg := Config{WindowSize: 3, Threshold: 2.0}
	r := NewRestorer(cfg)
	book, _ := r.RestoreFromSnap(nil)

	bad := obsFor("AAA", -5, 1) // negative price: stored junk
	reader := &fakeReader{observations: []model.Observation{
		obsFor("AAA", 100, 1),
		bad,
		obsFor("AAA", 105, 1),
	}}

	fed := r.Backfill(book, reader, 0, nil)
	if fed != 2 {
		t.Fatalf("fed = %d, want 2 (invalid observation skipped)", fed)
	}
	if got := book.Engine("BINANCE:AAA").CumulativeVolume(); got != 2 {
		t.Errorf("cumulative volume = %v, want 2", got)
	}
}

func TestRestorer_BackfillNilReader(t *testing.T) {
	r := NewRestorer(Config{WindowSize: 3, Threshold: 2.0})
	book, _ := r.RestoreFromSnap(nil)

	if fed := r.Backfill(book, nil, 0, nil); fed != 0 {
		t.Errorf("fed = %d, want 0 for nil reader", fed)
	}
}
