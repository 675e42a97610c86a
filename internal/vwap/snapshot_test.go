package vwap

import (
	"encoding/json"
	"testing"
)

func TestSnapshot_RoundTripContinuesIdentically(t *testing.T) {
	cfg := Config{WindowSize: 3, Threshold: 2.0}

	e := mustEngine(t, cfg)
	prices := []float64{100, 105, 95, 110}
	for _, p := range prices {
		if _, err := e.Ingest(obs(p, 1)); err != nil {
			t.Fatal(err)
		}
	}

	snap := e.Snapshot()
	restored := mustEngine(t, cfg)
	if err := restored.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	// Both engines must now produce identical results for the same feed.
	for _, p := range []float64{90, 120, 101} {
		o := obs(p, 2)
		want, err := e.Ingest(o)
		if err != nil {
			t.Fatal(err)
		}
		got, err := restored.Ingest(o)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("price %v: restored engine diverged:\n got %+v\nwant %+v", p, got, want)
		}
	}
}

func TestRestoreFromSnapshot_RejectsWindowMismatch(t *testing.T) {
	e := mustEngine(t, Config{WindowSize: 5, Threshold: 2.0})
	snap := e.Snapshot()

	other := mustEngine(t, Config{WindowSize: 10, Threshold: 2.0})
	if err := other.RestoreFromSnapshot(snap); err == nil {
		t.Error("expected error restoring snapshot with mismatched window size")
	}
}

func TestBookSnapshot_JSONRoundTrip(t *testing.T) {
	cfg := Config{WindowSize: 3, Threshold: 2.0}
	b, err := NewBook(cfg)
	if err != nil {
		t.Fatal(err)
	}

	b.Process(obsFor("AAA", 100, 1))
	b.Process(obsFor("AAA", 105, 2))
	b.Process(obsFor("BBB", 50, 1))

	data, err := json.Marshal(SnapshotBook(b))
	if err != nil {
		t.Fatal(err)
	}

	var snap BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Version != 1 || len(snap.Instruments) != 2 {
		t.Fatalf("unexpected snapshot: version=%d instruments=%d", snap.Version, len(snap.Instruments))
	}

	restored, err := RestoreBook(cfg, &snap)
	if err != nil {
		t.Fatal(err)
	}

	// Continue both books and compare.
	o := obsFor("AAA", 110, 1)
	want, _ := b.Process(o)
	got, _ := restored.Process(o)
	if got != want {
		t.Errorf("restored book diverged:\n got %+v\nwant %+v", got, want)
	}
}

func TestRestorer_ColdStartAndConfigChange(t *testing.T) {
	r := NewRestorer(Config{WindowSize: 4, Threshold: 2.0})

	// nil snapshot → cold start
	b, err := r.RestoreFromSnap(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Symbols()) != 0 {
		t.Error("cold start should have no instruments")
	}

	// Snapshot taken with a different window size → engines cold-start
	// instead of failing the restore.
	old, _ := NewBook(Config{WindowSize: 2, Threshold: 2.0})
	old.Process(obsFor("AAA", 100, 1))
	snap := SnapshotBook(old)

	b, err = r.RestoreFromSnap(snap)
	if err != nil {
		t.Fatal(err)
	}
	eng := b.Engine("BINANCE:AAA")
	if eng == nil {
		t.Fatal("instrument should exist after restore")
	}
	if eng.CumulativeVolume() != 0 {
		t.Error("mismatched snapshot should cold-start the engine")
	}
}
