package vwap

import (
	"context"
	"testing"
	"time"

	"vwap-systemv1/internal/model"
)

func obsFor(symbol string, price, volume float64) model.Observation {
	return model.Observation{
		Symbol:   symbol,
		Exchange: "BINANCE",
		Price:    price,
		Volume:   volume,
		TS:       time.Now().UTC(),
	}
}

func TestBook_IsolatesInstruments(t *testing.T) {
	b, err := NewBook(Config{WindowSize: 3, Threshold: 2.0})
	if err != nil {
		t.Fatal(err)
	}

	// Feed instrument A a volatile series and instrument B a flat one.
	for i := 0; i < 3; i++ {
		b.Process(obsFor("AAA", 100, 1))
		b.Process(obsFor("BBB", 50, 1))
	}
	resA, err := b.Process(obsFor("AAA", 200, 1))
	if err != nil {
		t.Fatal(err)
	}
	resB, err := b.Process(obsFor("BBB", 50, 1))
	if err != nil {
		t.Fatal(err)
	}

	if resA.VWAP == resB.VWAP {
		t.Error("instruments must not share VWAP state")
	}
	assertClose(t, "AAA VWAP", resA.VWAP, 125, 1e-9)
	assertClose(t, "BBB VWAP", resB.VWAP, 50, 1e-9)
	if resB.ZScore != 0 || resB.Action != model.ActionHold {
		t.Errorf("flat instrument should HOLD with z=0, got z=%v action=%s", resB.ZScore, resB.Action)
	}

	if len(b.Symbols()) != 2 {
		t.Errorf("expected 2 tracked instruments, got %d", len(b.Symbols()))
	}
}

func TestBook_ResetAll(t *testing.T) {
	b, err := NewBook(Config{WindowSize: 2, Threshold: 2.0})
	if err != nil {
		t.Fatal(err)
	}

	b.Process(obsFor("AAA", 100, 5))
	b.Process(obsFor("BBB", 200, 5))
	b.ResetAll()

	for _, key := range b.Symbols() {
		if eng := b.Engine(key); eng.CumulativeVolume() != 0 || eng.Ready() {
			t.Errorf("%s: engine not reset", key)
		}
	}
}

func TestBook_RejectsBadConfig(t *testing.T) {
	if _, err := NewBook(Config{WindowSize: 0, Threshold: 2.0}); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestBook_RunSkipsInvalidObservations(t *testing.T) {
	b, err := NewBook(Config{WindowSize: 2, Threshold: 2.0})
	if err != nil {
		t.Fatal(err)
	}

	rejected := 0
	b.OnReject = func() { rejected++ }

	obsCh := make(chan model.Observation, 10)
	resultCh := make(chan model.SignalResult, 10)

	obsCh <- obsFor("AAA", -1, 1) // invalid: skipped, no result
	obsCh <- obsFor("AAA", 100, 1)
	obsCh <- obsFor("AAA", 101, 1)
	close(obsCh)

	b.Run(context.Background(), obsCh, resultCh)

	if got := len(resultCh); got != 2 {
		t.Errorf("expected 2 results, got %d", got)
	}
	if rejected != 1 {
		t.Errorf("expected 1 rejection, got %d", rejected)
	}
}

func TestBook_RunServicesResetAndSnapshotRequests(t *testing.T) {
	b, err := NewBook(Config{WindowSize: 2, Threshold: 2.0})
	if err != nil {
		t.Fatal(err)
	}

	// Unbuffered so each send rendezvouses with the Run goroutine, making
	// the ordering against observation sends deterministic.
	resetCh := make(chan struct{})
	snapReqCh := make(chan chan *BookSnapshot)
	b.ResetRequests = resetCh
	b.SnapshotRequests = snapReqCh

	obsCh := make(chan model.Observation)
	resultCh := make(chan model.SignalResult, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx, obsCh, resultCh)
		close(done)
	}()

	obsCh <- obsFor("AAA", 100, 2)
	obsCh <- obsFor("AAA", 110, 1)

	reply := make(chan *BookSnapshot, 1)
	snapReqCh <- reply
	snap := <-reply
	if len(snap.Instruments) != 1 {
		t.Fatalf("expected 1 instrument in snapshot, got %d", len(snap.Instruments))
	}
	if snap.Instruments[0].Engine.CumVol != 3 {
		t.Errorf("snapshot CumVol = %v, want 3", snap.Instruments[0].Engine.CumVol)
	}
	if snap.TakenAt.IsZero() {
		t.Error("snapshot TakenAt not set")
	}

	resetCh <- struct{}{}
	// Next observation after the reset starts a fresh session.
	obsCh <- obsFor("AAA", 100, 1)

	close(obsCh)
	<-done

	if got := b.Engine("BINANCE:AAA").CumulativeVolume(); got != 1 {
		t.Errorf("cumulative volume after reset = %v, want 1", got)
	}
}
