package bus

import (
	"context"
	"testing"
	"time"

	"vwap-systemv1/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan model.SignalResult, 10)
	ctx, cancel := context.WithCancel(context.Background())
	go fo.Run(ctx, input)

	res := model.SignalResult{
		Symbol:   "IOUSDC",
		Exchange: "BINANCE",
		VWAP:     101.5,
		ZScore:   2.3,
		Action:   model.ActionSell,
		Ready:    true,
	}

	input <- res
	time.Sleep(50 * time.Millisecond)

	select {
	case r := <-out1:
		if r.Symbol != "IOUSDC" || r.Action != model.ActionSell {
			t.Errorf("out1: unexpected result %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("out1: timed out waiting for signal")
	}

	select {
	case r := <-out2:
		if r.Symbol != "IOUSDC" {
			t.Errorf("out2: expected symbol IOUSDC, got %s", r.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out2: timed out waiting for signal")
	}

	cancel()
}

func TestFanOut_DropsForSlowConsumer(t *testing.T) {
	fo := New(1) // tiny buffers
	_ = fo.Subscribe()

	dropped := make(chan int, 10)
	fo.OnDrop = func(idx int) { dropped <- idx }

	input := make(chan model.SignalResult, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	// Nobody reads the subscriber channel; second result must be dropped.
	input <- model.SignalResult{Symbol: "A"}
	input <- model.SignalResult{Symbol: "B"}

	select {
	case idx := <-dropped:
		if idx != 0 {
			t.Errorf("expected drop for subscriber 0, got %d", idx)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for drop callback")
	}
}
