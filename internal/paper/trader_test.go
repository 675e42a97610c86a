package paper

import (
	"math"
	"testing"
	"time"

	"vwap-systemv1/internal/model"
)

func sig(symbol string, price, z float64) model.SignalResult {
	return model.SignalResult{
		Symbol:   symbol,
		Exchange: "BINANCE",
		Price:    price,
		ZScore:   z,
		Ready:    true,
		TS:       time.Now(),
	}
}

func newTrader(t *testing.T) *Trader {
	t.Helper()
	tr, err := New(Config{
		InitialBalance:  10000,
		FeeRate:         0.001,
		TradeAllocation: 0.4,
		BuyThreshold:    -1.1,
		SellThreshold:   0.7,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func assertClose(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %.10f, want %.10f", got, want)
	}
}

func TestTrader_BuyOnDownwardCrossing(t *testing.T) {
	tr := newTrader(t)

	tr.Execute(sig("BTCUSDT", 100, -0.5)) // seeds prevZ, no trade
	tr.Execute(sig("BTCUSDT", 100, -1.2)) // crosses below -1.1 → BUY

	fills := tr.Fills()
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	f := fills[0]
	if f.Action != "BUY" {
		t.Errorf("action = %s, want BUY", f.Action)
	}

	// alloc = 10000*0.4 = 4000, fee = 4, qty = 3996/100
	assertClose(t, f.Fee, 4.0)
	assertClose(t, f.Qty, 39.96)
	assertClose(t, tr.Balance(), 6000)
	assertClose(t, tr.PositionQty("BINANCE:BTCUSDT"), 39.96)
}

func TestTrader_NoBuyWithoutCrossing(t *testing.T) {
	tr := newTrader(t)

	// z starts already below the threshold and stays there: no crossing
	tr.Execute(sig("BTCUSDT", 100, -1.5))
	tr.Execute(sig("BTCUSDT", 100, -1.6))
	tr.Execute(sig("BTCUSDT", 100, -1.4))

	if n := len(tr.Fills()); n != 0 {
		t.Fatalf("expected 0 fills, got %d", n)
	}
	assertClose(t, tr.Balance(), 10000)
}

func TestTrader_SellClosesPosition(t *testing.T) {
	tr := newTrader(t)

	tr.Execute(sig("BTCUSDT", 100, -0.5))
	tr.Execute(sig("BTCUSDT", 100, -1.2)) // BUY 39.96 @ 100
	tr.Execute(sig("BTCUSDT", 105, 0.5))  // below sell threshold, hold
	tr.Execute(sig("BTCUSDT", 110, 0.8))  // crosses above 0.7 → SELL

	fills := tr.Fills()
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(fills))
	}
	f := fills[1]
	if f.Action != "SELL" {
		t.Errorf("action = %s, want SELL", f.Action)
	}

	// proceeds = 39.96*110 = 4395.6, fee = 4.3956
	assertClose(t, f.Fee, 4.3956)
	assertClose(t, tr.Balance(), 6000+4395.6-4.3956)
	assertClose(t, tr.PositionQty("BINANCE:BTCUSDT"), 0)
	assertClose(t, tr.TotalFees(), 4.0+4.3956)
}

func TestTrader_NoSellWhenFlat(t *testing.T) {
	tr := newTrader(t)

	tr.Execute(sig("BTCUSDT", 100, 0.5))
	tr.Execute(sig("BTCUSDT", 100, 0.9)) // upward crossing, but nothing to sell

	if n := len(tr.Fills()); n != 0 {
		t.Fatalf("expected 0 fills, got %d", n)
	}
}

func TestTrader_NoReentryWhileInPosition(t *testing.T) {
	tr := newTrader(t)

	tr.Execute(sig("BTCUSDT", 100, -0.5))
	tr.Execute(sig("BTCUSDT", 100, -1.2)) // BUY
	tr.Execute(sig("BTCUSDT", 95, -0.9))  // back above threshold
	tr.Execute(sig("BTCUSDT", 90, -1.3))  // crosses down again, but already long

	if n := len(tr.Fills()); n != 1 {
		t.Fatalf("expected 1 fill, got %d", n)
	}
}

func TestTrader_IgnoresWarmupResults(t *testing.T) {
	tr := newTrader(t)

	warm := sig("BTCUSDT", 100, -0.5)
	warm.Ready = false
	tr.Execute(warm)

	// First ready result only seeds prevZ even though z is already extreme
	tr.Execute(sig("BTCUSDT", 100, -1.5))

	if n := len(tr.Fills()); n != 0 {
		t.Fatalf("expected 0 fills, got %d", n)
	}
}

func TestTrader_InstrumentsShareBalance(t *testing.T) {
	tr := newTrader(t)

	tr.Execute(sig("AAA", 10, -0.5))
	tr.Execute(sig("AAA", 10, -1.2)) // BUY: alloc 4000, balance 6000
	tr.Execute(sig("BBB", 20, -0.5))
	tr.Execute(sig("BBB", 20, -1.2)) // BUY: alloc 6000*0.4 = 2400

	fills := tr.Fills()
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(fills))
	}
	assertClose(t, tr.Balance(), 3600)
	// second entry: fee = 2.4, qty = 2397.6/20
	assertClose(t, fills[1].Fee, 2.4)
	assertClose(t, fills[1].Qty, 119.88)
}

func TestTrader_EquityMarksOpenPositions(t *testing.T) {
	tr := newTrader(t)

	tr.Execute(sig("BTCUSDT", 100, -0.5))
	tr.Execute(sig("BTCUSDT", 100, -1.2)) // long 39.96 @ 100

	eq := tr.Equity(map[string]float64{"BINANCE:BTCUSDT": 110})
	assertClose(t, eq, 6000+39.96*110)
}

func TestTrader_OnFillCallback(t *testing.T) {
	tr := newTrader(t)

	var got []Fill
	tr.OnFill = func(f Fill) { got = append(got, f) }

	tr.Execute(sig("BTCUSDT", 100, -0.5))
	tr.Execute(sig("BTCUSDT", 100, -1.2))

	if len(got) != 1 || got[0].Action != "BUY" {
		t.Fatalf("expected one BUY callback, got %+v", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	bad := []Config{
		{InitialBalance: -1},
		{FeeRate: 1.5},
		{TradeAllocation: 2},
		{BuyThreshold: 0.5},
		{SellThreshold: -0.5},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
