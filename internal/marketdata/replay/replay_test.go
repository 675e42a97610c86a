package replay

import (
	"context"
	"testing"
	"time"

	"vwap-systemv1/internal/model"
)

// fakeReader serves canned observations for replay tests.
type fakeReader struct {
	observations []model.Observation
}

func (f *fakeReader) ReadObservations(exchange, symbol string, afterTS int64) ([]model.Observation, error) {
	return f.observations, nil
}

func (f *fakeReader) ReadAllObservations(afterTS int64) ([]model.Observation, error) {
	return f.observations, nil
}

func (f *fakeReader) Close() error { return nil }

func obsAt(symbol string, price float64, ts time.Time) model.Observation {
	return model.Observation{
		Symbol:   symbol,
		Exchange: "BINANCE",
		Price:    price,
		Volume:   1,
		TS:       ts,
	}
}

func TestReplayer_EmitsAllInOrder(t *testing.T) {
	base := time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)
	reader := &fakeReader{observations: []model.Observation{
		obsAt("BTCUSDT", 100, base),
		obsAt("BTCUSDT", 101, base.Add(time.Second)),
		obsAt("BTCUSDT", 102, base.Add(2*time.Second)),
	}}

	outCh := make(chan model.Observation, 3)
	if err := New(reader).Run(context.Background(), 0, 0, outCh); err != nil {
		t.Fatal(err)
	}
	close(outCh)

	var prices []float64
	for o := range outCh {
		prices = append(prices, o.Price)
	}
	want := []float64{100, 101, 102}
	if len(prices) != len(want) {
		t.Fatalf("emitted %d observations, want %d", len(prices), len(want))
	}
	for i := range want {
		if prices[i] != want[i] {
			t.Errorf("observation %d: price %v, want %v", i, prices[i], want[i])
		}
	}
}

func TestReplayer_CancelUnblocksFullChannel(t *testing.T) {
	base := time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)
	reader := &fakeReader{observations: []model.Observation{
		obsAt("BTCUSDT", 100, base),
		obsAt("BTCUSDT", 101, base.Add(time.Second)),
	}}

	// Unbuffered channel with no consumer: the first send must give up
	// when the context is cancelled instead of blocking forever.
	outCh := make(chan model.Observation)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- New(reader).Run(ctx, 0, 0, outCh)
	}()

	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
