package ringbuf

import (
	"sync"
	"testing"

	"vwap-systemv1/internal/model"
)

func TestRing_BasicPushPop(t *testing.T) {
	r := New(4) // rounds to 4

	o1 := model.Observation{Symbol: "A", Price: 100}
	o2 := model.Observation{Symbol: "B", Price: 200}

	if !r.Push(o1) {
		t.Fatal("push o1 should succeed")
	}
	if !r.Push(o2) {
		t.Fatal("push o2 should succeed")
	}

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.Pop()
	if !ok || got.Symbol != "A" {
		t.Fatalf("expected A, got %v ok=%v", got.Symbol, ok)
	}

	got, ok = r.Pop()
	if !ok || got.Symbol != "B" {
		t.Fatalf("expected B, got %v ok=%v", got.Symbol, ok)
	}

	_, ok = r.Pop()
	if ok {
		t.Fatal("pop from empty should return false")
	}
}

func TestRing_Overflow(t *testing.T) {
	r := New(2) // capacity = 2

	r.Push(model.Observation{Symbol: "1"})
	r.Push(model.Observation{Symbol: "2"})

	// Buffer is full
	ok := r.Push(model.Observation{Symbol: "3"})
	if ok {
		t.Fatal("push to full buffer should return false")
	}
	if r.Overflow() != 1 {
		t.Fatalf("expected overflow=1, got %d", r.Overflow())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New(4)

	// Fill and drain multiple times to test wraparound
	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			if !r.Push(model.Observation{Symbol: "X", Price: float64(round*10 + i)}) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			o, ok := r.Pop()
			if !ok {
				t.Fatalf("round %d pop %d failed", round, i)
			}
			if o.Price != float64(round*10+i) {
				t.Fatalf("round %d pop %d: expected price=%d, got %v", round, i, round*10+i, o.Price)
			}
		}
	}
}

func TestRing_ConcurrentSPSC(t *testing.T) {
	r := New(1024)
	const total = 100000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if r.Push(model.Observation{Price: float64(i)}) {
				i++
			}
		}
	}()

	go func() {
		defer wg.Done()
		next := 0.0
		for popped := 0; popped < total; {
			o, ok := r.Pop()
			if !ok {
				continue
			}
			if o.Price != next {
				t.Errorf("out of order: got %v, want %v", o.Price, next)
				return
			}
			next++
			popped++
		}
	}()

	wg.Wait()
}
