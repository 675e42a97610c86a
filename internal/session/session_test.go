package session

import (
	"context"
	"testing"
	"time"
)

func TestSessionStart_MidnightUTC(t *testing.T) {
	cfg := Config{RolloverHour: 0, Location: time.UTC}

	at := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	want := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if got := cfg.SessionStart(at); !got.Equal(want) {
		t.Errorf("SessionStart = %v, want %v", got, want)
	}
}

func TestSessionStart_BeforeRolloverHour(t *testing.T) {
	cfg := Config{RolloverHour: 8, Location: time.UTC}

	// 03:00 on the 10th belongs to the session that started 08:00 on the 9th
	at := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	want := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	if got := cfg.SessionStart(at); !got.Equal(want) {
		t.Errorf("SessionStart = %v, want %v", got, want)
	}
}

func TestNextRollover(t *testing.T) {
	cfg := Config{RolloverHour: 0, Location: time.UTC}

	at := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	want := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	if got := cfg.NextRollover(at); !got.Equal(want) {
		t.Errorf("NextRollover = %v, want %v", got, want)
	}

	if d := cfg.TimeUntilRollover(at); d != time.Minute {
		t.Errorf("TimeUntilRollover = %v, want 1m", d)
	}
}

func TestSameSession(t *testing.T) {
	cfg := Config{RolloverHour: 0, Location: time.UTC}

	a := time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)
	b := time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)
	c := time.Date(2025, 3, 11, 1, 0, 0, 0, time.UTC)

	if !cfg.SameSession(a, b) {
		t.Error("expected a and b in the same session")
	}
	if cfg.SameSession(b, c) {
		t.Error("expected b and c in different sessions")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{RolloverHour: 24}).Validate(); err == nil {
		t.Error("expected error for hour 24")
	}
	if err := (Config{RolloverHour: -1}).Validate(); err == nil {
		t.Error("expected error for hour -1")
	}
	if err := (Config{RolloverHour: 0}).Validate(); err != nil {
		t.Errorf("unexpected error for hour 0: %v", err)
	}
}

func TestScheduler_RejectsBadConfig(t *testing.T) {
	_, err := NewScheduler(Config{RolloverHour: 25}, func() {})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	s, err := NewScheduler(Config{RolloverHour: 0}, func() {})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
