package session

import (
	"context"
	"fmt"
	"log"
	"time"
)

// VWAP is session-anchored: cumulative price*volume and volume start from
// zero at every session boundary. For 24h venues (crypto) the session rolls
// at a fixed UTC hour; RolloverHour 0 gives the conventional midnight-UTC
// anchor.

// Config configures the session scheduler.
type Config struct {
	RolloverHour int            // 0-23, session boundary hour
	Location     *time.Location // defaults to UTC
}

func (c *Config) defaults() {
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// Validate rejects out-of-range rollover hours.
func (c Config) Validate() error {
	if c.RolloverHour < 0 || c.RolloverHour > 23 {
		return fmt.Errorf("session rollover hour %d out of range [0,23]", c.RolloverHour)
	}
	return nil
}

// SessionStart returns the start of the session containing t.
func (c Config) SessionStart(t time.Time) time.Time {
	lt := t.In(c.Location)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), c.RolloverHour, 0, 0, 0, c.Location)
	if lt.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// NextRollover returns the next session boundary strictly after t.
func (c Config) NextRollover(t time.Time) time.Time {
	return c.SessionStart(t).AddDate(0, 0, 1)
}

// TimeUntilRollover returns the duration until the next session boundary.
func (c Config) TimeUntilRollover(t time.Time) time.Duration {
	return c.NextRollover(t).Sub(t)
}

// SameSession reports whether a and b fall within the same session.
func (c Config) SameSession(a, b time.Time) bool {
	return c.SessionStart(a).Equal(c.SessionStart(b))
}

// Scheduler fires a reset callback at every session boundary.
type Scheduler struct {
	cfg     Config
	onReset func()

	// OnRollover is an optional hook called with the new session start
	// (for metrics and logging).
	OnRollover func(sessionStart time.Time)
}

// NewScheduler creates a scheduler that invokes onReset at each boundary.
func NewScheduler(cfg Config, onReset func()) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.defaults()
	return &Scheduler{cfg: cfg, onReset: onReset}, nil
}

// Run blocks until ctx is cancelled, firing onReset at each session boundary.
// The timer is re-armed from the wall clock after every fire so that clock
// adjustments and long GC pauses cannot drift the boundary.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		wait := s.cfg.TimeUntilRollover(time.Now())
		log.Printf("[session] next rollover in %s", wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			start := s.cfg.SessionStart(time.Now())
			log.Printf("[session] rollover — new session starts %s", start.Format(time.RFC3339))
			s.onReset()
			if s.OnRollover != nil {
				s.OnRollover(start)
			}
		}
	}
}
