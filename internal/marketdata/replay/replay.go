// Package replay provides an observation replayer that reads historical data
// from SQLite and emits it at configurable speed for backtesting.
package replay

import (
	"context"
	"log"
	"time"

	"vwap-systemv1/internal/model"
)

// Replayer reads stored observations and replays them at a configurable
// speed multiplier, preserving the original inter-arrival gaps.
type Replayer struct {
	reader model.ObservationReader
}

// New creates a Replayer backed by an observation reader.
func New(reader model.ObservationReader) *Replayer {
	return &Replayer{reader: reader}
}

// Run replays all stored observations after fromTS, emitting them into outCh.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast
// as possible. Observations come back from the store in timestamp order.
func (r *Replayer) Run(ctx context.Context, fromTS int64, speed float64, outCh chan<- model.Observation) error {
	observations, err := r.reader.ReadAllObservations(fromTS)
	if err != nil {
		return err
	}

	if len(observations) == 0 {
		log.Println("[replay] no observations found in store")
		return nil
	}

	log.Printf("[replay] loaded %d observations, speed=%.1fx", len(observations), speed)

	var prevTS time.Time
	emitted := 0

	for _, o := range observations {
		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d observations", emitted)
			return ctx.Err()
		default:
		}

		// Simulate time gaps between observations
		if speed > 0 && !prevTS.IsZero() {
			gap := o.TS.Sub(prevTS)
			if gap > 0 {
				scaledGap := time.Duration(float64(gap) / speed)
				// Cap max sleep to avoid very long waits
				if scaledGap > 5*time.Second {
					scaledGap = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaledGap):
				}
			}
		}
		prevTS = o.TS

		select {
		case outCh <- o:
			emitted++
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d observations", emitted)
			return ctx.Err()
		}
	}

	log.Printf("[replay] completed: %d observations replayed", emitted)
	return nil
}
