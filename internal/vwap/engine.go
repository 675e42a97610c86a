// Package vwap implements the VWAP z-score signal engine.
//
// The Engine consumes a time-ordered stream of (price, volume) observations
// for one instrument and produces, per observation, the session VWAP, the
// z-score of the price deviation from it, and a BUY/SELL/HOLD classification.
// Designed for single-goroutine usage — no locks needed. One Engine per
// instrument is the unit of isolation; independent engines share no state.
package vwap

import (
	"errors"
	"fmt"
	"math"

	"vwap-systemv1/internal/model"
)

// Defaults used when config values are left zero by the caller-facing
// config layer. The engine itself rejects non-positive values outright.
const (
	DefaultWindowSize = 20
	DefaultThreshold  = 2.0
)

// ErrInvalidObservation is returned when an observation fails validation
// (non-positive price, negative volume, or non-finite values). The engine
// state is not mutated in that case.
var ErrInvalidObservation = errors.New("invalid observation")

// Config holds the two tunables of the signal engine.
type Config struct {
	WindowSize int     // deviation window capacity N, must be > 0
	Threshold  float64 // z-score magnitude that triggers BUY/SELL, must be > 0
}

// Validate checks the config. A misconfigured engine must never exist,
// so constructors treat a validation failure as fatal.
func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be > 0, got %d", c.WindowSize)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("zscore threshold must be > 0, got %v", c.Threshold)
	}
	return nil
}

// Engine holds the cumulative VWAP state and the rolling deviation window
// for a single instrument.
//
// VWAP is session-anchored: cumulative price*volume over cumulative volume
// since the last Reset. The deviation window keeps the most recent N values
// of (price - vwap) in a preallocated circular buffer, with running sum and
// sum-of-squares so ingest never rescans the window.
type Engine struct {
	cfg Config

	// Cumulative VWAP state — reset only via Reset().
	cumPV  float64 // sum of price*volume since last reset
	cumVol float64 // sum of volume since last reset, non-decreasing

	// Deviation window (circular buffer).
	buf   []float64
	idx   int // next write position
	count int // total deviations recorded since last reset
	sum   float64
	sumSq float64
}

// NewEngine creates a signal engine. Returns an error if cfg is invalid.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg: cfg,
		buf: make([]float64, cfg.WindowSize),
	}, nil
}

// Ready returns true once the deviation window is full and z-scores are
// meaningful (the ACTIVE state). Reset returns the engine to warm-up.
func (e *Engine) Ready() bool {
	return e.count >= e.cfg.WindowSize
}

// CumulativeVolume returns the total volume seen since the last reset.
func (e *Engine) CumulativeVolume() float64 {
	return e.cumVol
}

// Ingest consumes one observation and returns the resulting signal.
//
// Malformed input is rejected with ErrInvalidObservation before any state
// is touched, so a failed ingest is a no-op. Zero cumulative volume and a
// zero-stddev window are expected transient states and yield HOLD rather
// than an error.
func (e *Engine) Ingest(obs model.Observation) (model.SignalResult, error) {
	if err := validate(obs); err != nil {
		return model.SignalResult{}, err
	}

	e.cumPV += obs.Price * obs.Volume
	e.cumVol += obs.Volume

	res := model.SignalResult{
		Symbol:   obs.Symbol,
		Exchange: obs.Exchange,
		Price:    obs.Price,
		Action:   model.ActionHold,
		TS:       obs.TS,
	}

	if e.cumVol == 0 {
		// No positive-volume observation yet — VWAP is undefined and the
		// deviation window stays untouched.
		return res, nil
	}

	vwap := e.cumPV / e.cumVol
	dev := obs.Price - vwap
	res.VWAP = vwap
	res.Deviation = dev

	e.push(dev)

	if e.count < e.cfg.WindowSize {
		// Warm-up: z-score undefined, always HOLD.
		return res, nil
	}
	res.Ready = true

	n := float64(e.cfg.WindowSize)
	mean := e.sum / n
	std := e.stddev(mean, n)
	if std == 0 {
		// All deviations identical — neutral output, never a division by zero.
		return res, nil
	}

	z := (dev - mean) / std
	res.ZScore = z
	switch {
	case z <= -e.cfg.Threshold:
		res.Action = model.ActionBuy // price far below fair value
	case z >= e.cfg.Threshold:
		res.Action = model.ActionSell // price far above fair value
	}
	return res, nil
}

// Reset clears the cumulative VWAP state and the deviation window,
// starting a fresh accounting period (e.g. a new trading session).
func (e *Engine) Reset() {
	e.cumPV = 0
	e.cumVol = 0
	e.idx = 0
	e.count = 0
	e.sum = 0
	e.sumSq = 0
	for i := range e.buf {
		e.buf[i] = 0
	}
}

// push appends a deviation to the circular window, evicting the oldest
// entry once capacity is reached (FIFO, length never exceeds N).
func (e *Engine) push(dev float64) {
	if e.count >= e.cfg.WindowSize {
		old := e.buf[e.idx]
		e.sum -= old
		e.sumSq -= old * old
	}
	e.buf[e.idx] = dev
	e.sum += dev
	e.sumSq += dev * dev
	e.idx = (e.idx + 1) % e.cfg.WindowSize
	e.count++
}

// stddev computes the sample standard deviation of the window from the
// running sums. Sample (N-1) variant — see DESIGN.md. For a window of one
// the sample variance is undefined; treat it as zero spread.
func (e *Engine) stddev(mean, n float64) float64 {
	if e.cfg.WindowSize < 2 {
		return 0
	}
	variance := (e.sumSq - e.sum*mean) / (n - 1)
	if variance < 0 {
		// Floating-point residue from the running sums.
		variance = 0
	}
	return math.Sqrt(variance)
}

func validate(obs model.Observation) error {
	if !(obs.Price > 0) || math.IsInf(obs.Price, 0) {
		return fmt.Errorf("%w: price must be > 0, got %v", ErrInvalidObservation, obs.Price)
	}
	if obs.Volume < 0 || math.IsNaN(obs.Volume) || math.IsInf(obs.Volume, 0) {
		return fmt.Errorf("%w: volume must be >= 0, got %v", ErrInvalidObservation, obs.Volume)
	}
	return nil
}
