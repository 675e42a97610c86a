package model

import (
	"encoding/json"
	"time"
)

// Action represents the discrete trading signal derived from a z-score.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// SignalResult is the per-observation output of the signal engine: the
// session VWAP, the deviation of price from it, the rolling z-score of that
// deviation, and the classified action.
//
// Ready is false while the deviation window is still warming up; in that
// state ZScore is meaningless and Action is always HOLD.
type SignalResult struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Price     float64   `json:"price"`
	VWAP      float64   `json:"vwap"`
	Deviation float64   `json:"deviation"` // price - vwap
	ZScore    float64   `json:"zscore"`
	Action    Action    `json:"action"`
	Ready     bool      `json:"ready"` // true once the deviation window is full
	TS        time.Time `json:"ts"`    // timestamp of the observation that produced this
}

// Key returns "exchange:symbol".
func (r *SignalResult) Key() string {
	return r.Exchange + ":" + r.Symbol
}

// StreamKey returns the Redis stream key: "sig:{exchange}:{symbol}".
func (r *SignalResult) StreamKey() string {
	return "sig:" + r.Exchange + ":" + r.Symbol
}

// LatestKey returns the Redis key holding the most recent result:
// "sig:latest:{exchange}:{symbol}".
func (r *SignalResult) LatestKey() string {
	return "sig:latest:" + r.Exchange + ":" + r.Symbol
}

// PubSubChannel returns the Redis PubSub channel for live consumers.
func (r *SignalResult) PubSubChannel() string {
	return "pub:sig:" + r.Exchange + ":" + r.Symbol
}

// JSON returns the JSON-encoded signal result.
func (r *SignalResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
