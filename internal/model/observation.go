package model

import (
	"encoding/json"
	"time"
)

// Observation represents a single (price, volume) market observation for one
// instrument. Observations arrive in non-decreasing timestamp order; the
// system never reorders them.
type Observation struct {
	Symbol   string    `json:"symbol"`
	Exchange string    `json:"exchange"`
	Price    float64   `json:"price"`  // last traded price, must be > 0
	Volume   float64   `json:"volume"` // traded volume, must be >= 0
	TS       time.Time `json:"ts"`     // UTC timestamp
}

// Key returns a unique key for this observation's instrument: "exchange:symbol".
func (o *Observation) Key() string {
	return o.Exchange + ":" + o.Symbol
}

// JSON returns the JSON-encoded observation (ignoring errors for hot-path usage).
func (o *Observation) JSON() []byte {
	b, _ := json.Marshal(o)
	return b
}
