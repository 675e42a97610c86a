// Package feed provides a WebSocket ingest client that connects to an
// observation server (e.g. cmd/obsserver or any feed speaking the same JSON)
// and pushes observations into the signal pipeline.
//
// The expected JSON message format on the wire is identical to model.Observation:
//
//	{"symbol":"IOUSDC","exchange":"BINANCE","price":2.41,"volume":120.5,"ts":"..."}
package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"vwap-systemv1/internal/model"
	"vwap-systemv1/internal/ringbuf"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the observation feed.
type Config struct {
	// URL of the observation WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest connects to a plain-JSON WebSocket observation server and pushes
// model.Observation values into an SPSC ring buffer. The read loop is the
// single producer; Drain is the single consumer.
type Ingest struct {
	cfg  Config
	ring *ringbuf.Ring

	// Optional hooks — OnConnect fires after each successful dial,
	// OnReconnect after each disconnect (before the backoff sleep).
	OnConnect   func()
	OnReconnect func()
}

// New creates a new Ingest writing into ring. Returns an error if the URL
// is unparseable.
func New(cfg Config, ring *ringbuf.Ring) (*Ingest, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Ingest{cfg: cfg, ring: ring}, nil
}

// Start connects to the WebSocket and streams observations into the ring.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context) error {
	delay := ing.cfg.ReconnectDelay

	for {
		// Check context before each attempt
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// Drain pops observations off the ring and forwards them to obsCh.
// Runs until ctx is cancelled. The poll interval keeps the drain loop cheap
// when the feed is quiet without adding meaningful latency when it is busy.
func (ing *Ingest) Drain(ctx context.Context, obsCh chan<- model.Observation) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				o, ok := ing.ring.Pop()
				if !ok {
					break
				}
				select {
				case obsCh <- o:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
func (ing *Ingest) runOnce(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", ing.cfg.URL)
	if ing.OnConnect != nil {
		ing.OnConnect()
	}

	// Async context watcher — closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Check if it's a context cancellation
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var o model.Observation
		if err := json.Unmarshal(raw, &o); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}

		if o.Symbol == "" {
			log.Printf("[feed] skipping observation with empty symbol")
			continue
		}

		if !ing.ring.Push(o) {
			log.Println("[feed] ring full, dropping observation")
		}
	}
}
