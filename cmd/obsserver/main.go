// cmd/obsserver — Demo WebSocket observation server.
// Broadcasts simulated (price, volume) observations for testing sigengine
// without a real market data feed.
//
// Observation JSON shape is identical to model.Observation:
//
//	{"symbol":"BTCUSDT","exchange":"BINANCE","price":64250.5,"volume":0.42,"ts":"..."}
//
// Config (env vars):
//
//	OBS_SERVER_ADDR  — listen address  (default: ":8081")
//	OBS_SYMBOLS      — comma-separated SYMBOL:EXCHANGE pairs (default: "BTCUSDT:BINANCE")
//	OBS_INTERVAL_MS  — broadcast interval milliseconds (default: "100")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// obsMsg mirrors model.Observation for JSON serialisation.
type obsMsg struct {
	Symbol   string    `json:"symbol"`
	Exchange string    `json:"exchange"`
	Price    float64   `json:"price"`
	Volume   float64   `json:"volume"`
	TS       time.Time `json:"ts"`
}

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol   string
	Exchange string
	Price    float64 // current simulated price
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop observation
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[obsserver] upgrade error: %v", err)
			return
		}
		log.Printf("[obsserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[obsserver] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends observation JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Observation generator ───────────────────────────────────────────────────

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	newPrice := price * (1 + pct)
	if newPrice < 0.0001 {
		newPrice = 0.0001
	}
	return newPrice
}

func runGenerator(h *hub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for i := range instruments {
			instruments[i].Price = walkPrice(instruments[i].Price)
			msg := obsMsg{
				Symbol:   instruments[i].Symbol,
				Exchange: instruments[i].Exchange,
				Price:    instruments[i].Price,
				Volume:   rand.Float64()*10 + 0.01,
				TS:       time.Now().UTC(),
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[obsserver] starting demo observation server...")

	// Config
	addr := envOrDefault("OBS_SERVER_ADDR", ":8081")
	symbolsEnv := envOrDefault("OBS_SYMBOLS", "BTCUSDT:BINANCE")
	intervalMs := envIntOrDefault("OBS_INTERVAL_MS", 100)

	// Parse SYMBOL:EXCHANGE pairs
	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[obsserver] no instruments configured via OBS_SYMBOLS")
	}
	log.Printf("[obsserver] instruments: %+v", instruments)
	log.Printf("[obsserver] broadcast interval: %dms", intervalMs)

	h := newHub()

	// Start observation generator
	go runGenerator(h, instruments, intervalMs)

	// HTTP routes
	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"obsserver"}`)
	})

	log.Printf("[obsserver] listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[obsserver] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	// Rough starting prices for common demo symbols
	defaultPrices := map[string]float64{
		"BTCUSDT": 64000,
		"ETHUSDT": 3400,
		"SOLUSDT": 150,
	}

	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.SplitN(part, ":", 2)
		if len(seg) != 2 {
			log.Printf("[obsserver] skipping malformed symbol entry: %q", part)
			continue
		}
		symbol, exchange := strings.TrimSpace(seg[0]), strings.TrimSpace(seg[1])
		price := defaultPrices[symbol]
		if price == 0 {
			price = 100
		}
		result = append(result, instrument{
			Symbol:   symbol,
			Exchange: exchange,
			Price:    price,
		})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
