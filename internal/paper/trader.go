package paper

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"vwap-systemv1/internal/model"
)

// Defaults for the simulated account.
const (
	DefaultInitialBalance  = 10000.0
	DefaultFeeRate         = 0.001 // 0.1% per side
	DefaultTradeAllocation = 0.4   // fraction of cash committed per entry
	DefaultBuyThreshold    = -1.1
	DefaultSellThreshold   = 0.7
)

// Config configures the paper trader.
//
// Entries and exits fire on threshold CROSSINGS, not levels: a buy requires
// the z-score to move from above BuyThreshold to at-or-below it, a sell the
// mirror move through SellThreshold. This keeps the trader from re-entering
// on every tick while the z-score sits in the extreme region.
type Config struct {
	InitialBalance  float64
	FeeRate         float64 // proportional fee charged on each fill's notional
	TradeAllocation float64 // fraction of current cash spent per entry, (0,1]
	BuyThreshold    float64 // negative, e.g. -1.1
	SellThreshold   float64 // positive, e.g. 0.7
}

func (c *Config) defaults() {
	if c.InitialBalance == 0 {
		c.InitialBalance = DefaultInitialBalance
	}
	if c.TradeAllocation == 0 {
		c.TradeAllocation = DefaultTradeAllocation
	}
	if c.BuyThreshold == 0 {
		c.BuyThreshold = DefaultBuyThreshold
	}
	if c.SellThreshold == 0 {
		c.SellThreshold = DefaultSellThreshold
	}
}

// Validate rejects configurations that cannot trade sensibly.
func (c Config) Validate() error {
	if c.InitialBalance < 0 {
		return fmt.Errorf("initial balance %.2f must be >= 0", c.InitialBalance)
	}
	if c.FeeRate < 0 || c.FeeRate >= 1 {
		return fmt.Errorf("fee rate %.4f out of range [0,1)", c.FeeRate)
	}
	if c.TradeAllocation != 0 && (c.TradeAllocation <= 0 || c.TradeAllocation > 1) {
		return fmt.Errorf("trade allocation %.2f out of range (0,1]", c.TradeAllocation)
	}
	if c.BuyThreshold > 0 {
		return fmt.Errorf("buy threshold %.2f must be <= 0", c.BuyThreshold)
	}
	if c.SellThreshold < 0 {
		return fmt.Errorf("sell threshold %.2f must be >= 0", c.SellThreshold)
	}
	return nil
}

// Fill represents a simulated order fill.
type Fill struct {
	OrderID  string    `json:"order_id"`
	Action   string    `json:"action"` // "BUY" or "SELL"
	Symbol   string    `json:"symbol"`
	Exchange string    `json:"exchange"`
	Price    float64   `json:"price"`
	Qty      float64   `json:"qty"`
	Fee      float64   `json:"fee"`
	ZScore   float64   `json:"zscore"`
	Balance  float64   `json:"balance"` // cash after the fill
	FilledAt time.Time `json:"filled_at"`
}

// position tracks per-instrument crossing state and holdings.
type position struct {
	prevZ   float64
	hasPrev bool
	qty     float64
	cost    float64 // total cash spent on the open position, fees included
}

// Trader simulates mean-reversion execution on z-score threshold crossings
// against a single shared cash balance.
type Trader struct {
	cfg Config

	mu        sync.RWMutex
	balance   float64
	positions map[string]*position // key: "exchange:symbol"
	fills     []Fill
	totalFees float64
	orderSeq  int64

	// OnFill is called synchronously after each fill (journal, alerts, metrics).
	OnFill func(Fill)
}

// New creates a paper trader.
func New(cfg Config) (*Trader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.defaults()
	return &Trader{
		cfg:       cfg,
		balance:   cfg.InitialBalance,
		positions: make(map[string]*position),
		fills:     make([]Fill, 0, 256),
	}, nil
}

// Run consumes signal results and simulates execution.
// Blocks until ctx is cancelled or sigCh is closed.
func (t *Trader) Run(ctx context.Context, sigCh <-chan model.SignalResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-sigCh:
			if !ok {
				return
			}
			t.Execute(res)
		}
	}
}

// Execute applies one signal result to the simulated account.
// Warm-up results only seed the previous z-score once the window is ready.
func (t *Trader) Execute(res model.SignalResult) {
	if !res.Ready {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := res.Key()
	pos := t.positions[key]
	if pos == nil {
		pos = &position{}
		t.positions[key] = pos
	}

	z := res.ZScore
	defer func() {
		pos.prevZ = z
		pos.hasPrev = true
	}()

	if !pos.hasPrev {
		return
	}

	switch {
	case pos.prevZ > t.cfg.BuyThreshold && z <= t.cfg.BuyThreshold && pos.qty == 0:
		t.openPosition(pos, res)
	case pos.prevZ < t.cfg.SellThreshold && z >= t.cfg.SellThreshold && pos.qty > 0:
		t.closePosition(pos, res)
	}
}

// openPosition spends TradeAllocation of current cash on the instrument.
// Caller holds t.mu.
func (t *Trader) openPosition(pos *position, res model.SignalResult) {
	alloc := t.balance * t.cfg.TradeAllocation
	if alloc <= 0 || res.Price <= 0 {
		return
	}

	fee := alloc * t.cfg.FeeRate
	qty := (alloc - fee) / res.Price

	t.balance -= alloc
	t.totalFees += fee
	pos.qty = qty
	pos.cost = alloc

	t.recordFill("BUY", res, qty, fee)
}

// closePosition liquidates the full position at the observed price.
// Caller holds t.mu.
func (t *Trader) closePosition(pos *position, res model.SignalResult) {
	proceeds := pos.qty * res.Price
	fee := proceeds * t.cfg.FeeRate

	t.balance += proceeds - fee
	t.totalFees += fee
	qty := pos.qty
	pos.qty = 0
	pos.cost = 0

	t.recordFill("SELL", res, qty, fee)
}

func (t *Trader) recordFill(action string, res model.SignalResult, qty, fee float64) {
	t.orderSeq++
	fill := Fill{
		OrderID:  fmt.Sprintf("PAPER-%d", t.orderSeq),
		Action:   action,
		Symbol:   res.Symbol,
		Exchange: res.Exchange,
		Price:    res.Price,
		Qty:      qty,
		Fee:      fee,
		ZScore:   res.ZScore,
		Balance:  t.balance,
		FilledAt: res.TS,
	}
	t.fills = append(t.fills, fill)

	log.Printf("[paper] %s %s:%s qty=%.6f price=%.4f fee=%.4f z=%.3f balance=%.2f order=%s",
		action, res.Exchange, res.Symbol, qty, res.Price, fee, res.ZScore, t.balance, fill.OrderID)

	if t.OnFill != nil {
		t.OnFill(fill)
	}
}

// Fills returns a snapshot of all fills.
func (t *Trader) Fills() []Fill {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cp := make([]Fill, len(t.fills))
	copy(cp, t.fills)
	return cp
}

// Balance returns the current cash balance.
func (t *Trader) Balance() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balance
}

// PositionQty returns the open quantity for "exchange:symbol", 0 if flat.
func (t *Trader) PositionQty(key string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if pos := t.positions[key]; pos != nil {
		return pos.qty
	}
	return 0
}

// TotalFees returns the cumulative fees paid.
func (t *Trader) TotalFees() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalFees
}

// Equity returns cash plus open positions marked at the given last prices
// (key: "exchange:symbol"). Positions without a price mark at cost.
func (t *Trader) Equity(lastPrices map[string]float64) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	eq := t.balance
	for key, pos := range t.positions {
		if pos.qty == 0 {
			continue
		}
		if px, ok := lastPrices[key]; ok {
			eq += pos.qty * px
		} else {
			eq += pos.cost
		}
	}
	return eq
}
