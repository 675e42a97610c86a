// cmd/backtest replays stored observations from SQLite through the VWAP
// z-score engine and an optional paper trader to validate signal behavior
// without a live feed.
//
// Usage:
//
//	go run ./cmd/backtest --speed=100 --window=20 --threshold=2.0 --from=0
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"vwap-systemv1/internal/marketdata/replay"
	"vwap-systemv1/internal/model"
	"vwap-systemv1/internal/paper"
	sqlitestore "vwap-systemv1/internal/store/sqlite"
	"vwap-systemv1/internal/vwap"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	fromTS := flag.Int64("from", 0, "Unix millisecond timestamp to start replay from (0=all)")
	dbPath := flag.String("db", "data/signals.db", "Path to SQLite database")
	window := flag.Int("window", vwap.DefaultWindowSize, "Rolling deviation window size")
	threshold := flag.Float64("threshold", vwap.DefaultThreshold, "Z-score threshold")
	trade := flag.Bool("trade", true, "Run the paper trader over the replayed signals")
	balance := flag.Float64("balance", paper.DefaultInitialBalance, "Paper trading starting balance")
	flag.Parse()

	// Open SQLite
	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	// Build the signal engine (always cold for a backtest)
	book, err := vwap.NewBook(vwap.Config{
		WindowSize: *window,
		Threshold:  *threshold,
	})
	if err != nil {
		log.Fatalf("[backtest] engine init failed: %v", err)
	}

	var trader *paper.Trader
	if *trade {
		trader, err = paper.New(paper.Config{InitialBalance: *balance})
		if err != nil {
			log.Fatalf("[backtest] paper trader init failed: %v", err)
		}
	}

	// Setup context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Replay in background
	replayer := replay.New(reader)
	obsCh := make(chan model.Observation, 10000)

	go func() {
		if err := replayer.Run(ctx, *fromTS, *speed, obsCh); err != nil {
			log.Printf("[backtest] replay error: %v", err)
		}
		close(obsCh)
	}()

	// Process observations through the engine
	processed := 0
	rejected := 0
	readyResults := 0
	actions := map[model.Action]int{}
	lastPrices := map[string]float64{}

	for obs := range obsCh {
		res, err := book.Process(obs)
		if err != nil {
			rejected++
			continue
		}
		processed++
		lastPrices[obs.Key()] = obs.Price

		if res.Ready {
			readyResults++
			actions[res.Action]++
			if res.Action != model.ActionHold && (readyResults <= 10 || readyResults%100 == 0) {
				fmt.Printf("  [%s] %s %s:%s price=%.4f vwap=%.4f z=%+.3f\n",
					res.TS.Format("15:04:05"), res.Action, res.Exchange, res.Symbol,
					res.Price, res.VWAP, res.ZScore)
			}
		}

		if trader != nil {
			trader.Execute(res)
		}
	}

	// Print summary
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Observations:      %-16d ║\n", processed)
	fmt.Printf("║  Rejected:          %-16d ║\n", rejected)
	fmt.Printf("║  Ready results:     %-16d ║\n", readyResults)
	fmt.Printf("║  BUY / SELL / HOLD: %d / %d / %-8d ║\n",
		actions[model.ActionBuy], actions[model.ActionSell], actions[model.ActionHold])
	if trader != nil {
		fmt.Printf("║  Fills:             %-16d ║\n", len(trader.Fills()))
		fmt.Printf("║  Fees paid:         %-16.4f ║\n", trader.TotalFees())
		fmt.Printf("║  Final balance:     %-16.2f ║\n", trader.Balance())
		fmt.Printf("║  Final equity:      %-16.2f ║\n", trader.Equity(lastPrices))
	}
	fmt.Println("╚══════════════════════════════════════╝")
}
