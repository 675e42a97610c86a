package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"vwap-systemv1/config"
	"vwap-systemv1/internal/bus"
	"vwap-systemv1/internal/logger"
	"vwap-systemv1/internal/marketdata/feed"
	"vwap-systemv1/internal/metrics"
	"vwap-systemv1/internal/model"
	"vwap-systemv1/internal/notification"
	"vwap-systemv1/internal/paper"
	"vwap-systemv1/internal/ringbuf"
	"vwap-systemv1/internal/session"
	redisstore "vwap-systemv1/internal/store/redis"
	sqlitestore "vwap-systemv1/internal/store/sqlite"
	"vwap-systemv1/internal/vwap"
)

const snapshotInterval = 30 * time.Second

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[sigengine] starting...")

	cfg := config.Load()
	applog := logger.Init("sigengine", slog.LevelInfo)

	engineCfg := vwap.Config{
		WindowSize: cfg.WindowSize,
		Threshold:  cfg.Threshold,
	}
	if err := engineCfg.Validate(); err != nil {
		log.Fatalf("[sigengine] bad engine config: %v", err)
	}
	log.Printf("[sigengine] window=%d threshold=%.2f rollover=%02d:00 UTC",
		cfg.WindowSize, cfg.Threshold, cfg.SessionRolloverHour)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite writer (off hot path) ----
	for _, p := range []string{cfg.SQLitePath, cfg.JournalPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Fatalf("[sigengine] cannot create data dir %s: %v", dir, err)
			}
		}
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[sigengine] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlReader := sqlitestore.NewReaderFromDB(sqlWriter.DB())
	health.SetSQLiteOK(true)
	log.Println("[sigengine] sqlite writer ready")

	// ---- Redis writer with circuit breaker ----
	var redisWriter *redisstore.Writer
	var bufferedWriter *redisstore.BufferedWriter
	redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[sigengine] WARNING: redis init failed: %v (continuing without redis)", err)
		health.SetRedisConnected(false)
		redisWriter = nil
	} else {
		health.SetRedisConnected(true)
		cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			log.Printf("[sigengine] redis circuit breaker: %s → %s", from, to)
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
		}
		bufferedWriter = redisstore.NewBufferedWriter(ctx, redisWriter, cb, 10000)
		bufferedWriter.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
		log.Println("[sigengine] redis writer ready")
	}

	// ---- Periodic liveness checks ----
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Restore engine state: Redis snapshot → SQLite snapshot → cold ----
	restorer := vwap.NewRestorer(engineCfg)
	snap := loadSnapshot(ctx, redisWriter, sqlReader)
	book, err := restorer.RestoreFromSnap(snap)
	if err != nil {
		log.Fatalf("[sigengine] engine init failed: %v", err)
	}
	if snap != nil && !snap.TakenAt.IsZero() {
		restorer.Backfill(book, sqlReader, snap.TakenAt.UnixMilli(), nil)
	}

	book.OnReject = func() { prom.ObservationsRejected.Inc() }
	book.OnDrop = func() { prom.FanoutDropsTotal.WithLabelValues("engine").Inc() }
	book.OnProcessed = func(d time.Duration) { prom.SignalComputeDur.Observe(d.Seconds()) }

	resetCh := make(chan struct{}, 1)
	snapReqCh := make(chan chan *vwap.BookSnapshot)
	book.ResetRequests = resetCh
	book.SnapshotRequests = snapReqCh

	// ---- Pipeline channels ----
	obsCh := make(chan model.Observation, 10000)
	bookObsCh := make(chan model.Observation, 10000)
	sqliteObsCh := make(chan model.Observation, 10000)
	resultCh := make(chan model.SignalResult, 5000)
	fanoutInCh := make(chan model.SignalResult, 5000)

	// ---- Feed ingest: WS → SPSC ring → obsCh ----
	ring := ringbuf.New(16384)
	ingest, err := feed.New(feed.Config{
		URL:               cfg.FeedURL,
		ReconnectDelay:    2 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
	}, ring)
	if err != nil {
		log.Fatalf("[sigengine] feed init failed: %v", err)
	}
	ingest.OnConnect = func() { health.SetWSConnected(true) }
	ingest.OnReconnect = func() {
		health.SetWSConnected(false)
		prom.WSReconnects.Inc()
	}

	go ingest.Start(ctx)
	go ingest.Drain(ctx, obsCh)

	// Track ring overflow drops
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		var last uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur := ring.Overflow()
				if cur > last {
					prom.RingBufOverflow.Add(float64(cur - last))
					last = cur
				}
			}
		}
	}()

	// ---- Tee: obsCh → engine (blocking) + SQLite (best effort) ----
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case obs, ok := <-obsCh:
				if !ok {
					return
				}
				prom.ObservationsTotal.Inc()
				health.SetLastObsTime(obs.TS)
				select {
				case bookObsCh <- obs:
				case <-ctx.Done():
					return
				}
				select {
				case sqliteObsCh <- obs:
				default:
				}
			}
		}
	}()
	go sqlWriter.Run(ctx, sqliteObsCh)

	// ---- Engine (HOT PATH) ----
	go book.Run(ctx, bookObsCh, resultCh)

	// Count emitted signals by action on the way to the fanout
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-resultCh:
				if !ok {
					return
				}
				prom.SignalsTotal.WithLabelValues(string(res.Action)).Inc()
				select {
				case fanoutInCh <- res:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// ---- Fan out signal results: SQLite + Redis + paper trader ----
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDropsTotal.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}

	sqliteSigCh := fanout.Subscribe()
	var redisSigCh <-chan model.SignalResult
	if bufferedWriter != nil {
		redisSigCh = fanout.Subscribe()
	}
	var paperSigCh <-chan model.SignalResult
	if cfg.PaperEnabled {
		paperSigCh = fanout.Subscribe()
	}

	go fanout.Run(ctx, fanoutInCh)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for i, s := range fanout.ChannelStats() {
					if s.Cap > 0 {
						pct := float64(s.Len) / float64(s.Cap) * 100
						prom.ChannelSaturationPct.WithLabelValues("fanout_" + strconv.Itoa(i)).Set(pct)
					}
				}
			}
		}
	}()

	go sqlWriter.RunSignals(ctx, sqliteSigCh)

	if bufferedWriter != nil {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case res, ok := <-redisSigCh:
					if !ok {
						return
					}
					start := time.Now()
					if err := bufferedWriter.WriteSignal(res); err != nil {
						log.Printf("[sigengine] redis write error for %s: %v", res.Key(), err)
					}
					prom.RedisWriteDur.Observe(time.Since(start).Seconds())
				}
			}
		}()
	}

	// ---- Paper trader ----
	if cfg.PaperEnabled {
		trader, err := paper.New(paper.Config{
			InitialBalance:  cfg.PaperInitialBalance,
			FeeRate:         cfg.PaperFeeRate,
			TradeAllocation: cfg.PaperTradeAllocation,
			BuyThreshold:    cfg.PaperBuyThreshold,
			SellThreshold:   cfg.PaperSellThreshold,
		})
		if err != nil {
			log.Fatalf("[sigengine] paper trader init failed: %v", err)
		}
		prom.PaperBalance.Set(cfg.PaperInitialBalance)

		journal, err := paper.NewJournal(cfg.JournalPath)
		if err != nil {
			log.Fatalf("[sigengine] journal init failed: %v", err)
		}
		defer journal.Close()

		notifier := buildNotifier(cfg)

		trader.OnFill = func(f paper.Fill) {
			if err := journal.RecordFill(f); err != nil {
				log.Printf("[sigengine] journal write error: %v", err)
			}
			applog.Info("paper fill",
				"trace_id", logger.GenerateTraceID(f.Exchange+":"+f.Symbol, f.FilledAt),
				"order_id", f.OrderID,
				"action", f.Action,
				"price", f.Price,
				"qty", f.Qty,
				"zscore", f.ZScore,
				"balance", f.Balance,
			)
			prom.PaperBalance.Set(f.Balance)
			prom.PaperTradesTotal.WithLabelValues(f.Action).Inc()
			prom.PaperFeesTotal.Add(f.Fee)

			alert := notification.FillAlert(f)
			go func() {
				sendCtx, sendCancel := context.WithTimeout(ctx, 10*time.Second)
				defer sendCancel()
				notifier.Send(sendCtx, alert)
			}()
		}

		go trader.Run(ctx, paperSigCh)
		log.Printf("[sigengine] paper trader ready (balance=%.2f buy=%.2f sell=%.2f)",
			cfg.PaperInitialBalance, cfg.PaperBuyThreshold, cfg.PaperSellThreshold)
	}

	// ---- Session rollover scheduler ----
	scheduler, err := session.NewScheduler(session.Config{RolloverHour: cfg.SessionRolloverHour}, func() {
		prom.SessionResets.Inc()
		select {
		case resetCh <- struct{}{}:
		default:
		}
	})
	if err != nil {
		log.Fatalf("[sigengine] session scheduler init failed: %v", err)
	}
	go scheduler.Run(ctx)

	// ---- Periodic engine checkpoints ----
	go func() {
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reply := make(chan *vwap.BookSnapshot, 1)
				select {
				case snapReqCh <- reply:
				case <-ctx.Done():
					return
				}
				select {
				case snap := <-reply:
					if len(snap.Instruments) == 0 {
						continue
					}
					saveSnapshot(ctx, snap, bufferedWriter, sqlWriter)
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	log.Println("[sigengine] pipeline ready: [Feed WS] → [VWAP/Z-Score] → [Redis/SQLite/Paper]")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[sigengine] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if redisWriter != nil {
		redisWriter.Close()
	}

	log.Println("[sigengine] shutdown complete.")
}

// loadSnapshot tries Redis first (fast path), then SQLite.
func loadSnapshot(ctx context.Context, rw *redisstore.Writer, sr *sqlitestore.Reader) *vwap.BookSnapshot {
	var data []byte
	var err error

	if rw != nil {
		data, err = rw.ReadLatestSnapshotJSON(ctx)
		if err != nil {
			log.Printf("[sigengine] redis snapshot read failed: %v", err)
		}
	}
	if data == nil {
		data, err = sr.ReadLatestSnapshotJSON(ctx)
		if err != nil {
			log.Printf("[sigengine] sqlite snapshot read failed: %v", err)
		}
	}
	if data == nil {
		return nil
	}

	var snap vwap.BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[sigengine] snapshot unmarshal failed: %v — cold starting", err)
		return nil
	}
	return &snap
}

// saveSnapshot persists a checkpoint to both stores.
func saveSnapshot(ctx context.Context, snap *vwap.BookSnapshot, bw *redisstore.BufferedWriter, sw *sqlitestore.Writer) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[sigengine] snapshot marshal failed: %v", err)
		return
	}

	if err := sw.SaveSnapshotJSON(ctx, data); err != nil {
		log.Printf("[sigengine] sqlite snapshot save failed: %v", err)
	}
	if bw != nil {
		if err := bw.Underlying().SaveSnapshotJSON(ctx, data); err != nil {
			log.Printf("[sigengine] redis snapshot save failed: %v", err)
		}
	}
}

// buildNotifier assembles the configured alert backends, falling back to logs.
func buildNotifier(cfg *config.Config) notification.Notifier {
	var backends []notification.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if len(backends) == 0 {
		return notification.NewLogNotifier()
	}
	return notification.NewFanout(backends...)
}
