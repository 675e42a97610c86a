package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Signal engine
	WindowSize int     // rolling deviation window length
	Threshold  float64 // z-score threshold for BUY/SELL

	// Session
	SessionRolloverHour int // UTC hour at which cumulative VWAP resets

	// Feed
	FeedURL string // WebSocket observation feed

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	JournalPath   string
	MetricsAddr   string

	// Paper trading
	PaperEnabled         bool
	PaperInitialBalance  float64
	PaperFeeRate         float64
	PaperTradeAllocation float64
	PaperBuyThreshold    float64
	PaperSellThreshold   float64

	// Notifications (optional; empty disables the backend)
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		WindowSize:          getEnvInt("SIGNAL_WINDOW_SIZE", 20),
		Threshold:           getEnvFloat("SIGNAL_THRESHOLD", 2.0),
		SessionRolloverHour: getEnvInt("SESSION_ROLLOVER_HOUR", 0),

		FeedURL: getEnv("FEED_WS_URL", "ws://localhost:8081/ws"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/trades.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		PaperEnabled:         getEnvBool("PAPER_ENABLED", true),
		PaperInitialBalance:  getEnvFloat("PAPER_INITIAL_BALANCE", 10000),
		PaperFeeRate:         getEnvFloat("PAPER_FEE_RATE", 0.001),
		PaperTradeAllocation: getEnvFloat("PAPER_TRADE_ALLOCATION", 0.4),
		PaperBuyThreshold:    getEnvFloat("PAPER_BUY_THRESHOLD", -1.1),
		PaperSellThreshold:   getEnvFloat("PAPER_SELL_THRESHOLD", 0.7),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("ALERT_WEBHOOK_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
