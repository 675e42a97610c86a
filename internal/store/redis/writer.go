package redis

import (
	"context"
	"fmt"
	"log"
	"time"
	"unsafe"

	"vwap-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: keep roughly the last few hours of signals per instrument
	signalStreamMaxLen = 10000
	defaultLatestTTL   = 30 * time.Minute

	// Engine snapshots also land in SQLite for durability; Redis copy is a
	// fast-path for warm restarts.
	snapshotKey = "sig:engine:snapshot"
	snapshotTTL = 24 * time.Hour
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes signal results and engine snapshots to Redis.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads signal results from sigCh and writes them to Redis.
// Blocks until ctx is cancelled or sigCh is closed.
func (w *Writer) Run(ctx context.Context, sigCh <-chan model.SignalResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-sigCh:
			if !ok {
				return
			}
			if err := w.writeSignal(ctx, res); err != nil {
				log.Printf("[redis] signal pipeline error for %s: %v", res.Key(), err)
			}
		}
	}
}

// WriteSignalBatch writes multiple signal results in a single Redis pipeline.
// Batches XADD + SET + PUBLISH for all results into one network roundtrip.
func (w *Writer) WriteSignalBatch(ctx context.Context, results []model.SignalResult) error {
	if len(results) == 0 {
		return nil
	}

	pipe := w.client.Pipeline()
	for i := range results {
		res := &results[i]
		if !res.Ready {
			continue // warm-up outputs are not persisted
		}

		jsonBytes := res.JSON()
		// Zero-copy []byte→string (safe: jsonBytes is not mutated after this)
		jsonData := *(*string)(unsafe.Pointer(&jsonBytes))

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: res.StreamKey(),
			MaxLen: signalStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Set(ctx, res.LatestKey(), jsonData, defaultLatestTTL)
		pipe.Publish(ctx, res.PubSubChannel(), jsonData)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis signal batch (%d results): %w", len(results), err)
	}
	return nil
}

// writeSignal performs the pipelined XADD + SET + PUBLISH for a single result.
// Not-ready results are published for dashboards but never persisted.
func (w *Writer) writeSignal(ctx context.Context, res model.SignalResult) error {
	jsonBytes := res.JSON()
	jsonData := *(*string)(unsafe.Pointer(&jsonBytes))
	pubsubCh := res.PubSubChannel()

	if !res.Ready {
		return w.client.Publish(ctx, pubsubCh, jsonData).Err()
	}

	pipe := w.client.Pipeline()

	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: res.StreamKey(),
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, res.LatestKey(), jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	_, err := pipe.Exec(ctx)
	return err
}

// SaveSnapshotJSON stores a JSON-encoded engine snapshot with a 24h TTL.
func (w *Writer) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	return w.client.Set(ctx, snapshotKey, string(data), snapshotTTL).Err()
}

// ReadLatestSnapshotJSON loads the engine snapshot, or nil if none is stored.
func (w *Writer) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	data, err := w.client.Get(ctx, snapshotKey).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
