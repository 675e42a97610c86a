package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"vwap-systemv1/internal/model"
)

// BufferedWriter wraps a Redis Writer with a circuit breaker.
// While the circuit is open, signal writes are buffered locally and flushed
// when the circuit closes again, so a Redis outage never blocks the engine.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer [][]byte // JSON-encoded signal results
	maxBuf int      // max buffered writes before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([][]byte, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteSignal writes a signal result through the circuit breaker.
// If the circuit is open, the write is buffered locally.
func (bw *BufferedWriter) WriteSignal(res model.SignalResult) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.writeSignal(bw.ctx, res)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite(res)
		return nil // buffered, not lost
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(res model.SignalResult) {
	data, err := json.Marshal(res)
	if err != nil {
		log.Printf("[buffered-writer] marshal error: %v", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full — drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, data)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([][]byte, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, data := range toFlush {
		var res model.SignalResult
		if err := json.Unmarshal(data, &res); err != nil {
			log.Printf("[buffered-writer] skipping corrupt buffered entry: %v", err)
			continue
		}
		if err := bw.writer.writeSignal(bw.ctx, res); err != nil {
			log.Printf("[buffered-writer] flush write error for %s: %v", res.Key(), err)
			continue
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered writes", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
