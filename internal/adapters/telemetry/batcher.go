// Package telemetry publishes the result stream as OpenTelemetry spans.
package telemetry

import (
	"bytes"
	"sync"
	"time"

	"go.trai.ch/zerr"
)

const (
	// DefaultBatchSize is the buffered byte count that forces a flush.
	DefaultBatchSize = 4096
	// DefaultBatchInterval is the longest time output stays buffered.
	DefaultBatchInterval = 250 * time.Millisecond
)

var errBatcherClosed = zerr.New("batcher is closed")

// Batcher buffers writes and hands them to a callback in chunks, either when
// the buffer reaches its size limit or when the interval elapses. It is safe for concurrent use.
type Batcher struct {
	size     int
	interval time.Duration
	emit     func([]byte)

	mu     sync.Mutex
	buf    bytes.Buffer
	ticker *time.Ticker
	stop   chan struct{}
	closed bool
}

// NewBatcher starts a Batcher. Non-positive limits select the defaults.
// Close must be called to stop its flush loop.
func NewBatcher(size int, interval time.Duration, emit func([]byte)) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if interval <= 0 {
		interval = DefaultBatchInterval
	}

	b := &Batcher{
		size:     size,
		interval: interval,
		emit:     emit,
		ticker:   time.NewTicker(interval),
		stop:     make(chan struct{}),
	}
	go b.loop()
	return b
}

// Write buffers p and flushes when the size limit is reached.
func (b *Batcher) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errBatcherClosed
	}

	n, _ := b.buf.Write(p)
	if b.buf.Len() >= b.size {
		b.flushLocked()
		b.ticker.Reset(b.interval)
	}
	return n, nil
}

// Flush emits whatever is buffered.
func (b *Batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.flushLocked()
	}
}

// Close stops the flush loop and emits the remaining output. It is idempotent.
func (b *Batcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.stop)
	b.flushLocked()
	return nil
}

func (b *Batcher) loop() {
	defer b.ticker.Stop()
	for {
		select {
		case <-b.ticker.C:
			b.Flush()
		case <-b.stop:
			return
		}
	}
}

func (b *Batcher) flushLocked() {
	if b.buf.Len() == 0 {
		return
	}
	data := bytes.Clone(b.buf.Bytes())
	b.buf.Reset()
	if b.emit != nil {
		b.emit(data)
	}
}
