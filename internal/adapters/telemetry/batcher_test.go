package telemetry_test

import (
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tern/internal/adapters/telemetry"
)

type collector struct {
	mu     sync.Mutex
	chunks []string
}

func (c *collector) emit(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, string(data))
}

func (c *collector) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chunks...)
}

func TestBatcher_FlushOnSize(t *testing.T) {
	var c collector
	b := telemetry.NewBatcher(5, time.Hour, c.emit)
	defer func() { _ = b.Close() }()

	_, err := b.Write([]byte("123"))
	require.NoError(t, err)
	assert.Empty(t, c.get())

	_, err = b.Write([]byte("456"))
	require.NoError(t, err)
	assert.Equal(t, []string{"123456"}, c.get())
}

func TestBatcher_FlushOnInterval(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var c collector
		b := telemetry.NewBatcher(100, 50*time.Millisecond, c.emit)
		defer func() { _ = b.Close() }()

		_, err := b.Write([]byte("tick"))
		require.NoError(t, err)

		time.Sleep(40 * time.Millisecond)
		synctest.Wait()
		assert.Empty(t, c.get())

		time.Sleep(20 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, []string{"tick"}, c.get())
	})
}

func TestBatcher_CloseFlushesAndRejectsWrites(t *testing.T) {
	var c collector
	b := telemetry.NewBatcher(100, time.Hour, c.emit)

	_, err := b.Write([]byte("pending"))
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, []string{"pending"}, c.get())

	_, err = b.Write([]byte("late"))
	require.Error(t, err)
}

func TestBatcher_ConcurrentWriters(t *testing.T) {
	var c collector
	b := telemetry.NewBatcher(20, 10*time.Millisecond, c.emit)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			for j := range 100 {
				_, _ = b.Write([]byte("a"))
				if j%10 == 0 {
					b.Flush()
				}
			}
		})
	}
	wg.Wait()
	require.NoError(t, b.Close())

	total := 0
	for _, chunk := range c.get() {
		total += len(chunk)
	}
	assert.Equal(t, 1000, total)
}
