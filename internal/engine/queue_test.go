package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/ir"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for seq := int64(1); seq <= 3; seq++ {
		require.True(t, q.Enqueue(ir.Transition{Seq: seq}))
	}
	assert.Equal(t, 3, q.Len())

	for want := int64(1); want <= 3; want++ {
		got, ok, drained := q.TryDequeue()
		require.True(t, ok)
		assert.False(t, drained)
		assert.Equal(t, want, got.Seq)
	}
}

func TestEventQueue_TryDequeue_Empty(t *testing.T) {
	q := newEventQueue()

	_, ok, drained := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
	assert.False(t, drained, "open queue is never drained")
}

func TestEventQueue_CloseDrains(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(ir.Transition{Seq: 1})
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(ir.Transition{Seq: 2}), "enqueue after close should fail")

	got, ok, drained := q.TryDequeue()
	require.True(t, ok, "queued transitions survive close")
	assert.False(t, drained)
	assert.Equal(t, int64(1), got.Seq)

	_, ok, drained = q.TryDequeue()
	assert.False(t, ok)
	assert.True(t, drained)
}

func TestEventQueue_WaitSignals(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(ir.Transition{Seq: 1})
	}()

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("Wait did not signal after enqueue")
	}
	_, ok, _ := q.TryDequeue()
	assert.True(t, ok)
}

func TestEventQueue_ConcurrentEnqueue(t *testing.T) {
	q := newEventQueue()
	const goroutines, perGoroutine = 10, 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				q.Enqueue(ir.Transition{})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*perGoroutine, q.Len())
}
