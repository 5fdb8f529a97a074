package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue()
	require.NoError(t, q.Enqueue(context.Background(), "a"))
	require.NoError(t, q.Enqueue(context.Background(), "b"))

	ctx := context.Background()
	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", first)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", second)
}

func TestMemoryQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewMemoryQueue()
	resultCh := make(chan string, 1)
	go func() {
		v, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		resultCh <- v
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), "late"))

	select {
	case v := <-resultCh:
		require.Equal(t, "late", v)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock")
	}
}

func TestMemoryQueueDequeueRespectsContextCancellation(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	require.Error(t, err)
}
