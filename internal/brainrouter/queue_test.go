package brainrouter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmissionQueueAllowsUpToCapacity(t *testing.T) {
	q := newAdmissionQueue(2)
	require.NoError(t, q.acquire(context.Background()))
	require.NoError(t, q.acquire(context.Background()))

	acquired := make(chan struct{})
	go func() {
		_ = q.acquire(context.Background())
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	q.release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("third acquire should unblock after release")
	}
}

func TestAdmissionQueueFIFOOrder(t *testing.T) {
	q := newAdmissionQueue(1)
	require.NoError(t, q.acquire(context.Background()))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	started := make(chan struct{}, 3)

	for i := 1; i <= 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			time.Sleep(time.Duration(i) * 10 * time.Millisecond)
			require.NoError(t, q.acquire(context.Background()))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			q.release()
		}()
	}
	for i := 0; i < 3; i++ {
		<-started
	}
	time.Sleep(100 * time.Millisecond)
	q.release()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestAdmissionQueueAcquireCanceled(t *testing.T) {
	q := newAdmissionQueue(1)
	require.NoError(t, q.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
