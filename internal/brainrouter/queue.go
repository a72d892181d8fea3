package brainrouter

import (
	"container/list"
	"context"
	"sync"
)

// admissionQueue is a FIFO ticket queue bounded by max_concurrency. Modeled
// after tarsy's pkg/queue/pool.go worker-slot accounting, but implemented
// as an explicit waiter list guarded by a mutex so wake-up order is
// guaranteed FIFO even under contention — a plain buffered-channel
// semaphore alone permits a late acquirer to race ahead of an earlier one
// parked on the same receive.
type admissionQueue struct {
	mu        sync.Mutex
	available int
	waiters   *list.List // of chan struct{}
}

func newAdmissionQueue(maxConcurrency int) *admissionQueue {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &admissionQueue{available: maxConcurrency, waiters: list.New()}
}

// acquire blocks until a ticket is available, honoring FIFO order across
// concurrent callers, or returns ctx.Err() if canceled first.
func (q *admissionQueue) acquire(ctx context.Context) error {
	q.mu.Lock()
	if q.available > 0 && q.waiters.Len() == 0 {
		q.available--
		q.mu.Unlock()
		return nil
	}
	my := make(chan struct{})
	elem := q.waiters.PushBack(my)
	q.mu.Unlock()

	select {
	case <-my:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		// If we were already woken between the ctx.Done() firing and
		// acquiring the lock, don't leak a ticket: drain the signal and
		// release it to the next waiter instead of holding it forever.
		select {
		case <-my:
			q.releaseLocked()
			q.mu.Unlock()
			return ctx.Err()
		default:
		}
		q.waiters.Remove(elem)
		q.mu.Unlock()
		return ctx.Err()
	}
}

// release returns a ticket to the pool, waking the next FIFO waiter.
func (q *admissionQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.releaseLocked()
}

func (q *admissionQueue) releaseLocked() {
	if front := q.waiters.Front(); front != nil {
		q.waiters.Remove(front)
		ch := front.Value.(chan struct{})
		close(ch)
		return
	}
	q.available++
}
