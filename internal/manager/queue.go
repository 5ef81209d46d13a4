package manager

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// targetQueue is a FIFO of target origins shared by the manager workers.
// Pop waits for an item with a timeout so callers can observe stop requests.
type targetQueue struct {
	mu     sync.Mutex
	items  *queue.Queue
	notify chan struct{}
}

func newTargetQueue() *targetQueue {
	return &targetQueue{
		items:  queue.New(),
		notify: make(chan struct{}, 1),
	}
}

func (q *targetQueue) Push(target string) {
	q.mu.Lock()
	q.items.Add(target)
	q.mu.Unlock()
	q.signal()
}

// Pop removes the oldest target. It returns false when timeout elapses or
// stop is closed before a target becomes available.
func (q *targetQueue) Pop(stop <-chan struct{}, timeout time.Duration) (string, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.items.Length() > 0 {
			target := q.items.Remove().(string)
			more := q.items.Length() > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return target, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-timer.C:
			return "", false
		case <-stop:
			return "", false
		}
	}
}

func (q *targetQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Snapshot returns the queued targets in order.
func (q *targetQueue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]string, q.items.Length())
	for i := range out {
		out[i] = q.items.Get(i).(string)
	}
	return out
}

func (q *targetQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
