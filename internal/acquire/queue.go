package acquire

import "sync"

// Queue holds the keys for one pool run. Claim hands each key out exactly
// once no matter how many workers call it.
type Queue struct {
	mu   sync.Mutex
	keys []string
	next int
}

// NewQueue copies keys into a new queue.
func NewQueue(keys []string) *Queue {
	return &Queue{keys: append([]string(nil), keys...)}
}

// Claim returns the next unclaimed key, or false when the queue is drained.
func (q *Queue) Claim() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.next >= len(q.keys) {
		return "", false
	}
	k := q.keys[q.next]
	q.next++
	return k, true
}

// Remaining returns the number of unclaimed keys.
func (q *Queue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys) - q.next
}
