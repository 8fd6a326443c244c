package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// CandidateQueue buffers remote ICE candidates that arrive before the remote
// description is applied. Flushing preserves arrival order; duplicates are
// discarded for the lifetime of the queue (until Reset).
type CandidateQueue struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	pending []webrtc.ICECandidateInit
}

func NewCandidateQueue() *CandidateQueue {
	return &CandidateQueue{
		seen: make(map[string]struct{}),
	}
}

// Add queues a candidate and reports whether it was new.
func (q *CandidateQueue) Add(c webrtc.ICECandidateInit) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.seen[c.Candidate]; dup {
		return false
	}
	q.seen[c.Candidate] = struct{}{}
	q.pending = append(q.pending, c)
	return true
}

// Flush applies queued candidates in order and empties the queue. The seen
// set is kept so a duplicate arriving after the flush is still discarded.
func (q *CandidateQueue) Flush(apply func(webrtc.ICECandidateInit) error) (int, error) {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	applied := 0
	for _, c := range pending {
		if err := apply(c); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (q *CandidateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *CandidateQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seen = make(map[string]struct{})
	q.pending = nil
}
