package changefeed

import "sync"

// ackTracker hands out sequence numbers to received events and reports the
// token of the highest event below which everything was acknowledged.
type ackTracker struct {
	mu        sync.Mutex
	next      uint64
	base      uint64
	tokens    map[uint64]string
	acked     map[uint64]bool
	committed string
	saved     string
}

func newAckTracker(start string) *ackTracker {
	return &ackTracker{
		tokens:    make(map[uint64]string),
		acked:     make(map[uint64]bool),
		committed: start,
		saved:     start,
	}
}

func (t *ackTracker) track(token string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := t.next
	t.next++
	t.tokens[seq] = token
	return seq
}

func (t *ackTracker) ack(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acked[seq] = true
	for t.acked[t.base] {
		t.committed = t.tokens[t.base]
		delete(t.acked, t.base)
		delete(t.tokens, t.base)
		t.base++
	}
}

// pending returns the committed token when it was not saved yet.
func (t *ackTracker) pending() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed, t.committed != t.saved
}

func (t *ackTracker) markSaved(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.saved = token
}

func (t *ackTracker) outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.next - t.base)
}
