// Package journal keeps a bounded in-memory trail of produced signals for quick inspection.
package journal

import (
	"sync"

	"github.com/forid0k/signalx/internal/signal"
)

// Journal stores the most recent signals in memory. It backs the health
// endpoint and tests; it is not a durable store.
type Journal struct {
	mu      sync.Mutex
	entries []signal.Signal
	cap     int
	total   int
}

// New creates an empty journal retaining at most capacity entries.
func New(capacity int) *Journal {
	if capacity <= 0 {
		capacity = 64
	}
	return &Journal{entries: make([]signal.Signal, 0, capacity), cap: capacity}
}

// Record appends a signal, dropping the oldest entry once past capacity.
func (j *Journal) Record(sig signal.Signal) {
	j.mu.Lock()
	j.entries = append(j.entries, sig)
	if len(j.entries) > j.cap {
		copy(j.entries, j.entries[1:])
		j.entries = j.entries[:j.cap]
	}
	j.total++
	j.mu.Unlock()
}

// Snapshot returns a copy of the retained signals, oldest first.
func (j *Journal) Snapshot() []signal.Signal {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]signal.Signal, len(j.entries))
	copy(out, j.entries)
	return out
}

// Last returns the most recently recorded signal.
func (j *Journal) Last() (signal.Signal, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.entries) == 0 {
		return signal.Signal{}, false
	}
	return j.entries[len(j.entries)-1], true
}

// Total counts every signal recorded since start, beyond the retained window.
func (j *Journal) Total() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.total
}

// Reset clears retained entries and the running count.
func (j *Journal) Reset() {
	j.mu.Lock()
	j.entries = j.entries[:0]
	j.total = 0
	j.mu.Unlock()
}
