// Package dedup enforces at-most-once signal production per round issue.
package dedup

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds the guard when no capacity is configured.
const DefaultCapacity = 200

// Guard is a bounded memory of recently admitted issues. All operations
// serialize on one mutex, so check-then-mark cannot race and eviction never
// overlaps an evaluation. Capacity eviction drops the oldest admission;
// an optional TTL lets an expired issue re-admit.
type Guard struct {
	mu   sync.Mutex
	seen *lru.Cache[string, time.Time]
	ttl  time.Duration
}

// NewGuard builds a guard retaining at most capacity issues. A ttl of zero
// keeps entries until capacity evicts them.
func NewGuard(capacity int, ttl time.Duration) *Guard {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, _ := lru.New[string, time.Time](capacity)
	return &Guard{seen: cache, ttl: ttl}
}

// Admit reports whether the issue is new and records it when it is. The
// first call for an issue within the retention window returns true; repeats
// return false. Peek keeps recency equal to admission order, so capacity
// eviction stays strictly oldest-first.
func (g *Guard) Admit(issue string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if at, ok := g.seen.Peek(issue); ok {
		if g.ttl <= 0 || time.Since(at) < g.ttl {
			return false
		}
	}
	g.seen.Add(issue, time.Now())
	return true
}

// Seen reports whether the issue is currently retained, without admitting it.
func (g *Guard) Seen(issue string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	at, ok := g.seen.Peek(issue)
	if !ok {
		return false
	}
	return g.ttl <= 0 || time.Since(at) < g.ttl
}

// Len returns the number of retained issues.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen.Len()
}
