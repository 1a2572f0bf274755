package answer

import (
	"sync"
	"time"
)

// DefaultGuardTimeout bounds how long a request ID stays held if Release is
// never called.
const DefaultGuardTimeout = 2 * time.Minute

// Guard drops concurrent runs for the same request ID. A held ID expires on
// its own after the timeout.
type Guard struct {
	mu      sync.Mutex
	timeout time.Duration
	now     func() time.Time
	held    map[string]time.Time
}

func NewGuard(timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultGuardTimeout
	}
	return &Guard{timeout: timeout, now: time.Now, held: map[string]time.Time{}}
}

// Acquire reports whether id was free and, if so, holds it.
func (g *Guard) Acquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, expires := range g.held {
		if !now.Before(expires) {
			delete(g.held, k)
		}
	}
	if _, busy := g.held[id]; busy {
		return false
	}
	g.held[id] = now.Add(g.timeout)
	return true
}

func (g *Guard) Release(id string) {
	g.mu.Lock()
	delete(g.held, id)
	g.mu.Unlock()
}
