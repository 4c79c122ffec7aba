package collector

import (
	"sync"

	"stacklytics/internal/newsletter"
)

// runGuard serializes collection runs per publication slug. Concurrent runs
// against the same slug would interleave upserts, so they are rejected.
type runGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newRunGuard() *runGuard {
	return &runGuard{active: make(map[string]struct{})}
}

func (g *runGuard) acquire(slug string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[slug]; busy {
		return newsletter.ErrRunInFlight
	}
	g.active[slug] = struct{}{}
	return nil
}

func (g *runGuard) release(slug string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, slug)
}
