package syncer

import "sync"

// runGuard keeps the same sync job from running twice at once, whether
// triggered by a tool call, the CLI or the cron schedule.
type runGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

// tryLock marks key as running. It returns false if the key already is.
func (g *runGuard) tryLock(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[key]; ok {
		return false
	}
	g.running[key] = struct{}{}
	return true
}

// unlock releases a key taken with tryLock.
func (g *runGuard) unlock(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, key)
}
