package arbiter

import "sync"

// Guard is an exclusive-use token with try-acquire semantics. Unlike
// sync.Mutex it has no blocking acquire, and it is meant to be released by
// a different goroutine than the one that took it.
type Guard struct {
	mu   sync.Mutex
	held bool
}

// NewGuard returns a free Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// TryLock attempts to take the guard without waiting. It returns true on success.
func (g *Guard) TryLock() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return false
	}
	g.held = true
	return true
}

// Release frees the guard. Releasing a free guard is a no-op.
func (g *Guard) Release() {
	g.mu.Lock()
	g.held = false
	g.mu.Unlock()
}

// Held reports whether the guard is taken.
func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}
