package auth

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// LimiterConfig bounds failed attempts per client.
type LimiterConfig struct {
	MaxFailures int
	// Lockout is how long failures are remembered after the last one.
	Lockout time.Duration
}

// DefaultLimiterConfig allows five failures per minute.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{MaxFailures: 5, Lockout: time.Minute}
}

// Limiter counts failed attempts per key in a ristretto cache whose TTL
// implements the lockout window.
type Limiter struct {
	cfg LimiterConfig
	mu  sync.Mutex
	c   *ristretto.Cache
}

// NewLimiter returns a Limiter. A MaxFailures of zero disables it.
func NewLimiter(cfg LimiterConfig) (*Limiter, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Limiter{cfg: cfg, c: c}, nil
}

func (l *Limiter) failures(key string) int {
	v, ok := l.c.Get(key)
	if !ok {
		return 0
	}
	n, _ := v.(int)
	return n
}

// Allowed reports whether key may attempt a passcode. It does not count
// an attempt; use Reserve before checking a passcode.
func (l *Limiter) Allowed(key string) bool {
	if l.cfg.MaxFailures <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures(key) < l.cfg.MaxFailures
}

// Reserve counts an attempt by key as failed until Succeed or Release says
// otherwise, and restarts its lockout window. It returns false, counting
// nothing, once key has used up its attempts. Check and count happen under
// one lock so a parallel burst gets at most MaxFailures tries.
func (l *Limiter) Reserve(key string) bool {
	if l.cfg.MaxFailures <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.failures(key)
	if n >= l.cfg.MaxFailures {
		return false
	}
	l.c.SetWithTTL(key, n+1, 1, l.cfg.Lockout)
	l.c.Wait()
	return true
}

// Release returns an attempt reserved by key that could not be judged.
func (l *Limiter) Release(key string) {
	if l.cfg.MaxFailures <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	switch n := l.failures(key); {
	case n <= 1:
		l.c.Del(key)
	default:
		l.c.SetWithTTL(key, n-1, 1, l.cfg.Lockout)
	}
	l.c.Wait()
}

// Succeed forgets the failures of key.
func (l *Limiter) Succeed(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Del(key)
	l.c.Wait()
}

// Close releases the cache.
func (l *Limiter) Close() {
	l.c.Close()
}
