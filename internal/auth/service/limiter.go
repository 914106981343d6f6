package service

import (
	"sync"

	"golang.org/x/time/rate"
)

// loginLimiter throttles credential attempts per (email, ip) key to slow
// online guessing. It is deliberately per-process; distributed deployments
// still get the database-backed protections (hash cost, rotation).
type loginLimiter struct {
	mu      sync.Mutex
	perKey  map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
	maxKeys int
}

func newLoginLimiter(limit rate.Limit, burst int) *loginLimiter {
	return &loginLimiter{
		perKey:  make(map[string]*rate.Limiter),
		limit:   limit,
		burst:   burst,
		maxKeys: 65536,
	}
}

func (l *loginLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.perKey[key]
	if !ok {
		// Crude memory bound: reset the whole table when it fills. An
		// attacker churning keys only buys themselves fresh buckets.
		if len(l.perKey) >= l.maxKeys {
			l.perKey = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.perKey[key] = lim
	}
	return lim.Allow()
}
