// Package ratelimit throttles per-address login and registration attempts
// so a single client cannot hammer the credential store with guesses.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out a token-bucket rate.Limiter per remote address,
// lazily created on first use and evicted once idle for longer than TTL.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	ttl     time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New returns a Limiter allowing eventsPerSecond sustained events per
// address with a burst of up to burst, forgetting an address's bucket
// once it has been idle for ttl.
func New(eventsPerSecond float64, burst int, ttl time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(eventsPerSecond),
		burst:   burst,
		ttl:     ttl,
	}
}

// Allow reports whether an attempt from addr is permitted right now,
// consuming one token if so.
func (l *Limiter) Allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[addr]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[addr] = b
	}
	b.lastSeen = time.Now()

	l.evictLocked()
	return b.limiter.Allow()
}

// evictLocked drops buckets idle past ttl. Called with l.mu held.
func (l *Limiter) evictLocked() {
	if l.ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-l.ttl)
	for addr, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, addr)
		}
	}
}

// Len reports how many addresses currently have a live bucket.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
