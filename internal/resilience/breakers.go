package resilience

import (
	"sync"
	"time"
)

// Breakers holds one circuit breaker per session. A process-wide singleton
// would let one abusive session degrade service for everyone; keying by
// session ID keeps the blast radius to the session that earned it.
//
// Idle entries are evicted periodically to bound memory. Eviction is safe:
// a fresh breaker is lazily created (closed) on the session's next call.
type Breakers struct {
	mu          sync.Mutex
	entries     map[string]*breakerEntry
	maxFailures int
	cooldown    time.Duration
	maxIdle     time.Duration
	calls       int
	evictEvery  int
	now         func() time.Time // for testing
}

type breakerEntry struct {
	breaker  *Breaker
	lastUsed time.Time
}

// NewBreakers creates a per-session breaker registry. Each breaker opens
// after maxFailures consecutive failures and cools down for cooldown before
// allowing a trial call. Entries unused for maxIdle are dropped during the
// periodic eviction sweep.
func NewBreakers(maxFailures int, cooldown, maxIdle time.Duration) *Breakers {
	return &Breakers{
		entries:     make(map[string]*breakerEntry),
		maxFailures: maxFailures,
		cooldown:    cooldown,
		maxIdle:     maxIdle,
		evictEvery:  64,
		now:         time.Now,
	}
}

// For returns the breaker for sessionID, creating it on first use. Every
// evictEvery-th call triggers an idle sweep.
func (bs *Breakers) For(sessionID string) *Breaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	bs.calls++
	if bs.calls%bs.evictEvery == 0 {
		bs.evictIdleLocked()
	}

	e, ok := bs.entries[sessionID]
	if !ok {
		b := NewBreaker(bs.maxFailures, bs.cooldown)
		b.now = bs.now
		e = &breakerEntry{breaker: b}
		bs.entries[sessionID] = e
	}
	e.lastUsed = bs.now()
	return e.breaker
}

// Len returns the number of tracked sessions.
func (bs *Breakers) Len() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return len(bs.entries)
}

// EvictIdle immediately drops entries unused for longer than maxIdle.
func (bs *Breakers) EvictIdle() {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.evictIdleLocked()
}

// evictIdleLocked must be called with bs.mu held.
func (bs *Breakers) evictIdleLocked() {
	cutoff := bs.now().Add(-bs.maxIdle)
	for id, e := range bs.entries {
		if e.lastUsed.Before(cutoff) {
			delete(bs.entries, id)
		}
	}
}
