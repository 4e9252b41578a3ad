// Package ratelimit implements the gateway's sliding-window admission
// limiter.
//
// The limiter keeps the timestamps of served requests inside the current
// window and prunes stale entries on every call, so memory stays bounded to
// O(limit) per active client. Checking and recording are separate steps:
// IsAllowed never consumes quota, and callers Record only after the request
// actually succeeded, so a client hammering a saturated gateway (or sending
// malformed bodies) does not push its own recovery further into the future.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultMaxRequests is the admission limit per window when no explicit
	// limit is configured.
	DefaultMaxRequests = 60

	// defaultWindow is the sliding window duration.
	defaultWindow = time.Minute
)

// Limiter enforces a per-client sliding-window request limit.
//
// Limiter is safe for concurrent use from multiple goroutines.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string][]time.Time // clientID → recorded timestamps in window
	now     func() time.Time
}

// New returns a Limiter that admits at most limit requests per client within
// window.
//
// If limit ≤ 0 it defaults to DefaultMaxRequests.
// If window ≤ 0 it defaults to one minute.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultMaxRequests
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// IsAllowed reports whether the client may make another request. When the
// quota is exhausted it also returns how many seconds the client must wait
// before its oldest in-window request expires (always ≥ 1); the retry hint
// is 0 while the client is still admitted. The check itself never consumes
// quota.
func (l *Limiter) IsAllowed(clientID string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := l.prune(clientID, now)
	if len(valid) < l.limit {
		return true, 0
	}

	oldest := valid[0]
	for _, t := range valid[1:] {
		if t.Before(oldest) {
			oldest = t
		}
	}
	retry := int((l.window - now.Sub(oldest)).Seconds()) + 1
	if retry < 1 {
		retry = 1
	}
	return false, retry
}

// Record counts one served request against the client's quota. Call it only
// after the downstream handler returned success, so failed requests never
// consume quota.
func (l *Limiter) Record(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.clients[clientID] = append(l.prune(clientID, now), now)
}

// Remaining returns the number of requests the client can still make within
// the current window. A return value of 0 means the next IsAllowed call will
// return false.
func (l *Limiter) Remaining(clientID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	rem := l.limit - len(l.prune(clientID, l.now()))
	if rem < 0 {
		return 0
	}
	return rem
}

// prune drops timestamps that have fallen outside the window and returns
// what is left. Caller must hold the lock.
func (l *Limiter) prune(clientID string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	existing := l.clients[clientID]
	valid := existing[:0] // reuse backing array
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	l.clients[clientID] = valid
	return valid
}
