package pii

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultEntryTTL is how long a redaction map survives before the reaper may
// evict it. A request that has not unmasked within this horizon has been
// abandoned (client gone, pipeline crashed mid-flight).
const DefaultEntryTTL = 10 * time.Minute

type storeEntry struct {
	redactions map[string]string
	order      []string
	createdAt  time.Time
}

// Store holds per-request redaction maps in memory. It is safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]storeEntry
	now     func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]storeEntry),
		now:     time.Now,
	}
}

func (s *Store) put(requestID string, redactions map[string]string, order []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[requestID] = storeEntry{
		redactions: redactions,
		order:      order,
		createdAt:  s.now(),
	}
}

func (s *Store) get(requestID string) (map[string]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[requestID]
	if !ok {
		return nil, nil
	}
	return e.redactions, e.order
}

func (s *Store) delete(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, requestID)
}

// Len returns the number of live redaction maps.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reap evicts entries older than ttl and returns how many were removed.
func (s *Store) Reap(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl)
	removed := 0
	for id, e := range s.entries {
		if e.createdAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// StartReaper runs Reap every interval until ctx is cancelled. Entries for
// orphaned request IDs (crashed or abandoned requests) would otherwise pin
// raw PII in memory indefinitely.
func (s *Store) StartReaper(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	if ttl <= 0 {
		ttl = DefaultEntryTTL
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Reap(ttl); n > 0 {
					slog.Debug("pii store reaped orphaned entries", "count", n)
				}
			}
		}
	}()
}
