// Package ratelimit keeps one token-bucket limiter per caller.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Store struct {
	mu           sync.Mutex
	entries      map[string]*entry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type Option func(*Store)

// WithIdleTTL sets how long an unused limiter is kept.
func WithIdleTTL(d time.Duration) Option {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) Option {
	return func(s *Store) { s.cleanupEvery = d }
}

func NewStore(rps float64, burst int, opts ...Option) *Store {
	s := &Store{
		entries:      make(map[string]*entry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the limiter for key, creating it on first use.
func (s *Store) Get(key string) *rate.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.lastSeen = now
		return e.lim
	}
	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &entry{lim: lim, lastSeen: now}
	return lim
}

// Allow reports whether key may make one more request now.
func (s *Store) Allow(key string) bool {
	return s.Get(key).Allow()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup drops limiters idle for longer than the TTL.
func (s *Store) Cleanup() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Run cleans up periodically until ctx is done.
func (s *Store) Run(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}
	t := time.NewTicker(s.cleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Cleanup()
		}
	}
}
