package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SameKeySameLimiter(t *testing.T) {
	s := NewStore(10, 1)
	assert.Same(t, s.Get("k"), s.Get("k"))
	assert.NotSame(t, s.Get("k"), s.Get("other"))
	assert.Equal(t, 2, s.Len())
}

func TestStore_BurstExhausted(t *testing.T) {
	s := NewStore(0.01, 2)

	assert.True(t, s.Allow("k"))
	assert.True(t, s.Allow("k"))
	assert.False(t, s.Allow("k"), "third immediate request exceeds burst")
	assert.True(t, s.Allow("fresh"), "other callers are unaffected")
}

func TestStore_CleanupRemovesIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(10, 1, WithIdleTTL(time.Minute))
	s.now = func() time.Time { return now }

	before := s.Get("idle")
	now = now.Add(30 * time.Second)
	s.Get("active")
	now = now.Add(45 * time.Second)

	require.Equal(t, 1, s.Cleanup())
	assert.Equal(t, 1, s.Len())
	assert.NotSame(t, before, s.Get("idle"), "limiter is recreated after cleanup")
}

func TestStore_RunStopsOnCancel(t *testing.T) {
	s := NewStore(10, 1, WithCleanupEvery(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
