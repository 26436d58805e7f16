package ratelimit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_FixedWindow(t *testing.T) {
	now := time.Now()
	l := New(5, 5*time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("203.0.113.9"), "attempt %d", i+1)
	}
	assert.False(t, l.Allow("203.0.113.9"))
	assert.False(t, l.Allow("203.0.113.9"))

	// Other keys are unaffected.
	assert.True(t, l.Allow("203.0.113.10"))

	// A new window resets the count.
	now = now.Add(5 * time.Minute)
	assert.True(t, l.Allow("203.0.113.9"))
}

func TestPrune(t *testing.T) {
	now := time.Now()
	l := New(5, 5*time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	assert.Len(t, l.windows, 2)

	now = now.Add(time.Minute)
	l.Allow("c")
	now = now.Add(4 * time.Minute)
	l.Prune()
	// a and b expired; c's window is 4 minutes old.
	assert.Len(t, l.windows, 1)
}

func TestPruneLoop_DropsExpiredWindows(t *testing.T) {
	l := New(5, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.PruneLoop(ctx)

	for _, key := range []string{"203.0.113.9", "203.0.113.10", "203.0.113.11"} {
		l.Allow(key)
	}

	assert.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.windows) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:4242"
	assert.Equal(t, "192.0.2.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 198.51.100.7")
	assert.Equal(t, "203.0.113.9", ClientIP(r))
}
