package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AcquireRespectsContextDeadline(t *testing.T) {
	l := New(Config{PerMinute: 1, PerHour: 1000})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))

	// Bucket is now empty; a tight deadline should fail rather than hang.
	tight, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	err := l.Acquire(tight)
	assert.Error(t, err)
}

func TestLimiter_AllowNonBlocking(t *testing.T) {
	l := New(Config{PerMinute: 1, PerHour: 1000})
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "second call before refill should be denied")
}

func TestRegistry_PerProviderOverride(t *testing.T) {
	r := NewRegistry(Config{PerMinute: 60, PerHour: 1000}, map[string]Config{
		"reddit": {PerMinute: 1, PerHour: 10},
	})

	reddit := r.For("reddit")
	assert.True(t, reddit.Allow())
	assert.False(t, reddit.Allow())

	// A different provider gets its own bucket from the defaults.
	other := r.For("google_suggest")
	assert.True(t, other.Allow())

	// Requesting the same provider again returns the same limiter instance.
	assert.Same(t, reddit, r.For("reddit"))
}
