package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterFailureRatioExceeded(t *testing.T) {
	b := New("test", Config{
		FailureRatio:        0.5,
		MinRequests:         4,
		OpenTimeout:         50 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	})

	ctx := context.Background()
	failing := func(ctx context.Context) (any, error) { return nil, errors.New("boom") }

	for i := 0; i < 4; i++ {
		_, _ = b.Call(ctx, failing)
	}

	assert.Equal(t, "open", b.State())

	_, err := b.Call(ctx, func(ctx context.Context) (any, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_HalfOpenRecoversToClose(t *testing.T) {
	b := New("test2", Config{
		FailureRatio:        0.5,
		MinRequests:         2,
		OpenTimeout:         10 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	})

	ctx := context.Background()
	failing := func(ctx context.Context) (any, error) { return nil, errors.New("boom") }
	for i := 0; i < 2; i++ {
		_, _ = b.Call(ctx, failing)
	}
	require.Equal(t, "open", b.State())

	time.Sleep(20 * time.Millisecond)

	succeeding := func(ctx context.Context) (any, error) { return "ok", nil }
	result, err := b.Call(ctx, succeeding)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, "closed", b.State())
}

func TestRegistry_PerProviderIsolation(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	a := r.For("amazon")
	g := r.For("google_suggest")
	assert.NotSame(t, a, g)
	assert.Same(t, a, r.For("amazon"))
}
