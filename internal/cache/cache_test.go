package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRUCache(8)
	require.NoError(t, err)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	val, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRUCache(8)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

type fakeCache struct {
	store map[string][]byte
	gets  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string][]byte)}
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	f.gets++
	v, ok := f.store[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.store[key] = value
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	delete(f.store, key)
	return nil
}

func TestLayered_PromotesL2HitToL1(t *testing.T) {
	ctx := context.Background()
	l1 := newFakeCache()
	l2 := newFakeCache()
	l2.store["k"] = []byte("v")

	layered := NewLayered(l1, l2)

	val, err := layered.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)
	assert.Equal(t, 1, l2.gets)

	// second read should be served from L1, without touching L2 again.
	_, err = layered.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, l2.gets)
}

func TestLayered_MissWhenBothTiersMiss(t *testing.T) {
	ctx := context.Background()
	layered := NewLayered(newFakeCache(), newFakeCache())
	_, err := layered.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
