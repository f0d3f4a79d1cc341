package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keywordintel/internal/breaker"
	"keywordintel/internal/cache"
	"keywordintel/internal/model"
	"keywordintel/internal/ratelimit"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	lru, err := cache.NewLRUCache(64)
	require.NoError(t, err)

	limiters := ratelimit.NewRegistry(ratelimit.Config{PerMinute: 1000, PerHour: 100000}, nil)
	breakers := breaker.NewRegistry(breaker.Config{FailureRatio: 0.5, MinRequests: 100, OpenTimeout: time.Second, HalfOpenMaxRequests: 1})

	cfg := DefaultRunnerConfig()
	cfg.BaseBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.CacheTTL = time.Minute

	return NewRunner(lru, limiters, breakers, cfg)
}

type fakeAdapter struct {
	provider string
	caps     []Capability
	fetchFn  func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error)
	scrapeFn func(ctx context.Context, term string) ([]model.Keyword, error)
	calls    int
}

func (f *fakeAdapter) Provider() string             { return f.provider }
func (f *fakeAdapter) Capabilities() []Capability    { return f.caps }
func (f *fakeAdapter) Close() error                  { return nil }
func (f *fakeAdapter) Fetch(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
	f.calls++
	return f.fetchFn(ctx, term)
}

type fakeScrapeAdapter struct {
	*fakeAdapter
}

func (f *fakeScrapeAdapter) ScrapeFallback(ctx context.Context, term string) ([]model.Keyword, error) {
	return f.scrapeFn(ctx, term)
}

func TestRunner_Collect_SuccessCachesResult(t *testing.T) {
	r := newTestRunner(t)
	a := &fakeAdapter{
		provider: "google_suggest",
		caps:     []Capability{CapExtractSuggestions},
		fetchFn: func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
			return []model.Keyword{{Term: term + " shoes"}}, model.ErrorKindNone, nil
		},
	}

	res := r.Collect(context.Background(), a, CapExtractSuggestions, "running")
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 1, a.calls)
	assert.Len(t, res.Keywords, 1)

	res2 := r.Collect(context.Background(), a, CapExtractSuggestions, "running")
	assert.Equal(t, StatusCached, res2.Status)
	assert.Equal(t, 1, a.calls, "second call should be served from cache, not hit the adapter again")
}

func TestRunner_Collect_RateLimitedRetriesThenFails(t *testing.T) {
	r := newTestRunner(t)
	a := &fakeAdapter{
		provider: "bing_suggest",
		caps:     []Capability{CapExtractSuggestions},
		fetchFn: func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
			return nil, model.ErrorKindRateLimited, errors.New("429")
		},
	}

	res := r.Collect(context.Background(), a, CapExtractSuggestions, "shoes")
	assert.Equal(t, StatusRateLimited, res.Status)
	assert.Equal(t, 3, a.calls)
	assert.Equal(t, 3, res.Attempts)
}

func TestRunner_Collect_UnauthorizedReauthsOnceThenSucceeds(t *testing.T) {
	r := newTestRunner(t)
	reauthed := false
	base := &fakeAdapter{
		provider: "google_search_console",
		caps:     []Capability{CapExtractMetrics},
		fetchFn: func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
			if !reauthed {
				return nil, model.ErrorKindUnauthorized, errors.New("401")
			}
			return []model.Keyword{{Term: term}}, model.ErrorKindNone, nil
		},
	}

	a := &reauthAdapter{fakeAdapter: base, onReauth: func() { reauthed = true }}

	res := r.Collect(context.Background(), a, CapExtractMetrics, "shoes")
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 2, base.calls)
}

type reauthAdapter struct {
	*fakeAdapter
	onReauth func()
}

func (a *reauthAdapter) Reauth(ctx context.Context) error {
	a.onReauth()
	return nil
}

func TestRunner_Collect_ServerErrorFallsBackToScrape(t *testing.T) {
	r := newTestRunner(t)
	base := &fakeAdapter{
		provider: "amazon",
		caps:     []Capability{CapExtractSuggestions},
		fetchFn: func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
			return nil, model.ErrorKindServerError, errors.New("502")
		},
	}
	a := &fakeScrapeAdapter{fakeAdapter: base}
	a.scrapeFn = func(ctx context.Context, term string) ([]model.Keyword, error) {
		return []model.Keyword{{Term: term + " (scraped)"}}, nil
	}

	res := r.Collect(context.Background(), a, CapExtractSuggestions, "shoes")
	require.Equal(t, StatusOK, res.Status)
	assert.True(t, res.ScrapeFallback)
	require.Len(t, res.Keywords, 1)
	assert.Equal(t, "shoes (scraped)", res.Keywords[0].Term)
}

func TestRunner_Collect_BadResponseDoesNotRetry(t *testing.T) {
	r := newTestRunner(t)
	a := &fakeAdapter{
		provider: "reddit",
		caps:     []Capability{CapCollectKeywords},
		fetchFn: func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
			return nil, model.ErrorKindClientError, errors.New("400")
		},
	}

	res := r.Collect(context.Background(), a, CapCollectKeywords, "shoes")
	assert.Equal(t, StatusBadResponse, res.Status)
	assert.Equal(t, 1, a.calls)
}

func TestHasCapability(t *testing.T) {
	a := &fakeAdapter{provider: "x", caps: []Capability{CapCollectKeywords, CapClassifyIntent}}
	assert.True(t, HasCapability(a, CapClassifyIntent))
	assert.False(t, HasCapability(a, CapExtractMetrics))
}
