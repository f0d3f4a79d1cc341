package collector_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"keywordintel/internal/breaker"
	"keywordintel/internal/cache"
	"keywordintel/internal/collector"
	"keywordintel/internal/model"
	"keywordintel/internal/ratelimit"
)

// bddAdapter is a minimal Fetcher/Adapter double built for the state-machine
// specs below; it does not share fakeAdapter from collector_test.go since
// that type is unexported to the internal package.
type bddAdapter struct {
	provider string
	caps     []collector.Capability
	fetchFn  func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error)
	scrapeFn func(ctx context.Context, term string) ([]model.Keyword, error)
	reauthFn func(ctx context.Context) error
	calls    int
}

func (a *bddAdapter) Provider() string          { return a.provider }
func (a *bddAdapter) Capabilities() []collector.Capability { return a.caps }
func (a *bddAdapter) Close() error               { return nil }
func (a *bddAdapter) Fetch(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
	a.calls++
	return a.fetchFn(ctx, term)
}

type scrapingAdapter struct{ *bddAdapter }

func (a *scrapingAdapter) ScrapeFallback(ctx context.Context, term string) ([]model.Keyword, error) {
	return a.scrapeFn(ctx, term)
}

type reauthingAdapter struct{ *bddAdapter }

func (a *reauthingAdapter) Reauth(ctx context.Context) error {
	return a.reauthFn(ctx)
}

func newRunner() *collector.Runner {
	lru, err := cache.NewLRUCache(64)
	Expect(err).NotTo(HaveOccurred())

	limiters := ratelimit.NewRegistry(ratelimit.Config{PerMinute: 1000, PerHour: 100000}, nil)
	breakers := breaker.NewRegistry(breaker.Config{FailureRatio: 0.5, MinRequests: 1000, OpenTimeout: time.Second, HalfOpenMaxRequests: 1})

	cfg := collector.DefaultRunnerConfig()
	cfg.BaseBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond

	return collector.NewRunner(lru, limiters, breakers, cfg)
}

var _ = Describe("Runner.Collect state machine", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	When("the upstream call succeeds", func() {
		It("returns ok and caches the result for the next identical call", func() {
			runner := newRunner()
			a := &bddAdapter{
				provider: "google_suggest",
				caps:     []collector.Capability{collector.CapExtractSuggestions},
				fetchFn: func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
					return []model.Keyword{{Term: term + " sneakers"}}, model.ErrorKindNone, nil
				},
			}

			first := runner.Collect(ctx, a, collector.CapExtractSuggestions, "running")
			Expect(first.Status).To(Equal(collector.StatusOK))
			Expect(first.Keywords).To(HaveLen(1))

			second := runner.Collect(ctx, a, collector.CapExtractSuggestions, "running")
			Expect(second.Status).To(Equal(collector.StatusCached))
			Expect(a.calls).To(Equal(1), "cached read must not call Fetch again")
		})
	})

	When("the upstream call is rate limited", func() {
		It("retries up to MaxAttempts then reports rate_limited", func() {
			runner := newRunner()
			a := &bddAdapter{
				provider: "bing_suggest",
				caps:     []collector.Capability{collector.CapExtractSuggestions},
				fetchFn: func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
					return nil, model.ErrorKindRateLimited, errors.New("429")
				},
			}

			res := runner.Collect(ctx, a, collector.CapExtractSuggestions, "shoes")
			Expect(res.Status).To(Equal(collector.StatusRateLimited))
			Expect(a.calls).To(Equal(collector.DefaultRunnerConfig().MaxAttempts))
		})
	})

	When("the upstream call is unauthorized", func() {
		It("reauths once via Reauthenticator and succeeds on the retry", func() {
			runner := newRunner()
			reauthed := false
			base := &bddAdapter{
				provider: "google_search_console",
				caps:     []collector.Capability{collector.CapExtractMetrics},
				fetchFn: func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
					if !reauthed {
						return nil, model.ErrorKindUnauthorized, errors.New("401")
					}
					return []model.Keyword{{Term: term}}, model.ErrorKindNone, nil
				},
			}
			a := &reauthingAdapter{bddAdapter: base}
			a.reauthFn = func(ctx context.Context) error { reauthed = true; return nil }

			res := runner.Collect(ctx, a, collector.CapExtractMetrics, "shoes")
			Expect(res.Status).To(Equal(collector.StatusOK))
			Expect(base.calls).To(Equal(2))
		})

		It("gives up after a second 401 even with a Reauthenticator", func() {
			runner := newRunner()
			base := &bddAdapter{
				provider: "google_search_console",
				caps:     []collector.Capability{collector.CapExtractMetrics},
				fetchFn: func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
					return nil, model.ErrorKindUnauthorized, errors.New("401")
				},
			}
			a := &reauthingAdapter{bddAdapter: base}
			a.reauthFn = func(ctx context.Context) error { return nil }

			res := runner.Collect(ctx, a, collector.CapExtractMetrics, "shoes")
			Expect(res.Status).To(Equal(collector.StatusAuthFailed))
		})
	})

	When("the upstream call hits a server error", func() {
		It("falls back to scraping when the adapter supports it", func() {
			runner := newRunner()
			base := &bddAdapter{
				provider: "amazon",
				caps:     []collector.Capability{collector.CapExtractSuggestions},
				fetchFn: func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
					return nil, model.ErrorKindServerError, errors.New("502")
				},
			}
			a := &scrapingAdapter{bddAdapter: base}
			a.scrapeFn = func(ctx context.Context, term string) ([]model.Keyword, error) {
				return []model.Keyword{{Term: term + " (scraped)"}}, nil
			}

			res := runner.Collect(ctx, a, collector.CapExtractSuggestions, "shoes")
			Expect(res.Status).To(Equal(collector.StatusOK))
			Expect(res.ScrapeFallback).To(BeTrue())
			Expect(res.Keywords).To(HaveLen(1))
		})

		It("reports upstream_error when no scrape fallback is available", func() {
			runner := newRunner()
			a := &bddAdapter{
				provider: "youtube",
				caps:     []collector.Capability{collector.CapCollectKeywords},
				fetchFn: func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
					return nil, model.ErrorKindServerError, errors.New("503")
				},
			}

			res := runner.Collect(ctx, a, collector.CapCollectKeywords, "shoes")
			Expect(res.Status).To(Equal(collector.StatusUpstreamError))
		})
	})

	When("the upstream call is rejected as a client error", func() {
		It("reports bad_response without retrying", func() {
			runner := newRunner()
			a := &bddAdapter{
				provider: "reddit",
				caps:     []collector.Capability{collector.CapCollectKeywords},
				fetchFn: func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
					return nil, model.ErrorKindClientError, errors.New("400")
				},
			}

			res := runner.Collect(ctx, a, collector.CapCollectKeywords, "shoes")
			Expect(res.Status).To(Equal(collector.StatusBadResponse))
			Expect(a.calls).To(Equal(1))
		})
	})

	When("the circuit breaker for the provider is already open", func() {
		It("short-circuits before calling Fetch", func() {
			lru, err := cache.NewLRUCache(64)
			Expect(err).NotTo(HaveOccurred())
			limiters := ratelimit.NewRegistry(ratelimit.Config{PerMinute: 1000, PerHour: 100000}, nil)
			breakers := breaker.NewRegistry(breaker.Config{FailureRatio: 0.5, MinRequests: 1, OpenTimeout: time.Minute, HalfOpenMaxRequests: 1})
			cfg := collector.DefaultRunnerConfig()
			cfg.MaxAttempts = 1
			runner := collector.NewRunner(lru, limiters, breakers, cfg)

			a := &bddAdapter{
				provider: "instagram",
				caps:     []collector.Capability{collector.CapCollectKeywords},
				fetchFn: func(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
					return nil, model.ErrorKindServerError, errors.New("503")
				},
			}

			first := runner.Collect(ctx, a, collector.CapCollectKeywords, "shoes")
			Expect(first.Status).To(Equal(collector.StatusUpstreamError))

			second := runner.Collect(ctx, a, collector.CapCollectKeywords, "shoes")
			Expect(second.Status).To(Equal(collector.StatusCircuitOpen))
			Expect(a.calls).To(Equal(1), "breaker must short-circuit the second attempt")
		})
	})
})

var _ = Describe("HasCapability", func() {
	It("reports declared capabilities", func() {
		a := &bddAdapter{provider: "x", caps: []collector.Capability{collector.CapCollectKeywords, collector.CapClassifyIntent}}
		Expect(collector.HasCapability(a, collector.CapClassifyIntent)).To(BeTrue())
		Expect(collector.HasCapability(a, collector.CapExtractMetrics)).To(BeFalse())
	})
})
