package breaker_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"keywordintel/internal/breaker"
)

var _ = Describe("Breaker", func() {
	var (
		ctx     context.Context
		failing func(ctx context.Context) (any, error)
		ok      func(ctx context.Context) (any, error)
	)

	BeforeEach(func() {
		ctx = context.Background()
		failing = func(ctx context.Context) (any, error) { return nil, errors.New("upstream boom") }
		ok = func(ctx context.Context) (any, error) { return "fine", nil }
	})

	Describe("closed state", func() {
		It("passes calls through and tracks them as requests", func() {
			b := breaker.New("google_suggest", breaker.Config{
				FailureRatio: 0.5, MinRequests: 10, OpenTimeout: time.Second, HalfOpenMaxRequests: 1,
			})

			result, err := b.Call(ctx, ok)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal("fine"))
			Expect(b.State()).To(Equal("closed"))
		})

		It("stays closed below MinRequests even at 100% failure", func() {
			b := breaker.New("bing_suggest", breaker.Config{
				FailureRatio: 0.5, MinRequests: 10, OpenTimeout: time.Second, HalfOpenMaxRequests: 1,
			})

			for i := 0; i < 9; i++ {
				_, _ = b.Call(ctx, failing)
			}
			Expect(b.State()).To(Equal("closed"))
		})
	})

	Describe("transition to open", func() {
		It("opens once the failure ratio crosses the configured threshold", func() {
			b := breaker.New("amazon", breaker.Config{
				FailureRatio: 0.5, MinRequests: 4, OpenTimeout: time.Minute, HalfOpenMaxRequests: 1,
			})

			for i := 0; i < 4; i++ {
				_, _ = b.Call(ctx, failing)
			}

			Expect(b.State()).To(Equal("open"))
		})

		It("short-circuits further calls without invoking fn", func() {
			b := breaker.New("reddit", breaker.Config{
				FailureRatio: 0.5, MinRequests: 2, OpenTimeout: time.Minute, HalfOpenMaxRequests: 1,
			})
			for i := 0; i < 2; i++ {
				_, _ = b.Call(ctx, failing)
			}

			invoked := false
			_, err := b.Call(ctx, func(ctx context.Context) (any, error) {
				invoked = true
				return nil, nil
			})

			Expect(err).To(MatchError(breaker.ErrOpen))
			Expect(invoked).To(BeFalse())
		})
	})

	Describe("half-open recovery", func() {
		It("probes once OpenTimeout elapses and closes again on a successful probe", func() {
			b := breaker.New("youtube", breaker.Config{
				FailureRatio: 0.5, MinRequests: 2, OpenTimeout: 10 * time.Millisecond, HalfOpenMaxRequests: 1,
			})
			for i := 0; i < 2; i++ {
				_, _ = b.Call(ctx, failing)
			}
			Expect(b.State()).To(Equal("open"))

			Eventually(func() (any, error) {
				return b.Call(ctx, ok)
			}, time.Second, 5*time.Millisecond).Should(Equal("fine"))

			Expect(b.State()).To(Equal("closed"))
		})

		It("reopens if the half-open probe itself fails", func() {
			b := breaker.New("instagram", breaker.Config{
				FailureRatio: 0.5, MinRequests: 2, OpenTimeout: 10 * time.Millisecond, HalfOpenMaxRequests: 1,
			})
			for i := 0; i < 2; i++ {
				_, _ = b.Call(ctx, failing)
			}
			time.Sleep(20 * time.Millisecond)

			_, err := b.Call(ctx, failing)
			Expect(err).To(HaveOccurred())
			Expect(b.State()).To(Equal("open"))
		})
	})

	Describe("Registry", func() {
		It("isolates breaker state per provider", func() {
			reg := breaker.NewRegistry(breaker.Config{
				FailureRatio: 0.5, MinRequests: 2, OpenTimeout: time.Minute, HalfOpenMaxRequests: 1,
			})

			amazon := reg.For("amazon")
			for i := 0; i < 2; i++ {
				_, _ = amazon.Call(ctx, failing)
			}
			Expect(amazon.State()).To(Equal("open"))

			googleSuggest := reg.For("google_suggest")
			Expect(googleSuggest.State()).To(Equal("closed"))
		})

		It("returns the same instance for repeated lookups of the same provider", func() {
			reg := breaker.NewRegistry(breaker.DefaultConfig())
			Expect(reg.For("bing_suggest")).To(BeIdenticalTo(reg.For("bing_suggest")))
		})
	})
})
