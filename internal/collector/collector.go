// Package collector implements the Collector Adapter component (C9): a
// polymorphic contract over provider-specific upstreams, wrapping each
// call with caching, rate limiting, circuit breaking, retry, and an
// optional HTML scrape fallback, so no adapter hand-rolls that state
// machine itself.
package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"keywordintel/internal/breaker"
	"keywordintel/internal/cache"
	"keywordintel/internal/model"
	"keywordintel/internal/ratelimit"
)

// Capability names the operations §4.9's polymorphic contract allows an
// adapter to support. An adapter declares its subset at construction
// time; the Orchestrator inspects capabilities, never duck-types them.
type Capability string

const (
	CapExtractSuggestions Capability = "extract_suggestions"
	CapExtractMetrics     Capability = "extract_metrics"
	CapValidateTerm       Capability = "validate_term"
	CapCollectKeywords    Capability = "collect_keywords"
	CapCollectMetrics     Capability = "collect_metrics"
	CapClassifyIntent     Capability = "classify_intent"
)

// Status is the closed set of outcomes a collection call can end in.
type Status string

const (
	StatusOK           Status = "ok"
	StatusRateLimited  Status = "rate_limited"
	StatusCircuitOpen  Status = "circuit_open"
	StatusAuthFailed   Status = "auth_failed"
	StatusUpstreamError Status = "upstream_error"
	StatusBadResponse  Status = "bad_response"
	StatusParseError   Status = "parse_error"
	StatusCached       Status = "cached"
)

// Result is one adapter call's outcome. Adapters never raise across the
// Runner boundary; every failure mode is represented here instead.
type Result struct {
	Provider       string
	Operation      Capability
	Status         Status
	Keywords       []model.Keyword
	Attempts       int
	DurationMS     int64
	ScrapeFallback bool
	Err            error
}

// Fetcher is the part of an adapter the Runner drives through the state
// machine: one upstream round trip plus parsing, scoped to a single
// operation and seed term. Implementations call the Session Manager
// themselves so they can shape provider-specific requests (headers,
// query params, auth).
type Fetcher interface {
	// Fetch performs one upstream call and parses it into keywords. The
	// returned model.ErrorKind (when err != nil) drives the Runner's
	// branching; ErrorKindNone with a non-nil error is treated like a
	// client error: the call ends with bad_response and is not retried.
	Fetch(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error)
}

// ScrapeFallbacker is implemented by adapters with an HTML fallback path,
// engaged when the API path terminally fails (5xx/timeout/network) or is
// unavailable.
type ScrapeFallbacker interface {
	ScrapeFallback(ctx context.Context, term string) ([]model.Keyword, error)
}

// Reauthenticator is implemented by adapters whose Session Manager needs
// an explicit nudge to refresh credentials after a 401/403, beyond the
// Session Manager's own proactive-refresh margin.
type Reauthenticator interface {
	Reauth(ctx context.Context) error
}

// Adapter is the full capability-polymorphic contract. Concrete adapters
// under internal/collector/adapters implement Fetcher and declare their
// Capabilities(); ScrapeFallbacker/Reauthenticator are optional and
// probed for via type assertion, never assumed.
type Adapter interface {
	Fetcher
	Provider() string
	Capabilities() []Capability
	// Close releases network resources; all in-flight operations must
	// complete or be cancelled before it returns.
	Close() error
}

// RunnerConfig tunes the shared state machine.
type RunnerConfig struct {
	MaxAttempts int
	CacheTTL    time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxAttempts: 3,
		CacheTTL:    15 * time.Minute,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

// Runner drives one adapter call through the cache_lookup ->
// rate_limit_acquire -> breaker_call -> http_request state machine
// described for C9, shared across every adapter so none of them
// reimplement it.
type Runner struct {
	cache     cache.Cache
	limiters  *ratelimit.Registry
	breakers  *breaker.Registry
	cfg       RunnerConfig
	jitter    jitterFunc
}

type jitterFunc func(n int) time.Duration

func NewRunner(c cache.Cache, limiters *ratelimit.Registry, breakers *breaker.Registry, cfg RunnerConfig) *Runner {
	return &Runner{cache: c, limiters: limiters, breakers: breakers, cfg: cfg, jitter: fullJitterBackoff(cfg.BaseBackoff, cfg.MaxBackoff)}
}

// Collect runs the full state machine for one (adapter, operation, term)
// call.
func (r *Runner) Collect(ctx context.Context, a Adapter, op Capability, term string) Result {
	start := time.Now()
	provider := a.Provider()
	key := cacheKey(provider, op, term)

	if raw, err := r.cache.Get(ctx, key); err == nil {
		kws, perr := decodeKeywords(raw)
		if perr == nil {
			return Result{Provider: provider, Operation: op, Status: StatusCached, Keywords: kws, DurationMS: time.Since(start).Milliseconds()}
		}
		slog.WarnContext(ctx, "collector: cached payload failed to decode, falling through", "provider", provider, "error", perr)
	}

	limiter := r.limiters.For(provider)
	if err := limiter.Acquire(ctx); err != nil {
		return Result{Provider: provider, Operation: op, Status: StatusUpstreamError, Err: fmt.Errorf("collector(%s): rate limit acquire: %w", provider, err), DurationMS: time.Since(start).Milliseconds()}
	}

	cb := r.breakers.For(provider)

	var (
		kws            []model.Keyword
		scrapeFallback bool
		reauthed       bool
		lastErr        error
		lastKind       model.ErrorKind
	)

	attempts := 0
	maxAttempts := r.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempts < maxAttempts {
		attempts++

		raw, err := cb.Call(ctx, func(ctx context.Context) (any, error) {
			kws, kind, ferr := a.Fetch(ctx, term)
			if ferr != nil {
				return nil, adapterError{kind: kind, err: ferr}
			}
			return kws, nil
		})

		if err == nil {
			kws = raw.([]model.Keyword)
			lastErr = nil
			break
		}

		if errors.Is(err, breaker.ErrOpen) {
			return Result{Provider: provider, Operation: op, Status: StatusCircuitOpen, Attempts: attempts, Err: err, DurationMS: time.Since(start).Milliseconds()}
		}

		kind, uerr := unwrapAdapterError(err)
		lastErr = uerr
		lastKind = kind

		switch kind {
		case model.ErrorKindRateLimited:
			if attempts >= maxAttempts {
				return Result{Provider: provider, Operation: op, Status: StatusRateLimited, Attempts: attempts, Err: lastErr, DurationMS: time.Since(start).Milliseconds()}
			}
			sleep(ctx, r.jitter(attempts))
			continue

		case model.ErrorKindUnauthorized:
			if reauthed {
				return Result{Provider: provider, Operation: op, Status: StatusAuthFailed, Attempts: attempts, Err: lastErr, DurationMS: time.Since(start).Milliseconds()}
			}
			if ra, ok := a.(Reauthenticator); ok {
				if rerr := ra.Reauth(ctx); rerr != nil {
					return Result{Provider: provider, Operation: op, Status: StatusAuthFailed, Attempts: attempts, Err: rerr, DurationMS: time.Since(start).Milliseconds()}
				}
				reauthed = true
				continue
			}
			return Result{Provider: provider, Operation: op, Status: StatusAuthFailed, Attempts: attempts, Err: lastErr, DurationMS: time.Since(start).Milliseconds()}

		case model.ErrorKindServerError, model.ErrorKindTimeout, model.ErrorKindNetwork:
			if sf, ok := a.(ScrapeFallbacker); ok {
				fbKws, fberr := sf.ScrapeFallback(ctx, term)
				if fberr == nil {
					return Result{Provider: provider, Operation: op, Status: StatusOK, Keywords: fbKws, Attempts: attempts, ScrapeFallback: true, DurationMS: time.Since(start).Milliseconds()}
				}
				slog.WarnContext(ctx, "collector: scrape fallback also failed", "provider", provider, "error", fberr)
			}
			return Result{Provider: provider, Operation: op, Status: StatusUpstreamError, Attempts: attempts, Err: lastErr, DurationMS: time.Since(start).Milliseconds()}

		case model.ErrorKindParseFailure:
			return Result{Provider: provider, Operation: op, Status: StatusParseError, Attempts: attempts, Err: lastErr, DurationMS: time.Since(start).Milliseconds()}

		default: // client error / unclassified -> bad_response, not retryable
			return Result{Provider: provider, Operation: op, Status: StatusBadResponse, Attempts: attempts, Err: lastErr, DurationMS: time.Since(start).Milliseconds()}
		}
	}

	if lastErr != nil {
		return Result{Provider: provider, Operation: op, Status: statusForKind(lastKind), Attempts: attempts, Err: lastErr, DurationMS: time.Since(start).Milliseconds()}
	}

	if raw, err := json.Marshal(kws); err == nil {
		if err := r.cache.Set(ctx, key, raw, r.cfg.CacheTTL); err != nil {
			slog.DebugContext(ctx, "collector: cache store failed", "provider", provider, "error", err)
		}
	}

	return Result{
		Provider:       provider,
		Operation:      op,
		Status:         StatusOK,
		Keywords:       kws,
		Attempts:       attempts,
		ScrapeFallback: scrapeFallback,
		DurationMS:     time.Since(start).Milliseconds(),
	}
}

func statusForKind(k model.ErrorKind) Status {
	switch k {
	case model.ErrorKindRateLimited:
		return StatusRateLimited
	case model.ErrorKindUnauthorized:
		return StatusAuthFailed
	case model.ErrorKindParseFailure:
		return StatusParseError
	case model.ErrorKindServerError, model.ErrorKindTimeout, model.ErrorKindNetwork:
		return StatusUpstreamError
	default:
		return StatusBadResponse
	}
}

type adapterError struct {
	kind model.ErrorKind
	err  error
}

func (e adapterError) Error() string { return e.err.Error() }
func (e adapterError) Unwrap() error { return e.err }

func unwrapAdapterError(err error) (model.ErrorKind, error) {
	var ae adapterError
	if errors.As(err, &ae) {
		return ae.kind, ae.err
	}
	return model.ErrorKindNone, err
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func cacheKey(provider string, op Capability, term string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte("|"))
	h.Write([]byte(op))
	h.Write([]byte("|"))
	h.Write([]byte(term))
	return "collector:" + hex.EncodeToString(h.Sum(nil))
}

func decodeKeywords(raw []byte) ([]model.Keyword, error) {
	var kws []model.Keyword
	if err := json.Unmarshal(raw, &kws); err != nil {
		return nil, fmt.Errorf("collector: decode cached payload: %w", err)
	}
	return kws, nil
}

// HasCapability reports whether adapter a declares cap.
func HasCapability(a Adapter, cap Capability) bool {
	caps := a.Capabilities()
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	for _, c := range caps {
		if c == cap {
			return true
		}
	}
	return false
}
