// Package ratelimit implements the Rate Limiter component: a per-provider
// dual-window token bucket (a minute window and an hour window), since
// golang.org/x/time/rate only models a single bucket.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Config sets the two bucket sizes for one provider.
type Config struct {
	PerMinute int
	PerHour   int
}

// Limiter composes a minute-window and an hour-window token bucket.
// Acquire blocks until both buckets have a token available or the
// context is cancelled/deadline-exceeded, whichever comes first.
type Limiter struct {
	minute *rate.Limiter
	hour   *rate.Limiter
}

func New(cfg Config) *Limiter {
	minuteRate := rate.Limit(float64(cfg.PerMinute) / 60.0)
	hourRate := rate.Limit(float64(cfg.PerHour) / 3600.0)

	return &Limiter{
		minute: rate.NewLimiter(minuteRate, max(1, cfg.PerMinute)),
		hour:   rate.NewLimiter(hourRate, max(1, cfg.PerHour)),
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Acquire waits for both the minute and hour buckets to admit one token.
// It returns the context's error if either wait is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.minute.Wait(ctx); err != nil {
		return fmt.Errorf("ratelimit: minute window: %w", err)
	}
	if err := l.hour.Wait(ctx); err != nil {
		return fmt.Errorf("ratelimit: hour window: %w", err)
	}
	return nil
}

// Allow performs a non-blocking admission check against both windows,
// consuming a token from each only if both currently have one available.
func (l *Limiter) Allow() bool {
	// reserve against both, but roll back the minute reservation if the
	// hour window can't also admit - otherwise a burst that passes the
	// minute check but fails the hour check would still consume a minute
	// token for nothing.
	minuteRes := l.minute.Reserve()
	if !minuteRes.OK() || minuteRes.Delay() > 0 {
		minuteRes.Cancel()
		return false
	}

	hourRes := l.hour.Reserve()
	if !hourRes.OK() || hourRes.Delay() > 0 {
		hourRes.Cancel()
		minuteRes.Cancel()
		return false
	}

	return true
}

// Registry keeps one Limiter per provider, created lazily from a shared
// default config unless a provider-specific override is registered.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	defaults Config
	overrides map[string]Config
}

func NewRegistry(defaults Config, overrides map[string]Config) *Registry {
	return &Registry{
		limiters:  make(map[string]*Limiter),
		defaults:  defaults,
		overrides: overrides,
	}
}

func (r *Registry) For(provider string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[provider]; ok {
		return l
	}

	cfg := r.defaults
	if override, ok := r.overrides[provider]; ok {
		cfg = override
	}

	l := New(cfg)
	r.limiters[provider] = l
	return l
}
