// Package breaker implements the Circuit Breaker component: a
// three-state (closed/open/half-open) guard per provider, built on
// sony/gobreaker.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned by Call when the breaker is open and short-circuits
// the call without invoking it.
var ErrOpen = errors.New("breaker: circuit open")

// Config tunes a single breaker instance.
type Config struct {
	// FailureRatio opens the breaker once at least MinRequests requests
	// have been counted and this fraction of them have failed; counts
	// accumulate from the time the breaker last changed state.
	FailureRatio float64
	MinRequests  uint32
	// OpenTimeout is how long the breaker stays open before probing with
	// a half-open request.
	OpenTimeout time.Duration
	// HalfOpenMaxRequests caps concurrent probes while half-open.
	HalfOpenMaxRequests uint32
}

func DefaultConfig() Config {
	return Config{
		FailureRatio:        0.5,
		MinRequests:         5,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// Breaker wraps one gobreaker.CircuitBreaker for a single provider.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

func New(name string, cfg Config) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Breaker{
		name: name,
		cb:   gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Call executes fn guarded by the breaker. If the breaker is open, fn is
// never invoked and ErrOpen is returned.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", ErrOpen, b.name)
		}
		return nil, err
	}
	return result, nil
}

// State returns the current breaker state name ("closed", "half-open",
// "open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Registry keeps one Breaker per provider.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	defaults Config
}

func NewRegistry(defaults Config) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), defaults: defaults}
}

func (r *Registry) For(provider string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[provider]; ok {
		return b
	}
	b := New(provider, r.defaults)
	r.breakers[provider] = b
	return b
}
