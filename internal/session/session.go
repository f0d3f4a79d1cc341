// Package session implements the HTTP Session Manager component: a
// pooled, retrying HTTP client per provider, with optional OAuth2
// client-credentials token refresh for providers that require it.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"keywordintel/internal/model"
)

// Config tunes one provider's session.
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// OAuth2, when non-nil, is used to obtain and refresh bearer tokens
	// via the client-credentials grant before every request.
	OAuth2 *clientcredentials.Config
}

func DefaultConfig() Config {
	return Config{
		Timeout:      15 * time.Second,
		MaxRetries:   3,
		RetryWaitMin: 250 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
	}
}

// Manager issues HTTP requests for one provider using a pooled transport
// with exponential-backoff retry, classifying failures into model.ErrorKind
// so callers (collector adapters) can branch without re-parsing status
// codes.
type Manager struct {
	provider string
	client   *retryablehttp.Client
	oauth    *oauth2.Config
	tokenSrc oauth2.TokenSource
}

func NewManager(provider string, cfg Config) *Manager {
	base := cleanhttp.DefaultPooledClient()
	base.Timeout = cfg.Timeout

	rc := retryablehttp.NewClient()
	rc.HTTPClient = base
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = nil
	rc.CheckRetry = retryablehttp.DefaultRetryPolicy
	// Hand back the last response once retries are exhausted so Do can
	// classify its status instead of seeing a generic error.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	m := &Manager{provider: provider, client: rc}

	if cfg.OAuth2 != nil {
		m.tokenSrc = cfg.OAuth2.TokenSource(context.Background())
	}

	return m
}

// Do issues req, attaching an OAuth2 bearer token when one is configured,
// retrying transient failures, and returns the response alongside a
// classified model.ErrorKind (ErrorKindNone on success).
func (m *Manager) Do(ctx context.Context, req *http.Request) (*http.Response, model.ErrorKind, error) {
	if m.tokenSrc != nil {
		token, err := m.tokenSrc.Token()
		if err != nil {
			return nil, model.ErrorKindUnauthorized, fmt.Errorf("session(%s): oauth2 token: %w", m.provider, err)
		}
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	rreq, err := retryablehttp.FromRequest(req.WithContext(ctx))
	if err != nil {
		return nil, model.ErrorKindNetwork, fmt.Errorf("session(%s): building request: %w", m.provider, err)
	}

	start := time.Now()
	resp, err := m.client.Do(rreq)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, model.ErrorKindTimeout, fmt.Errorf("session(%s): %w", m.provider, ctx.Err())
		}
		slog.WarnContext(ctx, "session request failed after retries", "provider", m.provider, "error", err, "duration_ms", duration.Milliseconds())
		return nil, model.ErrorKindNetwork, fmt.Errorf("session(%s): %w", m.provider, err)
	}

	kind := classifyStatus(resp.StatusCode)
	slog.DebugContext(ctx, "session request completed", "provider", m.provider, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())
	return resp, kind, nil
}

func classifyStatus(status int) model.ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return model.ErrorKindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.ErrorKindUnauthorized
	case status >= 500:
		return model.ErrorKindServerError
	case status >= 400:
		return model.ErrorKindClientError
	default:
		return model.ErrorKindNone
	}
}

// Registry keeps one Manager per provider.
type Registry struct {
	managers map[string]*Manager
}

func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]*Manager)}
}

func (r *Registry) Register(provider string, cfg Config) *Manager {
	m := NewManager(provider, cfg)
	r.managers[provider] = m
	return m
}

func (r *Registry) For(provider string) (*Manager, bool) {
	m, ok := r.managers[provider]
	return m, ok
}
