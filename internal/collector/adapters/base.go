// Package adapters provides the reference Collector Adapter roster
// (C9): one file per provider, each implementing the subset of
// collector.Capability it actually supports and declaring it at
// construction. All of them delegate the upstream round trip to a
// session.Manager and let collector.Runner drive the shared state
// machine (cache, rate limit, breaker, retry, scrape fallback).
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"keywordintel/internal/collector"
	"keywordintel/internal/model"
	"keywordintel/internal/session"
)

// base holds what every reference adapter needs: its declared
// capabilities and the session it issues requests through. Embedding it
// gives each adapter Provider()/Capabilities()/Close() for free.
type base struct {
	provider string
	caps     []collector.Capability
	sess     *session.Manager
}

func newBase(provider string, sess *session.Manager, caps ...collector.Capability) base {
	return base{provider: provider, sess: sess, caps: caps}
}

func (b base) Provider() string                  { return b.provider }
func (b base) Capabilities() []collector.Capability { return b.caps }
func (b base) Close() error                      { return nil }

// doJSON issues a GET against rawURL and decodes a JSON response into out,
// translating the Session Manager's classified failures into the
// model.ErrorKind the Runner branches on.
func (b base) doJSON(ctx context.Context, rawURL string, out any) (model.ErrorKind, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return model.ErrorKindNetwork, fmt.Errorf("%s: building request: %w", b.provider, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, kind, err := b.sess.Do(ctx, req)
	if err != nil {
		return kind, err
	}
	defer resp.Body.Close()

	if kind != model.ErrorKindNone {
		return kind, fmt.Errorf("%s: upstream returned status %d", b.provider, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return model.ErrorKindParseFailure, fmt.Errorf("%s: decode response: %w", b.provider, err)
	}
	return model.ErrorKindNone, nil
}

// suggestionsToKeywords converts a bare list of suggested terms (the
// common shape autocomplete endpoints return) into candidate Keywords
// with no volume/cpc signal yet - those are filled in later by an
// extract_metrics-capable adapter or the Enricher's trend heuristics.
func suggestionsToKeywords(provider string, terms []string) []model.Keyword {
	now := time.Now()
	kws := make([]model.Keyword, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		kws = append(kws, model.Keyword{
			Term:         t,
			Source:       provider,
			CollectedAt:  now,
			ClusterOrder: -1,
		})
	}
	return kws
}

func encodeQuery(params map[string]string) string {
	v := url.Values{}
	for k, val := range params {
		v.Set(k, val)
	}
	return v.Encode()
}
