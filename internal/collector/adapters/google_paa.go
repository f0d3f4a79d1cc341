package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"keywordintel/internal/collector"
	"keywordintel/internal/model"
	"keywordintel/internal/session"
)

// GooglePAAAdapter surfaces "People Also Ask" panel questions. There is
// no public API for this panel, so Fetch always fails with
// ErrorKindServerError to route every call through the Runner's scrape
// fallback branch - it is, deliberately, a scrape-only adapter.
type GooglePAAAdapter struct {
	base
}

func NewGooglePAAAdapter(sess *session.Manager) *GooglePAAAdapter {
	return &GooglePAAAdapter{
		base: newBase("google_paa", sess, collector.CapExtractSuggestions, collector.CapClassifyIntent),
	}
}

func (a *GooglePAAAdapter) Fetch(_ context.Context, _ string) ([]model.Keyword, model.ErrorKind, error) {
	return nil, model.ErrorKindServerError, fmt.Errorf("google_paa: no API endpoint, scrape only")
}

var paaQuestionRe = regexp.MustCompile(`(?i)<span[^>]*>([^<]{5,120}\?)</span>`)

func (a *GooglePAAAdapter) ScrapeFallback(ctx context.Context, term string) ([]model.Keyword, error) {
	rawURL := "https://www.google.com/search?" + url.Values{"q": {term}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("google_paa: building scrape request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, kind, err := a.sess.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("google_paa: scrape request: %w", err)
	}
	defer resp.Body.Close()
	if kind != model.ErrorKindNone {
		return nil, fmt.Errorf("google_paa: scrape returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google_paa: reading scrape body: %w", err)
	}

	matches := paaQuestionRe.FindAllStringSubmatch(string(body), -1)
	questions := make([]string, 0, len(matches))
	for _, m := range matches {
		questions = append(questions, m[1])
	}

	return suggestionsToKeywords(a.Provider(), questions), nil
}
