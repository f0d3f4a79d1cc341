package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"keywordintel/internal/collector"
	"keywordintel/internal/model"
	"keywordintel/internal/session"
)

// BingSuggestAdapter is the second search-engine suggestion source,
// supplementing GoogleSuggestAdapter. API-first with an HTML scrape
// fallback when the autocomplete endpoint is unavailable.
type BingSuggestAdapter struct {
	base
	endpoint string
}

func NewBingSuggestAdapter(sess *session.Manager) *BingSuggestAdapter {
	return &BingSuggestAdapter{
		base:     newBase("bing_suggest", sess, collector.CapExtractSuggestions),
		endpoint: "https://api.bing.com/osjson.aspx",
	}
}

// bingSuggestResponse mirrors Google's [seedTerm, [suggestion, ...]] shape.
type bingSuggestResponse []json.RawMessage

func (a *BingSuggestAdapter) Fetch(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
	rawURL := a.endpoint + "?" + encodeQuery(map[string]string{"query": term})

	var raw bingSuggestResponse
	if kind, err := a.doJSON(ctx, rawURL, &raw); err != nil {
		return nil, kind, err
	}

	if len(raw) < 2 {
		return nil, model.ErrorKindParseFailure, fmt.Errorf("bing_suggest: unexpected response shape")
	}

	var suggestions []string
	if err := json.Unmarshal(raw[1], &suggestions); err != nil {
		return nil, model.ErrorKindParseFailure, fmt.Errorf("bing_suggest: decode suggestions: %w", err)
	}

	return suggestionsToKeywords(a.Provider(), suggestions), model.ErrorKindNone, nil
}

var bingSuggestionRe = regexp.MustCompile(`(?i)<li class="sa_sg">([^<]{2,100})</li>`)

func (a *BingSuggestAdapter) ScrapeFallback(ctx context.Context, term string) ([]model.Keyword, error) {
	rawURL := "https://www.bing.com/search?" + url.Values{"q": {term}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bing_suggest: building scrape request: %w", err)
	}

	resp, kind, err := a.sess.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bing_suggest: scrape request: %w", err)
	}
	defer resp.Body.Close()
	if kind != model.ErrorKindNone {
		return nil, fmt.Errorf("bing_suggest: scrape returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bing_suggest: reading scrape body: %w", err)
	}

	matches := bingSuggestionRe.FindAllStringSubmatch(string(body), -1)
	suggestions := make([]string, 0, len(matches))
	for _, m := range matches {
		suggestions = append(suggestions, m[1])
	}

	return suggestionsToKeywords(a.Provider(), suggestions), nil
}
