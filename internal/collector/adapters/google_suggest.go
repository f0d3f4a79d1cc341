package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"keywordintel/internal/collector"
	"keywordintel/internal/model"
	"keywordintel/internal/session"
)

// GoogleSuggestAdapter hits Google's autocomplete endpoint. It supports
// extract_suggestions only - no metrics, no intent classification.
type GoogleSuggestAdapter struct {
	base
	endpoint string
}

func NewGoogleSuggestAdapter(sess *session.Manager) *GoogleSuggestAdapter {
	return &GoogleSuggestAdapter{
		base:     newBase("google_suggest", sess, collector.CapExtractSuggestions),
		endpoint: "https://suggestqueries.google.com/complete/search",
	}
}

// googleSuggestResponse models the endpoint's JSON-in-array shape:
// [seedTerm, [suggestion, ...], ...].
type googleSuggestResponse []json.RawMessage

func (a *GoogleSuggestAdapter) Fetch(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
	rawURL := a.endpoint + "?" + encodeQuery(map[string]string{
		"client": "firefox",
		"q":      term,
	})

	var raw googleSuggestResponse
	if kind, err := a.doJSON(ctx, rawURL, &raw); err != nil {
		return nil, kind, err
	}

	if len(raw) < 2 {
		return nil, model.ErrorKindParseFailure, fmt.Errorf("google_suggest: unexpected response shape")
	}

	var suggestions []string
	if err := json.Unmarshal(raw[1], &suggestions); err != nil {
		return nil, model.ErrorKindParseFailure, fmt.Errorf("google_suggest: decode suggestions: %w", err)
	}

	return suggestionsToKeywords(a.Provider(), suggestions), model.ErrorKindNone, nil
}
