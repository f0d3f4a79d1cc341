package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"keywordintel/internal/collector"
	"keywordintel/internal/model"
	"keywordintel/internal/session"
)

// YouTubeAdapter is the video-suggestion endpoint in the social family:
// extract_suggestions only, reusing Google's autocomplete infrastructure
// scoped to the YouTube dataset.
type YouTubeAdapter struct {
	base
}

func NewYouTubeAdapter(sess *session.Manager) *YouTubeAdapter {
	return &YouTubeAdapter{
		base: newBase("youtube", sess, collector.CapExtractSuggestions),
	}
}

type youtubeSuggestResponse []json.RawMessage

func (a *YouTubeAdapter) Fetch(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
	rawURL := "https://suggestqueries.google.com/complete/search?" + encodeQuery(map[string]string{
		"client": "youtube",
		"ds":     "yt",
		"q":      term,
	})

	var raw youtubeSuggestResponse
	if kind, err := a.doJSON(ctx, rawURL, &raw); err != nil {
		return nil, kind, err
	}
	if len(raw) < 2 {
		return nil, model.ErrorKindParseFailure, fmt.Errorf("youtube: unexpected response shape")
	}

	var suggestions []string
	if err := json.Unmarshal(raw[1], &suggestions); err != nil {
		return nil, model.ErrorKindParseFailure, fmt.Errorf("youtube: decode suggestions: %w", err)
	}
	return suggestionsToKeywords(a.Provider(), suggestions), model.ErrorKindNone, nil
}
