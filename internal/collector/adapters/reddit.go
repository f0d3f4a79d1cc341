package adapters

import (
	"context"
	"regexp"
	"strings"
	"time"

	"keywordintel/internal/collector"
	"keywordintel/internal/model"
	"keywordintel/internal/session"
)

// RedditAdapter is the community-forum source: collect_keywords from
// post titles matching a seed term, classify_intent from a small
// marker-word ensemble over the title text. This adapter only shapes the
// request; the Session Manager it goes through does no cookie/CSRF login
// handshake, so the search endpoint is called without a session cookie.
type RedditAdapter struct {
	base
}

func NewRedditAdapter(sess *session.Manager) *RedditAdapter {
	return &RedditAdapter{
		base: newBase("reddit", sess, collector.CapCollectKeywords, collector.CapClassifyIntent),
	}
}

type redditSearchResponse struct {
	Data struct {
		Children []struct {
			Data struct {
				Title string `json:"title"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (a *RedditAdapter) Fetch(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
	rawURL := "https://www.reddit.com/search.json?" + encodeQuery(map[string]string{
		"q":      term,
		"limit":  "25",
		"sort":   "relevance",
	})

	var parsed redditSearchResponse
	kind, err := a.doJSON(ctx, rawURL, &parsed)
	if err != nil {
		return nil, kind, err
	}

	now := time.Now()
	kws := make([]model.Keyword, 0, len(parsed.Data.Children))
	for _, child := range parsed.Data.Children {
		title := child.Data.Title
		if title == "" {
			continue
		}
		kws = append(kws, model.Keyword{
			Term:         title,
			Intent:       classifyRedditIntent(title),
			Source:       a.Provider(),
			CollectedAt:  now,
			ClusterOrder: -1,
		})
	}
	return kws, model.ErrorKindNone, nil
}

var (
	redditCommercialRe = regexp.MustCompile(`(?i)\b(buy|price|deal|discount|worth it)\b`)
	redditComparisonRe = regexp.MustCompile(`(?i)\b(vs\.?|versus|better than|compared to)\b`)
	redditInfoRe       = regexp.MustCompile(`(?i)\b(how|what|why|guide|explained)\b`)
)

func classifyRedditIntent(title string) model.Intent {
	switch {
	case redditComparisonRe.MatchString(title):
		return model.IntentComparison
	case redditCommercialRe.MatchString(title):
		return model.IntentCommercial
	case redditInfoRe.MatchString(title):
		return model.IntentInformational
	case strings.Contains(strings.ToLower(title), "subreddit"):
		return model.IntentNavigational
	default:
		return model.IntentInformational
	}
}
