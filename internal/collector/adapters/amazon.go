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

// AmazonAdapter is the commerce/ad-planner keyword source:
// extract_suggestions from the autocomplete endpoint, extract_metrics
// from sponsored-product density as a competition proxy, with an HTML
// scrape fallback for the autocomplete path.
type AmazonAdapter struct {
	base
	marketplace string
}

func NewAmazonAdapter(sess *session.Manager, marketplace string) *AmazonAdapter {
	if marketplace == "" {
		marketplace = "amazon.com"
	}
	return &AmazonAdapter{
		base:        newBase("amazon", sess, collector.CapExtractSuggestions, collector.CapExtractMetrics),
		marketplace: marketplace,
	}
}

type amazonSuggestResponse struct {
	Suggestions []struct {
		Value string `json:"value"`
	} `json:"suggestions"`
}

func (a *AmazonAdapter) Fetch(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
	rawURL := "https://completion.amazon.com/api/2017/suggestions?" + encodeQuery(map[string]string{
		"mid":         a.marketplace,
		"alias":       "aps",
		"prefix":      term,
		"client-info": "amazon-search-ui",
	})

	var parsed amazonSuggestResponse
	kind, err := a.doJSON(ctx, rawURL, &parsed)
	if err != nil {
		return nil, kind, err
	}

	terms := make([]string, 0, len(parsed.Suggestions))
	for _, s := range parsed.Suggestions {
		terms = append(terms, s.Value)
	}
	return suggestionsToKeywords(a.Provider(), terms), model.ErrorKindNone, nil
}

var amazonSponsoredRe = regexp.MustCompile(`(?i)data-component-type="sp-sponsored-result"`)
var amazonTitleRe = regexp.MustCompile(`(?i)<h2[^>]*><a[^>]*><span[^>]*>([^<]{3,120})</span>`)

func (a *AmazonAdapter) ScrapeFallback(ctx context.Context, term string) ([]model.Keyword, error) {
	rawURL := fmt.Sprintf("https://www.%s/s?", a.marketplace) + url.Values{"k": {term}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("amazon: building scrape request: %w", err)
	}

	resp, kind, err := a.sess.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("amazon: scrape request: %w", err)
	}
	defer resp.Body.Close()
	if kind != model.ErrorKindNone {
		return nil, fmt.Errorf("amazon: scrape returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("amazon: reading scrape body: %w", err)
	}

	sponsoredCount := len(amazonSponsoredRe.FindAllIndex(body, -1))
	titles := amazonTitleRe.FindAllStringSubmatch(string(body), -1)

	kws := make([]model.Keyword, 0, len(titles))
	for _, m := range titles {
		kws = append(kws, model.Keyword{
			Term:         m[1],
			Competition:  clamp01(float64(sponsoredCount) / 10.0),
			Source:       a.Provider(),
			ClusterOrder: -1,
		})
	}
	return kws, nil
}
