package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"keywordintel/internal/collector"
	"keywordintel/internal/model"
	"keywordintel/internal/session"
)

// GoogleSearchConsoleAdapter is the ad-planner-style metrics source:
// extract_metrics and collect_metrics, OAuth2-authenticated via the
// Session Manager's client-credentials refresh.
type GoogleSearchConsoleAdapter struct {
	base
	siteURL string
}

func NewGoogleSearchConsoleAdapter(sess *session.Manager, siteURL string) *GoogleSearchConsoleAdapter {
	return &GoogleSearchConsoleAdapter{
		base:    newBase("google_search_console", sess, collector.CapExtractMetrics, collector.CapCollectMetrics),
		siteURL: siteURL,
	}
}

type gscQueryRequest struct {
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Dimensions  []string `json:"dimensions"`
	DimensionFilterGroups []gscFilterGroup `json:"dimensionFilterGroups"`
}

type gscFilterGroup struct {
	Filters []gscFilter `json:"filters"`
}

type gscFilter struct {
	Dimension string `json:"dimension"`
	Operator  string `json:"operator"`
	Expression string `json:"expression"`
}

type gscResponse struct {
	Rows []struct {
		Keys        []string `json:"keys"`
		Clicks      float64  `json:"clicks"`
		Impressions float64  `json:"impressions"`
		CTR         float64  `json:"ctr"`
		Position    float64  `json:"position"`
	} `json:"rows"`
}

func (a *GoogleSearchConsoleAdapter) Fetch(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
	reqBody := gscQueryRequest{
		StartDate:  "today-28d",
		EndDate:    "today",
		Dimensions: []string{"query"},
		DimensionFilterGroups: []gscFilterGroup{{
			Filters: []gscFilter{{Dimension: "query", Operator: "contains", Expression: term}},
		}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, model.ErrorKindParseFailure, fmt.Errorf("google_search_console: encode request: %w", err)
	}

	rawURL := fmt.Sprintf("https://www.googleapis.com/webmasters/v3/sites/%s/searchAnalytics/query", url.QueryEscape(a.siteURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, model.ErrorKindNetwork, fmt.Errorf("google_search_console: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, kind, err := a.sess.Do(ctx, req)
	if err != nil {
		return nil, kind, err
	}
	defer resp.Body.Close()
	if kind != model.ErrorKindNone {
		return nil, kind, fmt.Errorf("google_search_console: upstream returned status %d", resp.StatusCode)
	}

	var parsed gscResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, model.ErrorKindParseFailure, fmt.Errorf("google_search_console: decode response: %w", err)
	}

	kws := make([]model.Keyword, 0, len(parsed.Rows))
	for _, row := range parsed.Rows {
		if len(row.Keys) == 0 {
			continue
		}
		kws = append(kws, model.Keyword{
			Term:         row.Keys[0],
			SearchVolume: int(row.Impressions),
			CPC:          0,
			Competition:  clamp01(row.Position / 100.0),
			Source:       a.Provider(),
			ClusterOrder: -1,
		})
	}
	return kws, model.ErrorKindNone, nil
}

// Reauth does no work of its own. The Runner's retry after it calls the
// Session Manager again, whose golang.org/x/oauth2 token source returns
// its cached token until that token expires; a 401 does not make it
// fetch a new one.
func (a *GoogleSearchConsoleAdapter) Reauth(ctx context.Context) error {
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
