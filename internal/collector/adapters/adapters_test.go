package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"keywordintel/internal/collector"
	"keywordintel/internal/model"
	"keywordintel/internal/session"
)

func TestSuggestionsToKeywords_SkipsEmptyTerms(t *testing.T) {
	kws := suggestionsToKeywords("google_suggest", []string{"running shoes", "", "marathon gear"})
	assert.Len(t, kws, 2)
	assert.Equal(t, "running shoes", kws[0].Term)
	assert.Equal(t, "google_suggest", kws[0].Source)
	assert.Equal(t, -1, kws[0].ClusterOrder)
}

func TestClassifyRedditIntent(t *testing.T) {
	cases := []struct {
		title string
		want  model.Intent
	}{
		{"Best running shoes vs trail shoes", model.IntentComparison},
		{"Where to buy cheap running shoes", model.IntentCommercial},
		{"How do I start marathon training?", model.IntentInformational},
		{"check out r/running subreddit rules", model.IntentNavigational},
		{"random thoughts on running", model.IntentInformational},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, classifyRedditIntent(c.title), c.title)
	}
}

func TestAdapterConstructors_DeclareExpectedCapabilities(t *testing.T) {
	sess := session.NewManager("test", session.DefaultConfig())

	tests := []struct {
		name string
		a    collector.Adapter
		caps []collector.Capability
	}{
		{"google_suggest", NewGoogleSuggestAdapter(sess), []collector.Capability{collector.CapExtractSuggestions}},
		{"google_paa", NewGooglePAAAdapter(sess), []collector.Capability{collector.CapExtractSuggestions, collector.CapClassifyIntent}},
		{"bing_suggest", NewBingSuggestAdapter(sess), []collector.Capability{collector.CapExtractSuggestions}},
		{"google_search_console", NewGoogleSearchConsoleAdapter(sess, "example.com"), []collector.Capability{collector.CapExtractMetrics, collector.CapCollectMetrics}},
		{"amazon", NewAmazonAdapter(sess, ""), []collector.Capability{collector.CapExtractSuggestions, collector.CapExtractMetrics}},
		{"reddit", NewRedditAdapter(sess), []collector.Capability{collector.CapCollectKeywords, collector.CapClassifyIntent}},
		{"youtube", NewYouTubeAdapter(sess), []collector.Capability{collector.CapExtractSuggestions}},
		{"instagram", NewInstagramAdapter(sess), []collector.Capability{collector.CapCollectKeywords}},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.name, tc.a.Provider())
		assert.ElementsMatch(t, tc.caps, tc.a.Capabilities())
		assert.NoError(t, tc.a.Close())
	}
}
