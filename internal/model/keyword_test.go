package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyword_CalculateScore_Scenario(t *testing.T) {
	k := Keyword{
		Term:         "best running shoes",
		SearchVolume: 200,
		CPC:          2.0,
		Competition:  0.5,
		Intent:       IntentCommercial,
		ClusterOrder: -1,
	}

	k.CalculateScore(DefaultScoreWeights)

	assert.InDelta(t, 1.65, k.Score, 0.0001)
	assert.Contains(t, k.Justification, "score = ")
	assert.Empty(t, k.ArticleName, "article name stays empty without a cluster assignment")
}

func TestKeyword_CalculateScore_InformationalIntentHalfWeight(t *testing.T) {
	commercial := Keyword{SearchVolume: 100, CPC: 1, Competition: 0.2, Intent: IntentCommercial, ClusterOrder: -1}
	informational := Keyword{SearchVolume: 100, CPC: 1, Competition: 0.2, Intent: IntentInformational, ClusterOrder: -1}

	commercial.CalculateScore(DefaultScoreWeights)
	informational.CalculateScore(DefaultScoreWeights)

	assert.Greater(t, commercial.Score, informational.Score)
	assert.InDelta(t, commercial.Score-informational.Score, DefaultScoreWeights.Intent*0.5, 0.0001)
}

func TestKeyword_CalculateScore_ArticleNameDerivedFromClusterOrder(t *testing.T) {
	k := Keyword{Term: "x", Intent: IntentInformational, ClusterOrder: 2}
	k.CalculateScore(DefaultScoreWeights)
	assert.Equal(t, "Article3", k.ArticleName)
}

func TestKeyword_Equal_CaseInsensitive(t *testing.T) {
	a := Keyword{Term: "Running Shoes"}
	b := Keyword{Term: "  running shoes  "}
	assert.True(t, a.Equal(b))
}

func TestKeyword_Validate(t *testing.T) {
	tests := []struct {
		name    string
		kw      Keyword
		wantErr bool
	}{
		{"valid", Keyword{Term: "shoes", SearchVolume: 10, CPC: 1, Competition: 0.5, Intent: IntentCommercial}, false},
		{"empty term", Keyword{Term: "  "}, true},
		{"negative volume", Keyword{Term: "shoes", SearchVolume: -1}, true},
		{"competition out of range", Keyword{Term: "shoes", Competition: 1.5}, true},
		{"negative cpc", Keyword{Term: "shoes", CPC: -1}, true},
		{"invalid intent", Keyword{Term: "shoes", Intent: "nonsense"}, true},
		{"too long", Keyword{Term: stringOfLen(101)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.kw.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestMergeByTerm_MergesDuplicatesInsteadOfKeepingFirst(t *testing.T) {
	in := []Keyword{
		{Term: "AbC", SearchVolume: 100, CPC: 1.0, Competition: 0.3, Source: "google_suggest"},
		{Term: "abc", SearchVolume: 50, CPC: 2.0, Competition: 0.7, Source: "bing_suggest"},
		{Term: "xyz", SearchVolume: 10, CPC: 0.5, Competition: 0.2},
	}

	out := MergeByTerm(in)

	require.Len(t, out, 2)
	assert.Equal(t, "AbC", out[0].Term, "first-seen casing of the term is kept")
	assert.Equal(t, 100, out[0].SearchVolume)
	assert.Equal(t, 2.0, out[0].CPC)
	assert.InDelta(t, 0.5, out[0].Competition, 0.0001)
	assert.Equal(t, "google_suggest+bing_suggest", out[0].Source)
	assert.Equal(t, "xyz", out[1].Term)
}

func TestMergeByTerm_NoDuplicatesIsUnchanged(t *testing.T) {
	in := []Keyword{{Term: "a", SearchVolume: 1}, {Term: "b", SearchVolume: 2}}
	assert.Equal(t, in, MergeByTerm(in))
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
