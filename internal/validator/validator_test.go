package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keywordintel/internal/model"
)

func TestValidateOne_HappyPath(t *testing.T) {
	v := New(DefaultConfig())

	kw := model.Keyword{
		Term:         "curso marketing digital",
		SearchVolume: 1000,
		CPC:          2.5,
		Competition:  0.7,
		Intent:       model.IntentInformational,
		Score:        0.85,
	}

	ok, detail := v.ValidateOne(kw)
	require.True(t, ok)
	assert.Empty(t, detail.Violations)
}

func TestValidateOne_MultiViolation(t *testing.T) {
	v := New(DefaultConfig())

	kw := model.Keyword{
		Term:         "a",
		SearchVolume: 50,
		CPC:          0.05,
		Competition:  1.5,
		Intent:       model.IntentInformational,
		Score:        0.1,
	}

	ok, detail := v.ValidateOne(kw)
	require.False(t, ok)

	tags := make(map[model.ViolationTag]bool)
	for _, tag := range detail.Violations {
		tags[tag] = true
	}

	for _, expected := range []model.ViolationTag{
		model.ViolationTermTooShort, model.ViolationWordCountBelowMin, model.ViolationVolumeBelowMin,
		model.ViolationCPCBelowMin, model.ViolationCompetitionOutOfRange, model.ViolationScoreBelowMin,
	} {
		assert.True(t, tags[expected], "expected violation %s", expected)
	}
}

func TestValidateOne_RuleIndependence(t *testing.T) {
	// Each rule must be triggerable in isolation - a candidate that fails
	// only the blacklist rule shouldn't also trip unrelated rules.
	cfg := DefaultConfig()
	cfg.Blacklist = []string{"forbidden term here"}
	v := New(cfg)

	kw := model.Keyword{
		Term:         "forbidden term here",
		SearchVolume: 1000,
		CPC:          2.5,
		Competition:  0.5,
		Intent:       model.IntentCommercial,
		Score:        0.9,
	}

	ok, detail := v.ValidateOne(kw)
	require.False(t, ok)
	assert.Equal(t, []model.ViolationTag{model.ViolationBlacklisted}, detail.Violations)
}

func TestValidateAll_ReportAggregates(t *testing.T) {
	v := New(DefaultConfig())

	candidates := []model.Keyword{
		{Term: "curso marketing digital", SearchVolume: 1000, CPC: 2.5, Competition: 0.7, Intent: model.IntentInformational, Score: 0.85},
		{Term: "a", SearchVolume: 50, CPC: 0.05, Competition: 1.5, Intent: model.IntentInformational, Score: 0.1},
	}

	accepted, rejected, report := v.ValidateAll("run-1", candidates)

	assert.Len(t, accepted, 1)
	assert.Len(t, rejected, 1)
	assert.Equal(t, 2, report.Total)
	assert.GreaterOrEqual(t, len(report.Violations), len(rejected))
	assert.InDelta(t, 0.5, report.AcceptanceRate(), 0.0001)
}
