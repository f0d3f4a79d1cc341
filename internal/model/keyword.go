// Package model holds the core data types shared across the collection,
// validation, enrichment, and scoring stages of the keyword pipeline.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Intent classifies the search intent behind a keyword.
type Intent string

const (
	IntentInformational Intent = "informational"
	IntentCommercial     Intent = "commercial"
	IntentNavigational   Intent = "navigational"
	IntentTransactional  Intent = "transactional"
	IntentComparison     Intent = "comparison"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentInformational, IntentCommercial, IntentNavigational, IntentTransactional, IntentComparison:
		return true
	}
	return false
}

// ScoreWeights controls the relative contribution of each signal to a
// keyword's score. The zero value is meaningless; use DefaultScoreWeights.
type ScoreWeights struct {
	Volume      float64
	CPC         float64
	Intent      float64
	Competition float64
}

// DefaultScoreWeights matches the weighting used across the corpus this
// pipeline was built from: volume dominates, followed by CPC, then
// intent, with competition contributing the least.
var DefaultScoreWeights = ScoreWeights{
	Volume:      0.4,
	CPC:         0.3,
	Intent:      0.2,
	Competition: 0.1,
}

// intentWeight returns the intent multiplier used by Score: commercial
// and transactional intents carry full weight, everything else half.
func intentWeight(i Intent) float64 {
	if i == IntentCommercial || i == IntentTransactional {
		return 1.0
	}
	return 0.5
}

// Keyword is a single candidate term flowing through the pipeline.
type Keyword struct {
	Term        string
	SearchVolume int
	CPC         float64
	Competition float64 // 0..1
	Intent      Intent

	Score         float64
	Justification string

	Source      string
	CollectedAt time.Time

	ClusterOrder int // -1 when not assigned to a cluster
	FunnelStage  string
	ArticleName  string
}

// NormalizedTerm trims the term and lower-cases it for equality/hash purposes.
// It does not mutate Term in place; callers that want the canonical form
// should assign the result back.
func (k Keyword) NormalizedTerm() string {
	return strings.ToLower(strings.TrimSpace(k.Term))
}

// Equal implements case-insensitive equality on the term, matching the
// identity semantics keywords are deduplicated under throughout this
// pipeline (two keywords are "the same" candidate regardless of case).
func (k Keyword) Equal(other Keyword) bool {
	return k.NormalizedTerm() == other.NormalizedTerm()
}

// Validate checks the struct invariants a Keyword must hold before it can
// enter the pipeline. It does not apply the configurable Keyword
// Validator rules (blacklist, whitelist, length knobs, etc.) — those live
// in package validator and run after this structural check.
func (k Keyword) Validate() error {
	term := strings.TrimSpace(k.Term)
	if term == "" {
		return fmt.Errorf("keyword: term cannot be empty")
	}
	if len(term) > 100 {
		return fmt.Errorf("keyword: term exceeds 100 characters")
	}
	if k.SearchVolume < 0 {
		return fmt.Errorf("keyword: search volume cannot be negative")
	}
	if k.CPC < 0 {
		return fmt.Errorf("keyword: cpc cannot be negative")
	}
	if k.Competition < 0 || k.Competition > 1 {
		return fmt.Errorf("keyword: competition must be between 0 and 1")
	}
	if k.Intent != "" && !k.Intent.Valid() {
		return fmt.Errorf("keyword: invalid intent %q", k.Intent)
	}
	return nil
}

// MergeByTerm performs the commutative duplicate merge shared by the
// Normalizer/Cleaning stage (spec §4.5 point 5) and the Orchestrator's
// cross-provider merge (spec §5): keywords that normalize to the same
// term are combined into one record, taking the max of volume and cpc
// (the more optimistic source wins on scale) and the mean of competition
// (no single source's estimate dominates). Input order is preserved by
// first-occurrence position.
func MergeByTerm(keywords []Keyword) []Keyword {
	order := make([]string, 0, len(keywords))
	byTerm := make(map[string]*mergedKeyword, len(keywords))

	for _, kw := range keywords {
		key := kw.NormalizedTerm()
		entry, ok := byTerm[key]
		if !ok {
			k := kw
			byTerm[key] = &mergedKeyword{kw: k, competitionSum: kw.Competition, count: 1}
			order = append(order, key)
			continue
		}

		if kw.SearchVolume > entry.kw.SearchVolume {
			entry.kw.SearchVolume = kw.SearchVolume
		}
		if kw.CPC > entry.kw.CPC {
			entry.kw.CPC = kw.CPC
		}
		entry.competitionSum += kw.Competition
		entry.count++
		if entry.kw.Source != "" && kw.Source != "" && entry.kw.Source != kw.Source {
			entry.kw.Source = entry.kw.Source + "+" + kw.Source
		} else if entry.kw.Source == "" {
			entry.kw.Source = kw.Source
		}
		if entry.kw.Intent == "" && kw.Intent != "" {
			entry.kw.Intent = kw.Intent
		}
	}

	out := make([]Keyword, 0, len(order))
	for _, key := range order {
		entry := byTerm[key]
		entry.kw.Competition = entry.competitionSum / float64(entry.count)
		out = append(out, entry.kw)
	}
	return out
}

type mergedKeyword struct {
	kw             Keyword
	competitionSum float64
	count          int
}

// CalculateScore computes the weighted score and its deterministic
// justification string, both stored back onto the keyword. Volume is
// divided by 100 before weighting so a single high-volume outlier doesn't
// swamp the other signals.
func (k *Keyword) CalculateScore(w ScoreWeights) {
	iw := intentWeight(k.Intent)
	score := w.Volume*(float64(k.SearchVolume)/100.0) +
		w.CPC*k.CPC +
		w.Intent*iw +
		w.Competition*k.Competition

	k.Score = score
	k.Justification = fmt.Sprintf(
		"score = %.1f*volume(%d) + %.1f*cpc(%.2f) + %.1f*intent(%.2f) + %.1f*competition(%.2f) = %.2f",
		w.Volume, k.SearchVolume, w.CPC, k.CPC, w.Intent, iw, w.Competition, k.Competition, score,
	)

	if k.ClusterOrder >= 0 {
		k.ArticleName = fmt.Sprintf("Article%d", k.ClusterOrder+1)
	} else {
		k.ArticleName = ""
	}
}
