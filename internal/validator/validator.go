// Package validator implements the Keyword Validator component: a
// composable, all-of rule set producing a per-candidate accept/reject
// verdict with structured violation records.
package validator

import (
	"regexp"
	"strings"
	"time"

	"keywordintel/internal/model"
)

// Config holds every knob named in the rule table: term length bounds,
// word-count floor, character policy, volume/cpc/competition/score
// ranges, allowed intents/sources, required/forbidden words, and the
// blacklist/whitelist.
type Config struct {
	MinLen, MaxLen int
	MinWords       int
	AllowedCharRegex *regexp.Regexp

	VolumeMin, VolumeMax int
	CPCMin, CPCMax       float64
	CompetitionMax       float64
	ScoreMin, ScoreMax   float64

	AllowedIntents []model.Intent
	AllowedSources []string

	RequiredWords []string
	ForbiddenWords []string

	Blacklist []string
	Whitelist []string
}

// DefaultConfig matches the original pipeline's defaults, with score
// bounds [0.3, 1.0].
func DefaultConfig() Config {
	return Config{
		MinLen:         10,
		MaxLen:         100,
		MinWords:       2,
		AllowedCharRegex: regexp.MustCompile(`^[\w\s\-.,?!]+$`),
		VolumeMin:      100,
		VolumeMax:      1_000_000,
		CPCMin:         0.1,
		CPCMax:         100,
		CompetitionMax: 0.8,
		ScoreMin:       0.3,
		ScoreMax:       1.0,
	}
}

// Detail is the per-candidate validation trace: every rule that ran and
// every rule that failed.
type Detail struct {
	ChecksRun  []string
	Violations []model.ViolationTag
}

// Validator runs Config's rule set against candidates.
type Validator struct {
	cfg Config
}

func New(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateOne runs every rule against kw. Rules are total: every rule
// runs even after an earlier one fails, so the returned Detail (and the
// aggregate ValidationReport built from many calls) is a faithful
// histogram of violations, not just the first one hit.
func (v *Validator) ValidateOne(kw model.Keyword) (bool, Detail) {
	var d Detail
	term := strings.TrimSpace(kw.Term)
	lower := strings.ToLower(term)

	d.ChecksRun = append(d.ChecksRun, "term_length")
	if len(term) == 0 || len(term) < v.cfg.MinLen {
		d.Violations = append(d.Violations, model.ViolationTermTooShort)
	} else if len(term) > v.cfg.MaxLen {
		d.Violations = append(d.Violations, model.ViolationTermTooLong)
	}

	d.ChecksRun = append(d.ChecksRun, "word_count")
	if len(strings.Fields(term)) < v.cfg.MinWords {
		d.Violations = append(d.Violations, model.ViolationWordCountBelowMin)
	}

	d.ChecksRun = append(d.ChecksRun, "character_policy")
	if v.cfg.AllowedCharRegex != nil && term != "" && !v.cfg.AllowedCharRegex.MatchString(term) {
		d.Violations = append(d.Violations, model.ViolationCharsNotAllowed)
	}

	d.ChecksRun = append(d.ChecksRun, "volume_range")
	if kw.SearchVolume < v.cfg.VolumeMin {
		d.Violations = append(d.Violations, model.ViolationVolumeBelowMin)
	} else if v.cfg.VolumeMax > 0 && kw.SearchVolume > v.cfg.VolumeMax {
		d.Violations = append(d.Violations, model.ViolationVolumeAboveMax)
	}

	d.ChecksRun = append(d.ChecksRun, "cpc_range")
	if kw.CPC < v.cfg.CPCMin {
		d.Violations = append(d.Violations, model.ViolationCPCBelowMin)
	} else if v.cfg.CPCMax > 0 && kw.CPC > v.cfg.CPCMax {
		d.Violations = append(d.Violations, model.ViolationCPCAboveMax)
	}

	d.ChecksRun = append(d.ChecksRun, "competition_range")
	if kw.Competition < 0 || kw.Competition > v.cfg.CompetitionMax {
		d.Violations = append(d.Violations, model.ViolationCompetitionOutOfRange)
	}

	d.ChecksRun = append(d.ChecksRun, "score_range")
	if kw.Score < v.cfg.ScoreMin {
		d.Violations = append(d.Violations, model.ViolationScoreBelowMin)
	} else if v.cfg.ScoreMax > 0 && kw.Score > v.cfg.ScoreMax {
		d.Violations = append(d.Violations, model.ViolationScoreAboveMax)
	}

	d.ChecksRun = append(d.ChecksRun, "intent_allowed")
	if len(v.cfg.AllowedIntents) > 0 && !intentAllowed(kw.Intent, v.cfg.AllowedIntents) {
		d.Violations = append(d.Violations, model.ViolationIntentNotAllowed)
	}

	d.ChecksRun = append(d.ChecksRun, "source_allowed")
	if len(v.cfg.AllowedSources) > 0 && !stringIn(kw.Source, v.cfg.AllowedSources) {
		d.Violations = append(d.Violations, model.ViolationSourceNotAllowed)
	}

	d.ChecksRun = append(d.ChecksRun, "required_words")
	if len(v.cfg.RequiredWords) > 0 && !allWordsPresent(lower, v.cfg.RequiredWords) {
		d.Violations = append(d.Violations, model.ViolationRequiredWordsMissing)
	}

	d.ChecksRun = append(d.ChecksRun, "forbidden_words")
	if anyWordPresent(lower, v.cfg.ForbiddenWords) {
		d.Violations = append(d.Violations, model.ViolationForbiddenWordsPresent)
	}

	d.ChecksRun = append(d.ChecksRun, "blacklist")
	if stringInFold(lower, v.cfg.Blacklist) {
		d.Violations = append(d.Violations, model.ViolationBlacklisted)
	}

	d.ChecksRun = append(d.ChecksRun, "whitelist")
	if len(v.cfg.Whitelist) > 0 && !stringInFold(lower, v.cfg.Whitelist) {
		d.Violations = append(d.Violations, model.ViolationNotWhitelisted)
	}

	return len(d.Violations) == 0, d
}

// ValidateAll partitions candidates into accepted/rejected and builds the
// aggregate ValidationReport.
func (v *Validator) ValidateAll(runID string, candidates []model.Keyword) ([]model.Keyword, []model.Keyword, model.ValidationReport) {
	report := model.ValidationReport{
		RunID:       runID,
		Total:       len(candidates),
		GeneratedAt: time.Now(),
	}

	var accepted, rejected []model.Keyword

	for _, kw := range candidates {
		ok, detail := v.ValidateOne(kw)
		if ok {
			accepted = append(accepted, kw)
			continue
		}

		rejected = append(rejected, kw)
		for _, tag := range detail.Violations {
			report.Violations = append(report.Violations, model.Violation{Term: kw.Term, Tag: tag})
		}
	}

	report.Accepted = accepted
	report.Rejected = rejected
	return accepted, rejected, report
}

func intentAllowed(intent model.Intent, allowed []model.Intent) bool {
	for _, a := range allowed {
		if a == intent {
			return true
		}
	}
	return false
}

func stringIn(s string, set []string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func stringInFold(lowerS string, set []string) bool {
	for _, v := range set {
		if strings.ToLower(v) == lowerS {
			return true
		}
	}
	return false
}

func allWordsPresent(lowerTerm string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(lowerTerm, strings.ToLower(w)) {
			return false
		}
	}
	return true
}

func anyWordPresent(lowerTerm string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(lowerTerm, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
