package model

import "time"

// Cluster groups related keywords under a shared topic, ordering members
// for downstream content planning.
type Cluster struct {
	ID       string
	Topic    string
	Keywords []Keyword
}

// Reorder assigns ClusterOrder/ArticleName to each member in place, in the
// slice's current order, and recomputes scores so ArticleName reflects
// the new position.
func (c *Cluster) Reorder(w ScoreWeights) {
	for i := range c.Keywords {
		c.Keywords[i].ClusterOrder = i
		c.Keywords[i].CalculateScore(w)
	}
}

// ViolationTag names a specific Keyword Validator rule violation. The set
// matches the rules package validator.Validator.ValidateOne actually runs,
// one tag per rule in the table from spec.md §4.6, and two (below/above or
// short/long) for the length and range rules.
type ViolationTag string

const (
	ViolationTermTooShort          ViolationTag = "term_too_short"
	ViolationTermTooLong           ViolationTag = "term_too_long"
	ViolationWordCountBelowMin     ViolationTag = "word_count_below_min"
	ViolationCharsNotAllowed       ViolationTag = "chars_not_allowed"
	ViolationVolumeBelowMin        ViolationTag = "volume_below_min"
	ViolationVolumeAboveMax        ViolationTag = "volume_above_max"
	ViolationCPCBelowMin           ViolationTag = "cpc_below_min"
	ViolationCPCAboveMax           ViolationTag = "cpc_above_max"
	ViolationCompetitionOutOfRange ViolationTag = "competition_out_of_range"
	ViolationScoreBelowMin         ViolationTag = "score_below_min"
	ViolationScoreAboveMax         ViolationTag = "score_above_max"
	ViolationIntentNotAllowed      ViolationTag = "intent_not_allowed"
	ViolationSourceNotAllowed      ViolationTag = "source_not_allowed"
	ViolationRequiredWordsMissing  ViolationTag = "required_words_missing"
	ViolationForbiddenWordsPresent ViolationTag = "forbidden_words_present"
	ViolationBlacklisted           ViolationTag = "blacklisted"
	ViolationNotWhitelisted        ViolationTag = "not_whitelisted"
)

// Violation is a single rule failure recorded against one keyword.
type Violation struct {
	Term string
	Tag  ViolationTag
	Detail string
}

// ValidationReport summarizes a validation pass over a batch of keywords.
type ValidationReport struct {
	RunID      string
	Total      int
	Accepted   []Keyword
	Rejected   []Keyword
	Violations []Violation
	GeneratedAt time.Time
}

// AcceptanceRate returns the fraction of keywords that passed validation,
// or 0 when the batch was empty.
func (r ValidationReport) AcceptanceRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(len(r.Accepted)) / float64(r.Total)
}

// EnrichmentRecord carries the semantic and trend signals the Enricher
// attaches to a keyword before scoring.
type EnrichmentRecord struct {
	Term       string
	IsBrand    bool
	IsLocation bool
	IsProduct  bool
	Seasonal   bool
	TrendScore float64
}

// CollectorResult is what a Collector Adapter returns from one collection
// call: the candidate keywords it found plus call metadata used by the
// Orchestrator Stage for timing and retry accounting.
type CollectorResult struct {
	Provider   string
	Keywords   []Keyword
	DurationMS int64
	Attempts   int
	ScrapeFallback bool
}

// ErrorKind is a closed set of error classifications a Collector Adapter
// or HTTP Session Manager call can fail with, used for branching instead
// of string/status-code comparisons scattered through caller code.
type ErrorKind string

const (
	ErrorKindNone          ErrorKind = ""
	ErrorKindRateLimited   ErrorKind = "rate_limited"
	ErrorKindUnauthorized  ErrorKind = "unauthorized"
	ErrorKindServerError   ErrorKind = "server_error"
	ErrorKindClientError   ErrorKind = "client_error"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindCircuitOpen   ErrorKind = "circuit_open"
	ErrorKindParseFailure  ErrorKind = "parse_failure"
	ErrorKindNetwork       ErrorKind = "network"
)
