// Package enrich implements the Enricher component: per-candidate
// semantic, contextual, trend, competition, and intent signal extraction,
// cached by the stable hash of its inputs.
package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"keywordintel/internal/model"
)

// Context carries the optional caller-supplied signals used by the
// Contextual family. A nil Context skips that family entirely.
type Context struct {
	Domain   string
	Audience string
	Season   string
	Trends   []string
}

// Record is the full enrichment output for one candidate, one level
// richer than model.EnrichmentRecord (which only carries the term, the
// boolean brand/location/product/seasonal flags and a trend score).
type Record struct {
	model.EnrichmentRecord

	WordCount      int
	AvgWordLength  float64
	HasDigits      bool
	HasSpecialChars bool
	LongTail       bool

	ContextualRelevance map[string]float64 // domain, audience, season, trends

	TrendDirection string
	TrendStrength  float64

	Difficulty float64
	Opportunity float64
	Saturation float64

	DominantIntent model.Intent
	IntentScores   map[model.Intent]float64

	Confidence float64
}

// Config tunes vocabularies and the acceptance threshold.
type Config struct {
	Brands    []string
	Locations []string
	Products  []string
	Seasonal  []string

	ConfidenceThreshold float64
	CacheSize           int
}

func DefaultConfig() Config {
	return Config{
		Brands:    []string{"nike", "adidas", "apple", "samsung", "amazon"},
		Locations: []string{"sao paulo", "rio de janeiro", "new york", "online", "nearby"},
		Products:  []string{"shoes", "phone", "laptop", "course", "subscription"},
		Seasonal:  []string{"black friday", "christmas", "summer", "back to school", "valentine"},

		ConfidenceThreshold: 0.3,
		CacheSize:           2048,
	}
}

var specialCharsRegex = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
var digitsRegex = regexp.MustCompile(`[0-9]`)

var intentPatterns = map[model.Intent]*regexp.Regexp{
	model.IntentCommercial:    regexp.MustCompile(`(?i)\b(best|top|review|vs|compare|cheap|price)\b`),
	model.IntentTransactional: regexp.MustCompile(`(?i)\b(buy|order|discount|coupon|shop|purchase)\b`),
	model.IntentInformational: regexp.MustCompile(`(?i)\b(how|what|why|guide|tutorial|learn)\b`),
	model.IntentNavigational:  regexp.MustCompile(`(?i)\b(login|site|official|homepage)\b`),
	model.IntentComparison:    regexp.MustCompile(`(?i)\b(vs|versus|or|alternative)\b`),
}

// Enricher produces Records, caching by the hash of (term, volume, cpc,
// context).
type Enricher struct {
	cfg   Config
	cache *lru.Cache[string, Record]
}

func New(cfg Config) (*Enricher, error) {
	c, err := lru.New[string, Record](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("enricher: lru cache: %w", err)
	}
	return &Enricher{cfg: cfg, cache: c}, nil
}

// Enrich returns a Record for kw, or nil if the computed confidence falls
// below Config.ConfidenceThreshold. Records at or above the threshold are
// cached; below-threshold results are recomputed on every call.
func (e *Enricher) Enrich(kw model.Keyword, ctx *Context) (*Record, error) {
	key := cacheKey(kw, ctx)
	if rec, ok := e.cache.Get(key); ok {
		return &rec, nil
	}

	rec := e.compute(kw, ctx)
	if rec.Confidence < e.cfg.ConfidenceThreshold {
		return nil, nil
	}

	e.cache.Add(key, rec)
	return &rec, nil
}

func (e *Enricher) compute(kw model.Keyword, ctx *Context) Record {
	term := strings.TrimSpace(kw.Term)
	lower := strings.ToLower(term)
	words := strings.Fields(term)

	rec := Record{
		EnrichmentRecord: model.EnrichmentRecord{
			Term:       kw.Term,
			IsBrand:    containsAny(lower, e.cfg.Brands),
			IsLocation: containsAny(lower, e.cfg.Locations),
			IsProduct:  containsAny(lower, e.cfg.Products),
			Seasonal:   containsAny(lower, e.cfg.Seasonal),
		},
		WordCount:       len(words),
		HasDigits:       digitsRegex.MatchString(term),
		HasSpecialChars: specialCharsRegex.MatchString(term),
		LongTail:        len(words) > 2,
	}

	if rec.WordCount > 0 {
		total := 0
		for _, w := range words {
			total += len([]rune(w))
		}
		rec.AvgWordLength = float64(total) / float64(rec.WordCount)
	}

	if ctx != nil {
		rec.ContextualRelevance = map[string]float64{
			"domain":   relevance(lower, ctx.Domain),
			"audience": relevance(lower, ctx.Audience),
			"season":   relevance(lower, ctx.Season),
			"trends":   relevanceAny(lower, ctx.Trends),
		}
	}

	rec.TrendDirection = "stable"
	rec.TrendStrength = 0.5
	rec.TrendScore = 0.5
	if rec.Seasonal {
		rec.TrendDirection = "up"
		rec.TrendStrength = 0.8
		rec.TrendScore = 0.8
	}

	rec.Difficulty = kw.Competition
	rec.Opportunity = (1 - kw.Competition) * clamp01(float64(kw.SearchVolume)/1000)
	rec.Saturation = kw.Competition

	rec.IntentScores = make(map[model.Intent]float64, len(intentPatterns))
	var dominant model.Intent
	var best float64
	for intent, re := range intentPatterns {
		score := 0.0
		if re.MatchString(term) {
			score = 1.0
		}
		rec.IntentScores[intent] = score
		if score > best {
			best = score
			dominant = intent
		}
	}
	if dominant == "" {
		dominant = model.IntentInformational
	}
	rec.DominantIntent = dominant

	rec.Confidence = confidenceScore(rec)
	return rec
}

func confidenceScore(r Record) float64 {
	hits := 0.0
	total := 5.0

	if r.IsBrand || r.IsLocation || r.IsProduct {
		hits++
	}
	if r.WordCount > 0 {
		hits++
	}
	if r.ContextualRelevance != nil {
		hits++
	}
	if r.TrendStrength > 0 {
		hits++
	}
	if r.DominantIntent != "" {
		hits++
	}

	return hits / total
}

func containsAny(lower string, vocab []string) bool {
	for _, v := range vocab {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

func relevance(lower, want string) float64 {
	if want == "" {
		return 0
	}
	if strings.Contains(lower, strings.ToLower(want)) {
		return 1
	}
	return 0
}

func relevanceAny(lower string, wants []string) float64 {
	if len(wants) == 0 {
		return 0
	}
	hits := 0
	for _, w := range wants {
		if strings.Contains(lower, strings.ToLower(w)) {
			hits++
		}
	}
	return clamp01(float64(hits) / float64(len(wants)))
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

func cacheKey(kw model.Keyword, ctx *Context) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%.4f", kw.NormalizedTerm(), kw.SearchVolume, kw.CPC)
	if ctx != nil {
		trends := append([]string(nil), ctx.Trends...)
		sort.Strings(trends)
		fmt.Fprintf(h, "|%s|%s|%s|%s", ctx.Domain, ctx.Audience, ctx.Season, strings.Join(trends, ","))
	}
	return hex.EncodeToString(h.Sum(nil))
}
