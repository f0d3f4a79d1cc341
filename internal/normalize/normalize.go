// Package normalize implements the Normalizer component: whitespace
// collapsing, casing, and optional diacritic stripping applied to raw
// collector output before validation.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Config mirrors the knobs the original pipeline's normalization handler
// exposed: whether to strip accents, whether comparisons/casing are
// case-sensitive, and the restricted-alphabet character policy (spec
// §4.5 point 3 / §6's allowed_char_regex). AllowedCharRegex is evaluated
// against the term after whitespace/case/accent normalization; a term
// that fails it is rejected outright (Normalize returns "").
type Config struct {
	StripAccents     bool
	CaseSensitive    bool
	AllowedCharRegex *regexp.Regexp
}

// DefaultConfig matches the restricted alphabet package validator's
// DefaultConfig enforces, so a term that would fail the Validator's
// character_policy rule is rejected at the Normalizer stage instead, per
// spec §4.5 point 3.
func DefaultConfig() Config {
	return Config{
		StripAccents:     true,
		CaseSensitive:    false,
		AllowedCharRegex: regexp.MustCompile(`^[\w\s\-.,?!]+$`),
	}
}

var stripAccentsTransform = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalizer applies Config to raw terms.
type Normalizer struct {
	cfg Config
}

func New(cfg Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Normalize collapses internal whitespace, trims the term, optionally
// strips diacritics, optionally lower-cases it, and validates the result
// against AllowedCharRegex. A term that fails the character policy is
// rejected by returning the empty string, per spec §4.5 point 3; it is
// the caller's responsibility to drop empty terms downstream (the
// Processing Pipeline's clean stage does this).
func (n *Normalizer) Normalize(term string) string {
	term = strings.TrimSpace(term)
	term = collapseWhitespace(term)

	if n.cfg.StripAccents {
		if stripped, _, err := transform.String(stripAccentsTransform, term); err == nil {
			term = stripped
		}
	}

	if !n.cfg.CaseSensitive {
		term = strings.ToLower(term)
	}

	if n.cfg.AllowedCharRegex != nil && term != "" && !n.cfg.AllowedCharRegex.MatchString(term) {
		return ""
	}

	return term
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// Dedup removes duplicate terms (after normalization) from terms,
// preserving the first occurrence's original casing/order. This grounds
// the spec's normalize+dedup scenario.
func (n *Normalizer) Dedup(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))

	for _, t := range terms {
		key := n.Normalize(t)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}

	return out
}
