// Package mladjuster implements the ML Adjuster external interface
// (C8): an optional, fault-tolerant collaborator that may re-rank, add,
// or filter candidates. The pipeline never depends on a concrete
// backend — only on the Adjuster interface below.
package mladjuster

import (
	"context"

	"keywordintel/internal/model"
)

// FeedbackRecord is one entry from the optional Feedback store: a past
// candidate, its outcome score, and a coarse feedback kind (e.g.
// "published", "rejected", "duplicate").
type FeedbackRecord struct {
	Term         string
	Score        float64
	FeedbackKind string
}

// SuggestContext carries whatever the caller wants the adjuster to
// condition on; it is opaque to the pipeline.
type SuggestContext struct {
	Domain   string
	Audience string
	Notes    string
}

// Adjuster is the pluggable ML collaborator. All three methods are
// tolerated to fail by the caller (package pipeline): on error, the
// pipeline logs and proceeds with the pre-call candidate set.
type Adjuster interface {
	Suggest(ctx context.Context, candidates []model.Keyword, sctx SuggestContext) ([]model.Keyword, error)
	BlockRepeats(ctx context.Context, candidates []model.Keyword, history []FeedbackRecord) ([]model.Keyword, error)
	TrainIncremental(ctx context.Context, history []FeedbackRecord) error
}

// NoopAdjuster is used when the pipeline is constructed without any ML
// backend; every call is a pass-through no-op, matching "the adjuster is
// optional; when absent the pipeline is a no-op at this stage."
type NoopAdjuster struct{}

func (NoopAdjuster) Suggest(_ context.Context, candidates []model.Keyword, _ SuggestContext) ([]model.Keyword, error) {
	return candidates, nil
}

func (NoopAdjuster) BlockRepeats(_ context.Context, candidates []model.Keyword, _ []FeedbackRecord) ([]model.Keyword, error) {
	return candidates, nil
}

func (NoopAdjuster) TrainIncremental(_ context.Context, _ []FeedbackRecord) error {
	return nil
}

// blockRepeats is the shared, backend-agnostic implementation of
// BlockRepeats: a pure in-process filter against supplied history, not a
// network round trip. Both concrete backends below embed it.
func blockRepeats(candidates []model.Keyword, history []FeedbackRecord) []model.Keyword {
	blocked := make(map[string]struct{}, len(history))
	for _, h := range history {
		if h.FeedbackKind == "duplicate" || h.FeedbackKind == "rejected" {
			blocked[normalize(h.Term)] = struct{}{}
		}
	}

	out := make([]model.Keyword, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := blocked[normalize(c.Term)]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func normalize(s string) string {
	return model.Keyword{Term: s}.NormalizedTerm()
}
