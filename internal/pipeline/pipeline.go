// Package pipeline implements the Processing Pipeline component (C10):
// an ordered, data-driven handler chain over a candidate keyword list,
// where each handler is tolerant of its own failure and construction
// rejects unknown handler names up front.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"keywordintel/internal/enrich"
	"keywordintel/internal/mladjuster"
	"keywordintel/internal/model"
	"keywordintel/internal/normalize"
	"keywordintel/internal/validator"
)

// HandlerName is a closed set of stage names a Pipeline can be built
// from; unrecognized names fail at New, never at Process.
type HandlerName string

const (
	HandlerNormalize     HandlerName = "normalize"
	HandlerClean         HandlerName = "clean"
	HandlerValidate      HandlerName = "validate"
	HandlerEnrich        HandlerName = "enrich"
	HandlerML            HandlerName = "ml"
	HandlerFinalValidate HandlerName = "final_validate"
)

// Context is the shared, mutable bag handlers may read from; it is never
// used to smuggle candidates between stages (those flow through the
// return value only).
type Context struct {
	RunID           string
	EnrichContext   *enrich.Context
	MLContext       mladjuster.SuggestContext
	FeedbackHistory []mladjuster.FeedbackRecord
}

// StageStat records one handler's contribution to a Report.
type StageStat struct {
	Name      HandlerName
	InputSize int
	OutputSize int
	ElapsedMS int64
	Failed    bool
	Error     string
}

// Report is the optional per-run summary Process assembles when asked.
type Report struct {
	Stages           []StageStat
	ValidationReport *model.ValidationReport
	MLInputCount     int
	MLOutputCount    int
}

// handlerFunc is the uniform internal shape every stage is adapted to:
// take the current list, return the next list. A handler that fails
// returns an error and Process treats it as a no-op (its input list is
// carried forward unchanged).
type handlerFunc func(ctx context.Context, pctx *Context, candidates []model.Keyword) ([]model.Keyword, error)

// Pipeline is an ordered, pre-validated chain of handlers.
type Pipeline struct {
	names    []HandlerName
	handlers []handlerFunc

	normalizer *normalize.Normalizer
	validator  *validator.Validator
	enricher   *enrich.Enricher
	adjuster   mladjuster.Adjuster

	lastValidationReport *model.ValidationReport
	mlInputCount, mlOutputCount int

	postCallback func(candidates []model.Keyword)
}

// Deps supplies the collaborators handlers are built from. Any of
// validator/enricher/adjuster may be nil if the corresponding handler
// name is never selected.
type Deps struct {
	Normalizer *normalize.Normalizer
	Validator  *validator.Validator
	Enricher   *enrich.Enricher
	Adjuster   mladjuster.Adjuster
	// PostCallback, when set, is invoked with the final candidate list
	// after all handlers run. Panics inside it are recovered and logged,
	// never propagated to the caller.
	PostCallback func(candidates []model.Keyword)
}

// New builds a Pipeline from an ordered list of handler names, rejecting
// unknown names immediately instead of deferring the failure to Process.
func New(names []HandlerName, deps Deps) (*Pipeline, error) {
	p := &Pipeline{
		names:        names,
		normalizer:   deps.Normalizer,
		validator:    deps.Validator,
		enricher:     deps.Enricher,
		adjuster:     deps.Adjuster,
		postCallback: deps.PostCallback,
	}
	if p.adjuster == nil {
		p.adjuster = mladjuster.NoopAdjuster{}
	}

	p.handlers = make([]handlerFunc, 0, len(names))
	for _, name := range names {
		h, err := p.resolve(name)
		if err != nil {
			return nil, err
		}
		p.handlers = append(p.handlers, h)
	}
	return p, nil
}

func (p *Pipeline) resolve(name HandlerName) (handlerFunc, error) {
	switch name {
	case HandlerNormalize:
		if p.normalizer == nil {
			return nil, fmt.Errorf("pipeline: normalize handler requires a Normalizer")
		}
		return p.normalizeStage, nil
	case HandlerClean:
		return p.cleanStage, nil
	case HandlerValidate, HandlerFinalValidate:
		if p.validator == nil {
			return nil, fmt.Errorf("pipeline: %s handler requires a Validator", name)
		}
		return p.validateStage, nil
	case HandlerEnrich:
		if p.enricher == nil {
			return nil, fmt.Errorf("pipeline: enrich handler requires an Enricher")
		}
		return p.enrichStage, nil
	case HandlerML:
		return p.mlStage, nil
	default:
		return nil, fmt.Errorf("pipeline: unknown handler %q", name)
	}
}

// Process runs every handler in order over candidates, tolerating
// per-handler failure, and optionally assembles a Report.
func (p *Pipeline) Process(ctx context.Context, pctx *Context, candidates []model.Keyword, withReport bool) ([]model.Keyword, *Report) {
	var stats []StageStat
	current := candidates

	for i, h := range p.handlers {
		name := p.names[i]
		start := time.Now()
		inputSize := len(current)

		next, err := p.runHandler(ctx, pctx, h, current, name)
		elapsed := time.Since(start)

		if err != nil {
			slog.ErrorContext(ctx, "pipeline handler failed, passing input through unchanged", "handler", name, "error", err)
			next = current
		}

		if withReport {
			stats = append(stats, StageStat{
				Name:       name,
				InputSize:  inputSize,
				OutputSize: len(next),
				ElapsedMS:  elapsed.Milliseconds(),
				Failed:     err != nil,
				Error:      errString(err),
			})
		}

		current = next
	}

	p.invokePostCallback(ctx, current)

	if !withReport {
		return current, nil
	}

	return current, &Report{
		Stages:           stats,
		ValidationReport: p.lastValidationReport,
		MLInputCount:     p.mlInputCount,
		MLOutputCount:    p.mlOutputCount,
	}
}

// runHandler invokes h, recovering from panics the same way a caught
// exception would be handled in the source this pipeline is modeled on:
// the handler becomes a no-op and the failure is surfaced as an error.
func (p *Pipeline) runHandler(ctx context.Context, pctx *Context, h handlerFunc, candidates []model.Keyword, name HandlerName) (out []model.Keyword, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "pipeline handler panicked", "handler", name, "panic", r, "stack", string(debug.Stack()))
			out = candidates
			err = fmt.Errorf("pipeline: handler %s panicked: %v", name, r)
		}
	}()
	return h(ctx, pctx, candidates)
}

func (p *Pipeline) invokePostCallback(ctx context.Context, candidates []model.Keyword) {
	if p.postCallback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "pipeline post-callback panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	p.postCallback(candidates)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (p *Pipeline) normalizeStage(_ context.Context, _ *Context, candidates []model.Keyword) ([]model.Keyword, error) {
	out := make([]model.Keyword, len(candidates))
	for i, kw := range candidates {
		kw.Term = p.normalizer.Normalize(kw.Term)
		out[i] = kw
	}
	return out, nil
}

// cleanStage drops empty terms and de-duplicates by normalized term,
// merging duplicates per spec §4.5 point 5 rather than discarding them:
// max(volume), max(cpc), mean(competition), same rule the Orchestrator
// uses to merge candidates across providers (model.MergeByTerm).
func (p *Pipeline) cleanStage(_ context.Context, _ *Context, candidates []model.Keyword) ([]model.Keyword, error) {
	nonEmpty := make([]model.Keyword, 0, len(candidates))
	for _, kw := range candidates {
		if kw.Term == "" {
			continue
		}
		nonEmpty = append(nonEmpty, kw)
	}
	return model.MergeByTerm(nonEmpty), nil
}

func (p *Pipeline) validateStage(_ context.Context, pctx *Context, candidates []model.Keyword) ([]model.Keyword, error) {
	accepted, _, report := p.validator.ValidateAll(pctx.RunID, candidates)
	p.lastValidationReport = &report
	return accepted, nil
}

func (p *Pipeline) enrichStage(ctx context.Context, pctx *Context, candidates []model.Keyword) ([]model.Keyword, error) {
	out := make([]model.Keyword, 0, len(candidates))
	for _, kw := range candidates {
		rec, err := p.enricher.Enrich(kw, pctx.EnrichContext)
		if err != nil {
			slog.WarnContext(ctx, "enrich stage: keyword enrichment failed, keeping candidate unenriched", "term", kw.Term, "error", err)
			out = append(out, kw)
			continue
		}
		if rec == nil {
			// below confidence threshold: drop the candidate, per the
			// Enricher's own gating contract.
			continue
		}
		out = append(out, kw)
	}
	return out, nil
}

func (p *Pipeline) mlStage(ctx context.Context, pctx *Context, candidates []model.Keyword) ([]model.Keyword, error) {
	p.mlInputCount = len(candidates)

	suggested, err := p.adjuster.Suggest(ctx, candidates, pctx.MLContext)
	if err != nil {
		slog.WarnContext(ctx, "ml stage: suggest failed, proceeding with pre-ml candidates", "error", err)
		suggested = candidates
	}

	if len(pctx.FeedbackHistory) > 0 {
		filtered, err := p.adjuster.BlockRepeats(ctx, suggested, pctx.FeedbackHistory)
		if err != nil {
			slog.WarnContext(ctx, "ml stage: block_repeats failed, keeping unfiltered suggestions", "error", err)
		} else {
			suggested = filtered
		}

		if err := p.adjuster.TrainIncremental(ctx, pctx.FeedbackHistory); err != nil {
			slog.WarnContext(ctx, "ml stage: train_incremental failed", "error", err)
		}
	}

	p.mlOutputCount = len(suggested)
	return suggested, nil
}
