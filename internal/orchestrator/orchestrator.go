// Package orchestrator implements the Orchestrator Stage (C11): a thin
// wrapper that resolves collectors for a request, fans them out with
// bounded concurrency, merges their results preserving provenance, and
// hands the merged pool to the Processing Pipeline. It owns neither
// retry policy (per-adapter, via collector.Runner) nor persistence.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"keywordintel/internal/collector"
	"keywordintel/internal/enrich"
	"keywordintel/internal/mladjuster"
	"keywordintel/internal/model"
	"keywordintel/internal/pipeline"
)

// Binding pairs one adapter with the operation the Orchestrator should
// invoke it for, resolved once at construction.
type Binding struct {
	Adapter   collector.Adapter
	Operation collector.Capability
}

// Config tunes fan-out behavior.
type Config struct {
	// Concurrency bounds how many collectors run at once. Zero means
	// "number of resolved collectors" (the spec's stated default).
	Concurrency int
	// StageDeadline, when non-zero, bounds the whole fan-out plus
	// pipeline run; it is the deadline every collector call inherits.
	StageDeadline time.Duration
}

// Request is one operator ask: a seed term, optional provider subset,
// and whatever context the Pipeline's Enrich/ML stages should see.
type Request struct {
	RunID           string
	Term            string
	Providers       []string // empty means "all bound providers"
	EnrichContext   *enrich.Context
	MLContext       mladjuster.SuggestContext
	FeedbackHistory []mladjuster.FeedbackRecord
	WithReport      bool
}

// CollectorStat is the per-collector provenance and degradation record
// the spec requires StageResult to carry.
type CollectorStat struct {
	Provider       string
	Status         collector.Status
	Attempts       int
	DurationMS     int64
	ScrapeFallback bool
	CandidateCount int
	Err            string
}

// StageResult is what Run returns: final candidates, per-collector
// degradation flags, and timing.
type StageResult struct {
	Candidates  []model.Keyword
	Collectors  []CollectorStat
	Report      *pipeline.Report
	DurationMS  int64
	Degraded    bool
}

// Orchestrator is constructed once with its full collector roster and
// processing pipeline; Run is safe for concurrent use across requests.
type Orchestrator struct {
	runner   *collector.Runner
	bindings map[string]Binding
	pipe     *pipeline.Pipeline
	cfg      Config
}

func New(runner *collector.Runner, bindings map[string]Binding, pipe *pipeline.Pipeline, cfg Config) *Orchestrator {
	return &Orchestrator{runner: runner, bindings: bindings, pipe: pipe, cfg: cfg}
}

// Run resolves the requested collectors, fans them out, merges their
// results, and runs the Processing Pipeline over the merged pool.
func (o *Orchestrator) Run(ctx context.Context, req Request) (StageResult, error) {
	start := time.Now()

	if o.cfg.StageDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.StageDeadline)
		defer cancel()
	}

	providers := req.Providers
	if len(providers) == 0 {
		providers = make([]string, 0, len(o.bindings))
		for name := range o.bindings {
			providers = append(providers, name)
		}
	}

	bindings := make([]Binding, 0, len(providers))
	for _, name := range providers {
		b, ok := o.bindings[name]
		if !ok {
			return StageResult{}, fmt.Errorf("orchestrator: no collector bound for provider %q", name)
		}
		bindings = append(bindings, b)
	}

	limit := o.cfg.Concurrency
	if limit <= 0 {
		limit = len(bindings)
	}
	if limit < 1 {
		limit = 1
	}

	results := make([]collector.Result, len(bindings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, b := range bindings {
		i, b := i, b
		g.Go(func() error {
			results[i] = o.runner.Collect(gctx, b.Adapter, b.Operation, req.Term)
			return nil
		})
	}
	// errgroup.Group.Go functions here never return an error themselves
	// (each collector failure, a stage deadline included, is captured in
	// its own Result), so Wait always returns nil.
	if err := g.Wait(); err != nil {
		slog.WarnContext(ctx, "orchestrator: fan-out context ended early", "error", err)
	}

	stats := make([]CollectorStat, 0, len(results))
	degraded := false
	var merged []model.Keyword

	for _, res := range results {
		stats = append(stats, CollectorStat{
			Provider:       res.Provider,
			Status:         res.Status,
			Attempts:       res.Attempts,
			DurationMS:     res.DurationMS,
			ScrapeFallback: res.ScrapeFallback,
			CandidateCount: len(res.Keywords),
			Err:            errString(res.Err),
		})
		if res.Status != collector.StatusOK && res.Status != collector.StatusCached {
			degraded = true
		}
		if res.ScrapeFallback {
			degraded = true
		}
		merged = append(merged, res.Keywords...)
	}

	pool := model.MergeByTerm(merged)

	pctx := &pipeline.Context{
		RunID:           req.RunID,
		EnrichContext:   req.EnrichContext,
		MLContext:       req.MLContext,
		FeedbackHistory: req.FeedbackHistory,
	}

	final, report := o.pipe.Process(ctx, pctx, pool, req.WithReport)

	return StageResult{
		Candidates: final,
		Collectors: stats,
		Report:     report,
		DurationMS: time.Since(start).Milliseconds(),
		Degraded:   degraded,
	}, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
