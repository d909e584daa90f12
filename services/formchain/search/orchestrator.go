// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/formchain/services/formchain/corpus"
	"github.com/AleutianAI/formchain/services/formchain/telemetry"
)

// Phase is the orchestrator state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseForking
	PhaseEvaluating
	PhaseCommitted
	PhaseDone
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseForking:
		return "forking"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseCommitted:
		return "committed"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Selection reasons reported in SegmentReport.Reason.
const (
	ReasonRaised    = "raised"
	ReasonThreshold = "threshold"
	ReasonFallback  = "fallback"
)

// ForkReport describes one fork of a segment.
type ForkReport struct {
	Index   int
	Steps   int
	Matched int
	Triples []Triple
	Err     error
}

// SegmentReport describes one committed segment.
type SegmentReport struct {
	Index            int
	Winner           int
	Reason           string
	CanonicalMatched int
	Matched          int
	Triples          []Triple
	Forks            []ForkReport
	Output           int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. Nil disables recording.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t *Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithObserver registers a callback invoked after every committed segment.
func WithObserver(fn func(SegmentReport)) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// WithPhaseListener registers a callback invoked on every phase change.
func WithPhaseListener(fn func(Phase)) Option {
	return func(o *Orchestrator) {
		o.onPhase = fn
	}
}

// Orchestrator runs speculative search over generation lines.
//
// Description:
//
//	Each segment syncs K forks from the canonical line and runs them
//	concurrently until each reaches a structural boundary or its step
//	budget. The first fork that raises coherence or reaches the
//	minimum-coherence threshold wins; otherwise the fork with the highest
//	matched form order wins. The canonical line then syncs from the winner
//	and the winner's symbols join the output.
//
// Thread Safety: Not safe for concurrent use. One Orchestrator serves one
// run; the trained corpus may be shared across orchestrators.
type Orchestrator struct {
	trained   *corpus.Trained
	cfg       Config
	rng       *rand.Rand
	canonical *Line
	forks     []*Line
	output    []Triple
	phase     Phase
	started   bool
	segments  int

	logger   *slog.Logger
	metrics  *telemetry.Metrics
	tracer   *Tracer
	observer func(SegmentReport)
	onPhase  func(Phase)
}

// New creates an orchestrator.
//
// Inputs:
//   - trained: Trained corpus, shared read-only.
//   - cfg: Search configuration.
//   - rng: Random source of the run. Fork sources are drawn from it.
//   - opts: Optional logger, metrics, tracer and callbacks.
//
// Outputs:
//   - *Orchestrator: The orchestrator in PhaseIdle, not yet seeded.
//   - error: ErrInvalidConfig or a generator configuration error.
func New(trained *corpus.Trained, cfg Config, rng *rand.Rand, opts ...Option) (*Orchestrator, error) {
	if trained == nil {
		return nil, fmt.Errorf("%w: nil corpus", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	canonical, err := NewLine(trained, cfg.Generator(), rng)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		trained:   trained,
		cfg:       cfg,
		rng:       rng,
		canonical: canonical,
		forks:     make([]*Line, cfg.Forks),
		logger:    slog.Default(),
	}
	for i := range o.forks {
		line, err := NewLine(trained, cfg.Generator(), rand.New(rand.NewPCG(0, uint64(i))))
		if err != nil {
			return nil, err
		}
		o.forks[i] = line
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = NewTracer(o.logger, false)
	}
	return o, nil
}

// Seed picks a sentence start from the corpus and feeds it to the canonical
// line. If no sentence start qualifies the generator starts from a random
// context.
func (o *Orchestrator) Seed(ctx context.Context) error {
	seed, ok := o.trained.Seed(o.rng, o.cfg.MaxOrder)
	if !ok {
		o.logger.WarnContext(ctx, "No sentence start qualifies as seed, using a random context")
	}
	triples, err := o.canonical.Start(seed)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	o.output = append(o.output, triples...)
	o.started = true
	o.logger.DebugContext(ctx, "Seeded", slog.String("seed", Text(triples)))
	if len(o.output) >= o.cfg.OutputAmount {
		o.setPhase(PhaseDone)
	}
	return nil
}

// Segment runs one fork-evaluate-commit cycle.
//
// Outputs:
//   - SegmentReport: The committed segment.
//   - error: ErrNoQualifyingFork, ErrDone, ErrNotSeeded or a context error.
func (o *Orchestrator) Segment(ctx context.Context) (SegmentReport, error) {
	if o.phase == PhaseDone {
		return SegmentReport{}, ErrDone
	}
	if !o.started {
		return SegmentReport{}, ErrNotSeeded
	}

	canonicalMatched := o.canonical.Matched()
	ctx, span := o.tracer.StartSegment(ctx, o.segments, canonicalMatched)

	o.setPhase(PhaseForking)
	reports, err := o.runForks(ctx)
	if err != nil {
		o.setPhase(PhaseIdle)
		o.tracer.EndSegment(span, SegmentReport{}, err)
		return SegmentReport{}, err
	}

	o.setPhase(PhaseEvaluating)
	winner, reason, err := selectWinner(reports, canonicalMatched, o.cfg.MinCoherence)
	o.recordForks(ctx, reports, winner)
	if err != nil {
		o.setPhase(PhaseIdle)
		o.tracer.EndSegment(span, SegmentReport{}, err)
		return SegmentReport{}, err
	}

	report := o.commit(ctx, reports, winner, reason, canonicalMatched)
	o.tracer.EndSegment(span, report, nil)
	if o.observer != nil {
		o.observer(report)
	}

	if len(o.output) >= o.cfg.OutputAmount {
		o.setPhase(PhaseDone)
	} else {
		o.setPhase(PhaseIdle)
	}
	return report, nil
}

// Run seeds the canonical line if needed and commits segments until the
// output reaches the configured amount.
//
// Outputs:
//   - []Triple: The full output, seed included.
//   - error: The first segment failure.
func (o *Orchestrator) Run(ctx context.Context) ([]Triple, error) {
	ctx, span := o.tracer.StartRun(ctx, o.cfg)
	if !o.started {
		if err := o.Seed(ctx); err != nil {
			o.tracer.EndRun(span, len(o.output), o.segments, err)
			return nil, err
		}
	}
	for o.phase != PhaseDone {
		if _, err := o.Segment(ctx); err != nil {
			o.tracer.EndRun(span, len(o.output), o.segments, err)
			return o.Output(), err
		}
	}
	o.tracer.EndRun(span, len(o.output), o.segments, nil)
	return o.Output(), nil
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	return o.phase
}

// Output returns a copy of the output so far.
func (o *Orchestrator) Output() []Triple {
	out := make([]Triple, len(o.output))
	copy(out, o.output)
	return out
}

// Segments returns the number of committed segments.
func (o *Orchestrator) Segments() int {
	return o.segments
}

func (o *Orchestrator) setPhase(p Phase) {
	o.phase = p
	if o.onPhase != nil {
		o.onPhase(p)
	}
}

// runForks syncs every fork from the canonical line and runs them with at
// most Parallelism in flight. Fork sources are drawn before launch so a fixed
// run seed reproduces the same output regardless of scheduling.
func (o *Orchestrator) runForks(ctx context.Context) ([]ForkReport, error) {
	reports := make([]ForkReport, len(o.forks))
	for _, line := range o.forks {
		line.Sync(o.canonical)
		line.SetSource(rand.New(rand.NewPCG(o.rng.Uint64(), o.rng.Uint64())))
	}

	limit := o.cfg.Parallelism
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, line := range o.forks {
		g.Go(func() error {
			fctx, span := o.tracer.TraceFork(ctx, i)
			reports[i] = o.runFork(fctx, i, line)
			o.tracer.EndFork(span, reports[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (o *Orchestrator) runFork(ctx context.Context, index int, line *Line) ForkReport {
	report := ForkReport{Index: index, Matched: line.Matched()}
	for report.Steps < o.cfg.ForkStepBudget {
		if report.Steps%64 == 0 {
			if err := ctx.Err(); err != nil {
				report.Err = err
				return report
			}
		}
		t, boundary, err := line.Advance()
		if err != nil {
			report.Err = err
			return report
		}
		report.Triples = append(report.Triples, t)
		report.Steps++
		report.Matched = line.Matched()
		if boundary {
			return report
		}
	}
	report.Err = fmt.Errorf("%w: %d steps", ErrForkBudgetExceeded, report.Steps)
	return report
}

// selectWinner scans forks in index order and returns the first that raises
// coherence above canonicalMatched or reaches minCoherence. Without one, the
// fork with the highest matched order wins, first on ties. Failed forks are
// never selected.
func selectWinner(reports []ForkReport, canonicalMatched, minCoherence int) (int, string, error) {
	best := -1
	for i, r := range reports {
		if r.Err != nil {
			continue
		}
		if r.Matched > canonicalMatched {
			return i, ReasonRaised, nil
		}
		if r.Matched >= minCoherence {
			return i, ReasonThreshold, nil
		}
		if best < 0 || r.Matched > reports[best].Matched {
			best = i
		}
	}
	if best < 0 {
		return -1, "", fmt.Errorf("%w: %d forks, none completed", ErrNoQualifyingFork, len(reports))
	}
	return best, ReasonFallback, nil
}

func (o *Orchestrator) commit(ctx context.Context, reports []ForkReport, winner int, reason string, canonicalMatched int) SegmentReport {
	before := o.canonical.Generator()
	o.canonical.Sync(o.forks[winner])
	after := o.canonical.Generator()

	chosen := reports[winner]
	o.output = append(o.output, chosen.Triples...)
	o.setPhase(PhaseCommitted)

	report := SegmentReport{
		Index:            o.segments,
		Winner:           winner,
		Reason:           reason,
		CanonicalMatched: canonicalMatched,
		Matched:          chosen.Matched,
		Triples:          chosen.Triples,
		Forks:            reports,
		Output:           len(o.output),
	}
	o.segments++

	o.metrics.RecordSegment(ctx, len(chosen.Triples), chosen.Matched)
	o.metrics.RecordRecoveries(ctx, after.Truncations-before.Truncations, after.Restarts-before.Restarts)
	o.logger.DebugContext(ctx, "Segment committed",
		slog.Int("segment", report.Index),
		slog.Int("winner", winner),
		slog.String("reason", reason),
		slog.Int("matched", chosen.Matched),
		slog.Int("symbols", len(chosen.Triples)),
		slog.Int("output", report.Output),
	)
	return report
}

func (o *Orchestrator) recordForks(ctx context.Context, reports []ForkReport, winner int) {
	for i, r := range reports {
		outcome := telemetry.ForkDiscarded
		switch {
		case errors.Is(r.Err, ErrForkBudgetExceeded):
			outcome = telemetry.ForkBudget
			o.logger.WarnContext(ctx, "Fork exceeded step budget",
				slog.Int("fork", i),
				slog.Int("steps", r.Steps),
			)
		case r.Err != nil:
			outcome = telemetry.ForkFailed
			o.logger.WarnContext(ctx, "Fork failed",
				slog.Int("fork", i),
				slog.String("error", r.Err.Error()),
			)
		case i == winner:
			outcome = telemetry.ForkWinner
		}
		o.metrics.RecordFork(ctx, outcome, r.Steps)
	}
}
