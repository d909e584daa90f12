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
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/formchain/services/formchain/corpus"
)

const sampleText = "The cat sat on the mat. The dog ran to the park, and the cat ran too. A bird sang.\n" +
	"The sun rose over the hill. A cat slept; the dog barked! Did the bird fly away?\n" +
	"The mat was red. The park was green, and the hill was high.\n"

func trainSample(t *testing.T) *corpus.Trained {
	t.Helper()
	trained, err := corpus.NewTrainer(nil, nil).TrainNormalized(context.Background(), sampleText,
		corpus.Options{MaxOrder: 5, FormOrder: 4})
	require.NoError(t, err)
	return trained
}

func testConfig() Config {
	return Config{
		MinOrder:         2,
		MaxOrder:         5,
		DistortionFactor: 4,
		Forks:            3,
		MinCoherence:     3,
		ForkStepBudget:   400,
		Parallelism:      2,
		OutputAmount:     300,
	}
}

func newTestOrchestrator(t *testing.T, cfg Config, seed uint64, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(trainSample(t), cfg, rand.New(rand.NewPCG(seed, seed+1)), opts...)
	require.NoError(t, err)
	return o
}

func TestSelectWinner(t *testing.T) {
	failed := errors.New("fork failed")
	tests := []struct {
		name      string
		matched   []int
		errs      []error
		canonical int
		minCoh    int
		want      int
		reason    string
		wantErr   error
	}{
		{name: "first raising fork wins", matched: []int{0, 2, 3}, canonical: 1, minCoh: 9, want: 1, reason: ReasonRaised},
		{name: "threshold before later raise", matched: []int{1, 4, 6}, canonical: 5, minCoh: 3, want: 1, reason: ReasonThreshold},
		{name: "exactly one fork meets threshold", matched: []int{2, 4, 3}, canonical: 5, minCoh: 4, want: 1, reason: ReasonThreshold},
		{name: "fallback takes argmax", matched: []int{2, 5, 5}, canonical: 9, minCoh: 9, want: 1, reason: ReasonFallback},
		{name: "failed forks are skipped", matched: []int{9, 1}, errs: []error{failed, nil}, canonical: 9, minCoh: 9, want: 1, reason: ReasonFallback},
		{name: "all failed", matched: []int{3, 4}, errs: []error{failed, ErrForkBudgetExceeded}, canonical: 0, minCoh: 1, wantErr: ErrNoQualifyingFork},
		{name: "no forks", canonical: 0, minCoh: 1, wantErr: ErrNoQualifyingFork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports := make([]ForkReport, len(tt.matched))
			for i, m := range tt.matched {
				reports[i] = ForkReport{Index: i, Matched: m}
				if tt.errs != nil {
					reports[i].Err = tt.errs[i]
				}
			}
			got, reason, err := selectWinner(reports, tt.canonical, tt.minCoh)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestOrchestrator_CommitsWinnerExactly(t *testing.T) {
	var reports []SegmentReport
	var o *Orchestrator
	o = newTestOrchestrator(t, testConfig(), 7, WithObserver(func(r SegmentReport) {
		assert.Equal(t, r.Forks[r.Winner].Triples, r.Triples)
		assert.Equal(t, r.Matched, o.canonical.Matched())
		reports = append(reports, r)
	}))

	out, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, o.Phase())
	assert.GreaterOrEqual(t, len(out), 300)
	require.NotEmpty(t, reports)
	assert.Equal(t, len(reports), o.Segments())

	// Output is the seed followed by every committed segment.
	seedLen := len(out)
	for _, r := range reports {
		seedLen -= len(r.Triples)
	}
	assert.Equal(t, 5, seedLen)
	rebuilt := append([]Triple(nil), out[:seedLen]...)
	for _, r := range reports {
		rebuilt = append(rebuilt, r.Triples...)
	}
	assert.Equal(t, out, rebuilt)

	for _, tr := range out {
		assert.True(t, strings.ContainsRune(sampleText, tr.Symbol), "symbol %q not in corpus", tr.Symbol)
	}
	for _, tr := range out[seedLen:] {
		assert.GreaterOrEqual(t, tr.GeneratorOrder, 1)
		assert.LessOrEqual(t, tr.GeneratorOrder, 5)
	}
}

func TestOrchestrator_Deterministic(t *testing.T) {
	cfg := testConfig()
	cfg.Parallelism = 3

	a, err := newTestOrchestrator(t, cfg, 42).Run(context.Background())
	require.NoError(t, err)

	cfg.Parallelism = 1
	b, err := newTestOrchestrator(t, cfg, 42).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Text(a), Text(b))
	assert.Equal(t, a, b)
}

func TestOrchestrator_NoForks(t *testing.T) {
	cfg := testConfig()
	cfg.Forks = 0
	o := newTestOrchestrator(t, cfg, 1)

	out, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoQualifyingFork)
	assert.Len(t, out, 5)
	assert.Equal(t, PhaseIdle, o.Phase())
}

func TestOrchestrator_ForkBudgetExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.ForkStepBudget = 1
	o := newTestOrchestrator(t, cfg, 3)

	// Every context ending in " c" continues with 'a', inside a word.
	_, err := o.canonical.Start("The c")
	require.NoError(t, err)
	o.started = true

	reports, err := o.runForks(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for _, r := range reports {
		assert.ErrorIs(t, r.Err, ErrForkBudgetExceeded)
		assert.Equal(t, 1, r.Steps)
		require.Len(t, r.Triples, 1)
		assert.Equal(t, 'a', r.Triples[0].Symbol)
	}

	_, err = o.Segment(context.Background())
	assert.ErrorIs(t, err, ErrNoQualifyingFork)
	assert.Equal(t, PhaseIdle, o.Phase())
}

func TestOrchestrator_PhaseTransitions(t *testing.T) {
	cfg := testConfig()
	cfg.OutputAmount = 6

	var phases []Phase
	o := newTestOrchestrator(t, cfg, 11, WithPhaseListener(func(p Phase) {
		phases = append(phases, p)
	}))
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []Phase{PhaseForking, PhaseEvaluating, PhaseCommitted, PhaseDone}, phases)
	assert.Equal(t, "committed", PhaseCommitted.String())
}

func TestOrchestrator_SeedReachesAmount(t *testing.T) {
	cfg := testConfig()
	cfg.OutputAmount = 3
	o := newTestOrchestrator(t, cfg, 5)

	out, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 5)
	assert.Equal(t, PhaseDone, o.Phase())

	_, err = o.Segment(context.Background())
	assert.ErrorIs(t, err, ErrDone)
}

func TestOrchestrator_Errors(t *testing.T) {
	o := newTestOrchestrator(t, testConfig(), 5)
	_, err := o.Segment(context.Background())
	assert.ErrorIs(t, err, ErrNotSeeded)

	require.NoError(t, o.Seed(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Segment(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	cfg := testConfig()
	cfg.ForkStepBudget = 0
	_, err = New(trainSample(t), cfg, rand.New(rand.NewPCG(1, 2)))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(nil, testConfig(), rand.New(rand.NewPCG(1, 2)))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLine_StartAndSync(t *testing.T) {
	trained := trainSample(t)
	cfg := testConfig().Generator()

	line, err := NewLine(trained, cfg, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	seed, err := line.Start("The dog")
	require.NoError(t, err)
	assert.Equal(t, "e dog", Text(seed))
	for _, tr := range seed {
		assert.Equal(t, 5, tr.GeneratorOrder)
	}

	fork, err := NewLine(trained, cfg, rand.New(rand.NewPCG(2, 2)))
	require.NoError(t, err)
	fork.Sync(line)
	assert.Equal(t, line.Generator(), fork.Generator())
	assert.Equal(t, line.Matched(), fork.Matched())

	for i := 0; i < 20; i++ {
		_, _, err := fork.Advance()
		require.NoError(t, err)
	}
	assert.Equal(t, "e dog", line.Generator().Context, "advancing a fork must not move its source")
}
