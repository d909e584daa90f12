// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generator samples text one symbol at a time from a variable-order
// character model.
//
// Every step takes a random walk on the order, looks up the distribution that
// follows the current context, biases unit terminators toward the caller's
// target lengths and samples the next symbol.
package generator

import (
	"fmt"
	"unicode/utf8"

	"github.com/AleutianAI/formchain/services/formchain/ngram"
)

// Config bounds the order walk and sets the distortion strength.
type Config struct {
	MinOrder         int
	MaxOrder         int
	DistortionFactor int
}

// Validate checks c against a model.
func (c Config) Validate(model *ngram.Model) error {
	if c.MinOrder < 1 || c.MinOrder > c.MaxOrder {
		return fmt.Errorf("%w: order bounds [%d, %d]", ErrInvalidConfig, c.MinOrder, c.MaxOrder)
	}
	if c.MaxOrder > model.MaxOrder() {
		return fmt.Errorf("%w: max order %d exceeds model order %d", ErrInvalidConfig, c.MaxOrder, model.MaxOrder())
	}
	if c.DistortionFactor < 1 {
		return fmt.Errorf("%w: distortion factor %d", ErrInvalidConfig, c.DistortionFactor)
	}
	return nil
}

// Target is the caller's length goal for the current unit.
type Target struct {
	// Terminators are the symbols that end the unit.
	Terminators string

	// Length is the desired unit length; Progress is the length so far.
	// Both are in the unit's own measure (words, sentences).
	Length   int
	Progress int
}

// Under reports whether the unit is still shorter than its target.
func (t Target) Under() bool {
	return t.Length > t.Progress
}

// State is the checkpointable part of a Generator. It is a plain value;
// copying it is a full checkpoint.
type State struct {
	// Context is the last symbols emitted, at most Order long.
	Context string

	// Order is the current position of the order walk.
	Order int

	// Emitted counts symbols produced by Step.
	Emitted int

	// Truncations counts lookups recovered by dropping leading symbols.
	Truncations int

	// Restarts counts lookups that truncated to nothing and restarted from a
	// random context.
	Restarts int
}

// Generator is a stateful sampler over a shared model.
//
// Thread Safety: Not safe for concurrent use. The model is shared read-only;
// every generation line owns its own Generator and random source.
type Generator struct {
	model   *ngram.Model
	cfg     Config
	rng     ngram.Source
	state   State
	overlay ngram.Overlay[rune]
	started bool
}

// New creates a generator.
//
// Inputs:
//   - model: Text model. Must hold at least cfg.MaxOrder orders.
//   - cfg: Order bounds and distortion factor.
//   - rng: Random source owned by this generator.
//
// Outputs:
//   - *Generator: The generator, at MaxOrder and not yet started.
//   - error: ErrInvalidConfig if cfg does not fit the model.
func New(model *ngram.Model, cfg Config, rng ngram.Source) (*Generator, error) {
	if err := cfg.Validate(model); err != nil {
		return nil, err
	}
	return &Generator{
		model: model,
		cfg:   cfg,
		rng:   rng,
		state: State{Order: cfg.MaxOrder},
	}, nil
}

// SetSource replaces the random source.
func (g *Generator) SetSource(rng ngram.Source) {
	g.rng = rng
}

// Config returns the generator configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// Start sets the initial context.
//
// Inputs:
//   - seed: Literal text taken from the source. Only its last MaxOrder
//     symbols are kept. Empty picks a random context at the current order.
//
// Outputs:
//   - error: ErrMissingContext if seed is empty and the model has no context
//     at the current order.
func (g *Generator) Start(seed string) error {
	if seed == "" {
		om, ok := g.model.Order(g.state.Order)
		if !ok {
			return fmt.Errorf("%w: no order %d", ErrMissingContext, g.state.Order)
		}
		ctx, ok := om.RandomContext(g.rng)
		if !ok {
			return fmt.Errorf("%w: order %d is empty", ErrMissingContext, g.state.Order)
		}
		seed = ctx
	}
	g.state.Context = suffix(seed, g.cfg.MaxOrder)
	g.started = true
	return nil
}

// Step emits one symbol.
//
// Description:
//
//	1. Walk: a fair coin moves the order down or up within the bounds.
//	2. Lookup: the last Order symbols of the context are looked up. Unknown
//	   contexts lose leading symbols until one is known; if none is, the
//	   generator restarts from a random context at the current order.
//	3. Distortion: terminator counts of every target are divided (ceiling,
//	   minimum 1) while the unit is under target and multiplied otherwise.
//	4. Sample from the distorted distribution.
//	5. Advance: append and keep the last Order symbols.
//
// Inputs:
//   - targets: Length goals of the enclosing units. May be empty.
//
// Outputs:
//   - rune: The emitted symbol.
//   - int: The order actually used, i.e. the length of the context looked up.
//   - error: ErrNotStarted, ErrMissingContext or a sampling error.
func (g *Generator) Step(targets ...Target) (rune, int, error) {
	if !g.started {
		return 0, 0, ErrNotStarted
	}
	g.walk()

	ctx, dist, err := g.lookup()
	if err != nil {
		return 0, 0, err
	}

	g.overlay.Reset(dist)
	for _, t := range targets {
		under := t.Under()
		for _, r := range t.Terminators {
			if !dist.Contains(r) {
				continue
			}
			g.overlay.Override(r, Distort(dist.Count(r), g.cfg.DistortionFactor, under))
		}
	}

	next, err := ngram.SampleOverlay(&g.overlay, g.rng)
	if err != nil {
		return 0, 0, fmt.Errorf("sample after %q: %w", ctx, err)
	}

	g.state.Context = suffix(ctx+string(next), g.state.Order)
	g.state.Emitted++
	return next, utf8.RuneCountInString(ctx), nil
}

func (g *Generator) walk() {
	if g.rng.IntN(2) == 0 {
		if g.state.Order > g.cfg.MinOrder {
			g.state.Order--
		}
		return
	}
	if g.state.Order < g.cfg.MaxOrder {
		g.state.Order++
	}
}

func (g *Generator) lookup() (string, *ngram.Distribution[rune], error) {
	ctx := suffix(g.state.Context, g.state.Order)
	for ctx != "" {
		if dist, ok := g.model.Lookup(ctx); ok {
			return ctx, dist, nil
		}
		_, size := utf8.DecodeRuneInString(ctx)
		ctx = ctx[size:]
		g.state.Truncations++
	}

	om, ok := g.model.Order(g.state.Order)
	if !ok {
		return "", nil, fmt.Errorf("%w: no order %d", ErrMissingContext, g.state.Order)
	}
	ctx, ok = om.RandomContext(g.rng)
	if !ok {
		return "", nil, fmt.Errorf("%w: order %d is empty after %q", ErrMissingContext, g.state.Order, g.state.Context)
	}
	dist, _ := om.Lookup(ctx)
	g.state.Restarts++
	return ctx, dist, nil
}

// Distort returns the reweighted count of a terminator.
//
// Inputs:
//   - count: Base count. Expected positive.
//   - factor: Distortion factor. Values below 1 act as 1.
//   - under: True if the unit is still shorter than its target.
//
// Outputs:
//   - int: ceil(count/factor), at least 1, when under; count*factor otherwise.
func Distort(count, factor int, under bool) int {
	if factor < 1 {
		factor = 1
	}
	if !under {
		return count * factor
	}
	n := (count + factor - 1) / factor
	if n < 1 {
		n = 1
	}
	return n
}

// State returns a copy of the generator state.
func (g *Generator) State() State {
	return g.state
}

// Restore replaces the generator state and marks it started if it holds a
// context.
func (g *Generator) Restore(s State) {
	g.state = s
	g.started = s.Context != ""
}

// Sync copies the full state of src. The random source is not copied.
func (g *Generator) Sync(src *Generator) {
	g.state = src.state
	g.started = src.started
}

// Context returns the current context.
func (g *Generator) Context() string {
	return g.state.Context
}

// Order returns the current position of the order walk.
func (g *Generator) Order() int {
	return g.state.Order
}

func suffix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := utf8.RuneCountInString(s)
	if count <= n {
		return s
	}
	for i := range s {
		if count == n {
			return s[i:]
		}
		count--
	}
	return s
}
