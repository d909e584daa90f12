// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ngram

import "fmt"

// Source is the random source used for sampling.
//
// *rand.Rand from math/rand/v2 satisfies it. Tests substitute fixed draws.
type Source interface {
	IntN(n int) int
}

// Distribution is a weighted count table over discrete symbols.
//
// Entries keep first-insertion order, which makes sampling with a seeded
// Source reproducible. Total always equals the sum of all counts.
//
// Thread Safety: Safe for concurrent reads. Add must not race with readers.
type Distribution[T comparable] struct {
	symbols []T
	counts  map[T]int
	total   int
}

// NewDistribution creates an empty distribution.
func NewDistribution[T comparable]() *Distribution[T] {
	return &Distribution[T]{counts: make(map[T]int)}
}

// Add records one more occurrence of symbol.
func (d *Distribution[T]) Add(symbol T) {
	d.AddN(symbol, 1)
}

// AddN records n occurrences of symbol. Non-positive n is ignored.
func (d *Distribution[T]) AddN(symbol T, n int) {
	if n <= 0 {
		return
	}
	if _, ok := d.counts[symbol]; !ok {
		d.symbols = append(d.symbols, symbol)
	}
	d.counts[symbol] += n
	d.total += n
}

// Count returns the count recorded for symbol, zero if absent.
func (d *Distribution[T]) Count(symbol T) int {
	return d.counts[symbol]
}

// Contains reports whether symbol has been recorded.
func (d *Distribution[T]) Contains(symbol T) bool {
	_, ok := d.counts[symbol]
	return ok
}

// Total returns the sum of all counts.
func (d *Distribution[T]) Total() int {
	return d.total
}

// Len returns the number of distinct symbols.
func (d *Distribution[T]) Len() int {
	return len(d.symbols)
}

// Symbols returns the distinct symbols in insertion order.
func (d *Distribution[T]) Symbols() []T {
	out := make([]T, len(d.symbols))
	copy(out, d.symbols)
	return out
}

// Each calls fn for every entry in insertion order.
func (d *Distribution[T]) Each(fn func(symbol T, count int)) {
	for _, s := range d.symbols {
		fn(s, d.counts[s])
	}
}

// override replaces the count of one symbol inside an Overlay.
type override[T comparable] struct {
	symbol T
	count  int
}

// Overlay is an ephemeral reweighting of a base Distribution.
//
// Overridden counts replace the base count for sampling purposes; the base
// itself is never touched. The overlay total tracks the base total plus the
// net delta of every override.
//
// The zero value is unusable until Reset binds a base. A single Overlay is
// reused across steps by one generator to avoid per-step allocation.
type Overlay[T comparable] struct {
	base      *Distribution[T]
	overrides []override[T]
	total     int
}

// Reset binds the overlay to base and clears all overrides.
func (o *Overlay[T]) Reset(base *Distribution[T]) {
	o.base = base
	o.overrides = o.overrides[:0]
	o.total = base.Total()
}

// Base returns the distribution the overlay is bound to.
func (o *Overlay[T]) Base() *Distribution[T] {
	return o.base
}

// Override sets the effective count of symbol and adjusts the total by the
// delta. Negative counts are clamped to zero. Symbols absent from the base
// are ignored.
func (o *Overlay[T]) Override(symbol T, count int) {
	if !o.base.Contains(symbol) {
		return
	}
	if count < 0 {
		count = 0
	}
	for i := range o.overrides {
		if o.overrides[i].symbol == symbol {
			o.total += count - o.overrides[i].count
			o.overrides[i].count = count
			return
		}
	}
	o.total += count - o.base.Count(symbol)
	o.overrides = append(o.overrides, override[T]{symbol: symbol, count: count})
}

// Count returns the effective count of symbol.
func (o *Overlay[T]) Count(symbol T) int {
	for _, ov := range o.overrides {
		if ov.symbol == symbol {
			return ov.count
		}
	}
	return o.base.Count(symbol)
}

// Total returns the effective total.
func (o *Overlay[T]) Total() int {
	return o.total
}

// Sample draws a symbol from d with probability proportional to its count.
//
// Inputs:
//   - d: Distribution to draw from.
//   - rng: Random source.
//
// Outputs:
//   - T: The drawn symbol.
//   - error: ErrEmptyDistribution if d has a zero total.
func Sample[T comparable](d *Distribution[T], rng Source) (T, error) {
	return draw(d.symbols, d.total, d.Count, rng)
}

// SampleOverlay draws a symbol using the overlay's effective counts.
//
// Inputs:
//   - o: Overlay bound to a base distribution.
//   - rng: Random source.
//
// Outputs:
//   - T: The drawn symbol.
//   - error: ErrEmptyDistribution if the effective total is zero.
func SampleOverlay[T comparable](o *Overlay[T], rng Source) (T, error) {
	if o.base == nil {
		var zero T
		return zero, fmt.Errorf("%w: overlay has no base", ErrEmptyDistribution)
	}
	return draw(o.base.symbols, o.total, o.Count, rng)
}

// draw picks an integer in [1, total] and walks the entries subtracting each
// count until the remainder is no longer positive.
func draw[T comparable](symbols []T, total int, count func(T) int, rng Source) (T, error) {
	var zero T
	if total <= 0 {
		return zero, ErrEmptyDistribution
	}
	remaining := rng.IntN(total) + 1
	for _, s := range symbols {
		remaining -= count(s)
		if remaining <= 0 {
			return s, nil
		}
	}
	return zero, fmt.Errorf("%w: total %d exceeds counted entries", ErrEmptyDistribution, total)
}
