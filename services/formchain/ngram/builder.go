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

import (
	"fmt"
	"unicode/utf8"
)

// offsetRing is a bounded ring of byte offsets into an immutable text.
type offsetRing struct {
	buf  []int
	head int // index of the next write
	size int
}

func newOffsetRing(capacity int) *offsetRing {
	return &offsetRing{buf: make([]int, capacity)}
}

// Push appends an offset, evicting the oldest when full.
func (r *offsetRing) Push(offset int) {
	r.buf[r.head] = offset
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// Len returns the number of offsets held.
func (r *offsetRing) Len() int {
	return r.size
}

// Back returns the i-th most recent offset; Back(0) is the newest.
func (r *offsetRing) Back(i int) int {
	idx := (r.head - 1 - i) % len(r.buf)
	if idx < 0 {
		idx += len(r.buf)
	}
	return r.buf[idx]
}

// Build scans text once and returns a model holding orders 1..maxOrder.
//
// Description:
//
//	For every symbol at position p and every order k in 1..min(p, maxOrder),
//	the k symbols ending right before p are recorded as a context followed by
//	the symbol at p. The first symbol contributes nothing.
//
// Inputs:
//   - text: Training text. Never mutated; contexts are substrings of it.
//   - maxOrder: Highest order to collect. Must be >= 1.
//
// Outputs:
//   - *Model: The built model.
//   - error: ErrInvalidOrder for maxOrder < 1, ErrInvalidText for invalid
//     UTF-8, ErrEmptyModel if any order received no contexts.
func Build(text string, maxOrder int) (*Model, error) {
	if maxOrder < 1 {
		return nil, fmt.Errorf("%w: max order %d", ErrInvalidOrder, maxOrder)
	}
	if !utf8.ValidString(text) {
		return nil, ErrInvalidText
	}

	m := newModel(maxOrder)
	window := newOffsetRing(maxOrder + 1)

	for offset, next := range text {
		window.Push(offset)
		for i := 1; i < window.Len(); i++ {
			m.orders[i-1].record(text[window.Back(i):offset], next)
		}
	}

	for _, om := range m.orders {
		if om.Len() == 0 {
			return nil, fmt.Errorf("%w: order %d has no contexts (text has %d symbols, max order %d)",
				ErrEmptyModel, om.order, utf8.RuneCountInString(text), maxOrder)
		}
	}
	return m, nil
}
