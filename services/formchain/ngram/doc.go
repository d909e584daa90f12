// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ngram provides multi-order character n-gram models.
//
// A Model holds one OrderModel per order 1..MaxOrder. Each OrderModel maps a
// context (the literal string of exactly k preceding symbols) to a
// Distribution over the symbol that followed it in the training text.
//
// # Building
//
// Build scans the text once, keeping a ring buffer of the byte offsets of the
// last MaxOrder+1 symbols so contexts are sliced from the immutable text
// instead of copied rune by rune:
//
//	model, err := ngram.Build(text, 7)
//	if err != nil {
//	    return fmt.Errorf("build text model: %w", err)
//	}
//
// Build fails with ErrEmptyModel when any order ends up with no contexts
// (for example a text shorter than MaxOrder). That failure happens at build
// time, never at the first sampling attempt.
//
// # Sampling
//
// Distribution is generic so the same counting and sampling code serves
// symbol distributions (Distribution[rune]) and length distributions
// (Distribution[int]). Overlay reweights individual entries of a base
// distribution without mutating it:
//
//	overlay.Reset(dist)
//	overlay.Override('.', 1)
//	next, err := ngram.SampleOverlay(&overlay, rng)
//
// # Thread Safety
//
// Models and distributions are immutable after Build and safe for concurrent
// reads. Overlay values are owned by a single generation line.
package ngram
