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

import "errors"

// Sentinel errors for model construction and sampling.
var (
	// ErrEmptyModel indicates an order received no contexts at build time.
	ErrEmptyModel = errors.New("empty model")

	// ErrInvalidOrder indicates a max order below 1.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInvalidText indicates training text that is not valid UTF-8.
	ErrInvalidText = errors.New("text is not valid UTF-8")

	// ErrEmptyDistribution indicates sampling from a distribution whose total is zero.
	ErrEmptyDistribution = errors.New("empty distribution")

	// ErrInvalidSnapshot indicates a snapshot that cannot be turned back into a model.
	ErrInvalidSnapshot = errors.New("invalid model snapshot")
)
