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

import "errors"

var (
	// ErrForkBudgetExceeded indicates a fork produced its full step budget
	// without reaching a structural boundary. The fork is excluded from
	// evaluation; the segment continues.
	ErrForkBudgetExceeded = errors.New("fork step budget exceeded")

	// ErrNoQualifyingFork indicates every fork failed, or there were no
	// forks. The segment cannot be committed.
	ErrNoQualifyingFork = errors.New("no qualifying fork")

	// ErrInvalidConfig indicates a search configuration that cannot run.
	ErrInvalidConfig = errors.New("invalid search config")

	// ErrNotSeeded indicates Segment was called before Seed.
	ErrNotSeeded = errors.New("orchestrator not seeded")

	// ErrDone indicates Segment was called after the output target was met.
	ErrDone = errors.New("search already done")
)
