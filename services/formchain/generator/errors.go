// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generator

import "errors"

var (
	// ErrMissingContext indicates no context could be found even after
	// truncating and restarting.
	ErrMissingContext = errors.New("context missing from model")

	// ErrNotStarted indicates Step was called before Start.
	ErrNotStarted = errors.New("generator not started")

	// ErrInvalidConfig indicates order bounds or distortion outside the
	// range the model supports.
	ErrInvalidConfig = errors.New("invalid generator config")
)
