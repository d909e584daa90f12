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
	"fmt"

	"github.com/AleutianAI/formchain/services/formchain/generator"
)

// Config controls the speculative search.
type Config struct {
	// MinOrder and MaxOrder bound the generator's order walk.
	MinOrder int
	MaxOrder int

	// DistortionFactor scales terminator counts toward target lengths.
	DistortionFactor int

	// Forks is the number of speculative forks per segment (K).
	Forks int

	// MinCoherence is the matched form order at which a fork qualifies
	// without raising coherence.
	MinCoherence int

	// ForkStepBudget caps the symbols a fork may produce before reaching a
	// boundary.
	ForkStepBudget int

	// Parallelism caps concurrently running forks. Values below 1 run one
	// fork at a time.
	Parallelism int

	// OutputAmount is the number of symbols to produce, seed included.
	OutputAmount int
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		MinOrder:         3,
		MaxOrder:         7,
		DistortionFactor: 4,
		Forks:            8,
		MinCoherence:     5,
		ForkStepBudget:   400,
		Parallelism:      4,
		OutputAmount:     2000,
	}
}

// Generator returns the generator part of c.
func (c Config) Generator() generator.Config {
	return generator.Config{
		MinOrder:         c.MinOrder,
		MaxOrder:         c.MaxOrder,
		DistortionFactor: c.DistortionFactor,
	}
}

// Validate checks the fields the orchestrator needs. Forks may be zero; the
// first segment then fails with ErrNoQualifyingFork.
func (c Config) Validate() error {
	if c.Forks < 0 {
		return fmt.Errorf("%w: forks %d", ErrInvalidConfig, c.Forks)
	}
	if c.ForkStepBudget < 1 {
		return fmt.Errorf("%w: fork step budget %d", ErrInvalidConfig, c.ForkStepBudget)
	}
	if c.OutputAmount < 0 {
		return fmt.Errorf("%w: output amount %d", ErrInvalidConfig, c.OutputAmount)
	}
	return nil
}
