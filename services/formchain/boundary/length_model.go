// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package boundary

import (
	"fmt"

	"github.com/AleutianAI/formchain/services/formchain/ngram"
)

// LengthModel maps the length of one unit to the distribution of the length
// of the next unit. It also keeps the marginal distribution of every observed
// length, used when no previous length exists or the previous length was
// never followed.
//
// Thread Safety: Immutable after construction; safe for concurrent reads.
type LengthModel struct {
	transitions map[int]*ngram.Distribution[int]
	keys        []int
	marginal    *ngram.Distribution[int]
	usages      int
}

// NewLengthModel creates an empty model.
func NewLengthModel() *LengthModel {
	return &LengthModel{
		transitions: make(map[int]*ngram.Distribution[int]),
		marginal:    ngram.NewDistribution[int](),
	}
}

// Record adds the transition prev -> next and counts next in the marginal.
func (m *LengthModel) Record(prev, next int) {
	dist, ok := m.transitions[prev]
	if !ok {
		dist = ngram.NewDistribution[int]()
		m.transitions[prev] = dist
		m.keys = append(m.keys, prev)
	}
	dist.Add(next)
	m.usages++
	m.marginal.Add(next)
}

// Observe counts a unit that has no predecessor.
func (m *LengthModel) Observe(next int) {
	m.marginal.Add(next)
}

// Lookup returns the distribution of lengths following prev.
func (m *LengthModel) Lookup(prev int) (*ngram.Distribution[int], bool) {
	dist, ok := m.transitions[prev]
	return dist, ok
}

// Marginal returns the distribution of all observed lengths.
func (m *LengthModel) Marginal() *ngram.Distribution[int] {
	return m.marginal
}

// Len returns the number of distinct previous lengths.
func (m *LengthModel) Len() int {
	return len(m.keys)
}

// Usages returns the number of recorded transitions.
func (m *LengthModel) Usages() int {
	return m.usages
}

// Next samples the length of the next unit.
//
// Inputs:
//   - prev: Length of the previous unit.
//   - hasPrev: False if there is no previous unit.
//   - rng: Random source.
//
// Outputs:
//   - int: The sampled length.
//   - bool: False if the model holds no lengths at all.
func (m *LengthModel) Next(prev int, hasPrev bool, rng ngram.Source) (int, bool) {
	if hasPrev {
		if dist, ok := m.transitions[prev]; ok {
			if n, err := ngram.Sample(dist, rng); err == nil {
				return n, true
			}
		}
	}
	n, err := ngram.Sample(m.marginal, rng)
	if err != nil {
		return 0, false
	}
	return n, true
}

// LengthTransitionSnapshot is one row of a LengthModel.
type LengthTransitionSnapshot struct {
	Previous int                             `json:"p"`
	Next     ngram.DistributionSnapshot[int] `json:"next"`
}

// LengthModelSnapshot is the serializable form of a LengthModel.
type LengthModelSnapshot struct {
	Transitions []LengthTransitionSnapshot      `json:"transitions"`
	Marginal    ngram.DistributionSnapshot[int] `json:"marginal"`
}

// Snapshot returns the serializable form of m.
func (m *LengthModel) Snapshot() LengthModelSnapshot {
	s := LengthModelSnapshot{
		Transitions: make([]LengthTransitionSnapshot, 0, len(m.keys)),
		Marginal:    m.marginal.Snapshot(),
	}
	for _, prev := range m.keys {
		s.Transitions = append(s.Transitions, LengthTransitionSnapshot{
			Previous: prev,
			Next:     m.transitions[prev].Snapshot(),
		})
	}
	return s
}

// LengthModelFromSnapshot rebuilds a LengthModel.
func LengthModelFromSnapshot(s LengthModelSnapshot) (*LengthModel, error) {
	m := NewLengthModel()
	marginal, err := ngram.DistributionFromSnapshot(s.Marginal)
	if err != nil {
		return nil, fmt.Errorf("marginal: %w", err)
	}
	m.marginal = marginal
	for _, row := range s.Transitions {
		if _, dup := m.transitions[row.Previous]; dup {
			return nil, fmt.Errorf("%w: duplicate previous length %d", ngram.ErrInvalidSnapshot, row.Previous)
		}
		dist, err := ngram.DistributionFromSnapshot(row.Next)
		if err != nil {
			return nil, fmt.Errorf("transition %d: %w", row.Previous, err)
		}
		m.transitions[row.Previous] = dist
		m.keys = append(m.keys, row.Previous)
		m.usages += dist.Total()
	}
	return m, nil
}
