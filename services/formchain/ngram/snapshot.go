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

// DistributionSnapshot is the serializable form of a Distribution.
// Symbols and Counts are parallel and keep insertion order.
type DistributionSnapshot[T comparable] struct {
	Symbols []T   `json:"s"`
	Counts  []int `json:"n"`
}

// Snapshot returns the serializable form of d.
func (d *Distribution[T]) Snapshot() DistributionSnapshot[T] {
	s := DistributionSnapshot[T]{
		Symbols: make([]T, len(d.symbols)),
		Counts:  make([]int, len(d.symbols)),
	}
	for i, sym := range d.symbols {
		s.Symbols[i] = sym
		s.Counts[i] = d.counts[sym]
	}
	return s
}

// DistributionFromSnapshot rebuilds a distribution.
func DistributionFromSnapshot[T comparable](s DistributionSnapshot[T]) (*Distribution[T], error) {
	if len(s.Symbols) != len(s.Counts) {
		return nil, fmt.Errorf("%w: %d symbols but %d counts", ErrInvalidSnapshot, len(s.Symbols), len(s.Counts))
	}
	d := NewDistribution[T]()
	for i, sym := range s.Symbols {
		if s.Counts[i] <= 0 {
			return nil, fmt.Errorf("%w: non-positive count %d", ErrInvalidSnapshot, s.Counts[i])
		}
		d.AddN(sym, s.Counts[i])
	}
	return d, nil
}

// ContextSnapshot is one context and its follower counts. Followers are
// stored as a string of runes to keep the encoding compact.
type ContextSnapshot struct {
	Context   string `json:"c"`
	Followers string `json:"f"`
	Counts    []int  `json:"n"`
}

// OrderSnapshot is the serializable form of an OrderModel.
type OrderSnapshot struct {
	Order    int               `json:"order"`
	Usages   int               `json:"usages"`
	Contexts []ContextSnapshot `json:"contexts"`
}

// ModelSnapshot is the serializable form of a Model.
type ModelSnapshot struct {
	Orders []OrderSnapshot `json:"orders"`
}

// Snapshot returns the serializable form of m.
func (m *Model) Snapshot() ModelSnapshot {
	s := ModelSnapshot{Orders: make([]OrderSnapshot, len(m.orders))}
	for i, om := range m.orders {
		osnap := OrderSnapshot{
			Order:    om.order,
			Usages:   om.usages,
			Contexts: make([]ContextSnapshot, 0, len(om.keys)),
		}
		for _, key := range om.keys {
			dist := om.contexts[key]
			cs := ContextSnapshot{Context: key, Followers: string(dist.symbols), Counts: make([]int, 0, dist.Len())}
			for _, r := range dist.symbols {
				cs.Counts = append(cs.Counts, dist.counts[r])
			}
			osnap.Contexts = append(osnap.Contexts, cs)
		}
		s.Orders[i] = osnap
	}
	return s
}

// ModelFromSnapshot rebuilds a model and re-checks the build invariants:
// orders are contiguous from 1, every context has exactly Order symbols and
// appears once, no order is empty, and Usages equals the sum of all counts.
func ModelFromSnapshot(s ModelSnapshot) (*Model, error) {
	if len(s.Orders) == 0 {
		return nil, fmt.Errorf("%w: no orders", ErrInvalidSnapshot)
	}
	m := newModel(len(s.Orders))
	for i, osnap := range s.Orders {
		if osnap.Order != i+1 {
			return nil, fmt.Errorf("%w: order %d at position %d", ErrInvalidSnapshot, osnap.Order, i)
		}
		if len(osnap.Contexts) == 0 {
			return nil, fmt.Errorf("%w: order %d has no contexts", ErrEmptyModel, osnap.Order)
		}
		om := m.orders[i]
		usages := 0
		for _, cs := range osnap.Contexts {
			if _, dup := om.contexts[cs.Context]; dup {
				return nil, fmt.Errorf("%w: duplicate context %q at order %d", ErrInvalidSnapshot, cs.Context, osnap.Order)
			}
			if !utf8.ValidString(cs.Context) || utf8.RuneCountInString(cs.Context) != osnap.Order {
				return nil, fmt.Errorf("%w: context %q at order %d", ErrInvalidSnapshot, cs.Context, osnap.Order)
			}
			followers := []rune(cs.Followers)
			if len(followers) != len(cs.Counts) {
				return nil, fmt.Errorf("%w: context %q has %d followers but %d counts",
					ErrInvalidSnapshot, cs.Context, len(followers), len(cs.Counts))
			}
			dist := NewDistribution[rune]()
			for j, r := range followers {
				if cs.Counts[j] <= 0 {
					return nil, fmt.Errorf("%w: non-positive count in context %q", ErrInvalidSnapshot, cs.Context)
				}
				if dist.Contains(r) {
					return nil, fmt.Errorf("%w: duplicate follower %q in context %q", ErrInvalidSnapshot, r, cs.Context)
				}
				dist.AddN(r, cs.Counts[j])
			}
			om.contexts[cs.Context] = dist
			om.keys = append(om.keys, cs.Context)
			usages += dist.Total()
		}
		if osnap.Usages != usages {
			return nil, fmt.Errorf("%w: order %d records %d usages but counts sum to %d",
				ErrInvalidSnapshot, osnap.Order, osnap.Usages, usages)
		}
		om.usages = usages
	}
	return m, nil
}
