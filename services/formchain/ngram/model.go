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

import "unicode/utf8"

// OrderModel maps every context of exactly Order symbols to the distribution
// of the symbol that followed it.
//
// Thread Safety: Immutable after Build; safe for concurrent reads.
type OrderModel struct {
	order    int
	contexts map[string]*Distribution[rune]
	keys     []string
	usages   int
}

func newOrderModel(order int) *OrderModel {
	return &OrderModel{
		order:    order,
		contexts: make(map[string]*Distribution[rune]),
	}
}

func (m *OrderModel) record(context string, next rune) {
	dist, ok := m.contexts[context]
	if !ok {
		dist = NewDistribution[rune]()
		m.contexts[context] = dist
		m.keys = append(m.keys, context)
	}
	dist.Add(next)
	m.usages++
}

// Order returns the context length in symbols.
func (m *OrderModel) Order() int {
	return m.order
}

// Lookup returns the distribution that follows context.
func (m *OrderModel) Lookup(context string) (*Distribution[rune], bool) {
	dist, ok := m.contexts[context]
	return dist, ok
}

// Contains reports whether context was observed with a follower.
func (m *OrderModel) Contains(context string) bool {
	_, ok := m.contexts[context]
	return ok
}

// Len returns the number of distinct contexts.
func (m *OrderModel) Len() int {
	return len(m.keys)
}

// Usages returns the number of transitions recorded at this order.
func (m *OrderModel) Usages() int {
	return m.usages
}

// Key returns the i-th context in first-seen order.
func (m *OrderModel) Key(i int) string {
	return m.keys[i]
}

// RandomContext picks a context uniformly from the key set.
//
// Outputs:
//   - string: The chosen context.
//   - bool: False if the order has no contexts.
func (m *OrderModel) RandomContext(rng Source) (string, bool) {
	if len(m.keys) == 0 {
		return "", false
	}
	return m.keys[rng.IntN(len(m.keys))], true
}

// Model is the family of order models 1..MaxOrder built from one text.
//
// Thread Safety: Immutable after Build; safe for concurrent reads. The same
// Model is shared by the canonical generation line and every fork.
type Model struct {
	orders []*OrderModel
}

func newModel(maxOrder int) *Model {
	m := &Model{orders: make([]*OrderModel, maxOrder)}
	for i := range m.orders {
		m.orders[i] = newOrderModel(i + 1)
	}
	return m
}

// MaxOrder returns the highest order held by the model.
func (m *Model) MaxOrder() int {
	return len(m.orders)
}

// Order returns the model for contexts of length k.
func (m *Model) Order(k int) (*OrderModel, bool) {
	if k < 1 || k > len(m.orders) {
		return nil, false
	}
	return m.orders[k-1], true
}

// Lookup returns the distribution following context, using the order equal
// to the context's length in symbols.
func (m *Model) Lookup(context string) (*Distribution[rune], bool) {
	om, ok := m.Order(utf8.RuneCountInString(context))
	if !ok {
		return nil, false
	}
	return om.Lookup(context)
}

// Contains reports whether context is a known context at its own order.
func (m *Model) Contains(context string) bool {
	_, ok := m.Lookup(context)
	return ok
}

// OrderStats summarizes one order of a model.
type OrderStats struct {
	Order    int `json:"order"`
	Contexts int `json:"contexts"`
	Usages   int `json:"usages"`
}

// Stats returns per-order context and usage counts.
func (m *Model) Stats() []OrderStats {
	out := make([]OrderStats, len(m.orders))
	for i, om := range m.orders {
		out[i] = OrderStats{Order: om.order, Contexts: om.Len(), Usages: om.usages}
	}
	return out
}
