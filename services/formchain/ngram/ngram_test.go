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
	"encoding/json"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource returns queued draws in order.
type fixedSource struct {
	draws []int
}

func (f *fixedSource) IntN(n int) int {
	v := f.draws[0]
	f.draws = f.draws[1:]
	return v % n
}

func TestBuild_ExactCounts(t *testing.T) {
	m, err := Build("abcabcabc", 1)
	require.NoError(t, err)

	om, ok := m.Order(1)
	require.True(t, ok)
	assert.Equal(t, 3, om.Len())

	a, ok := om.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 3, a.Count('b'))
	assert.Equal(t, 3, a.Total())
	assert.Equal(t, 1, a.Len())

	b, ok := om.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, 3, b.Count('c'))

	c, ok := om.Lookup("c")
	require.True(t, ok)
	assert.Equal(t, 2, c.Count('a'), "last c has no follower")
	assert.Equal(t, 8, om.Usages())
}

func TestBuild_HigherOrders(t *testing.T) {
	m, err := Build("abcabcabc", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, m.MaxOrder())

	dist, ok := m.Lookup("abc")
	require.True(t, ok)
	assert.Equal(t, 2, dist.Count('a'))

	dist, ok = m.Lookup("ca")
	require.True(t, ok)
	assert.Equal(t, 2, dist.Count('b'))

	assert.False(t, m.Contains("cba"))
	assert.False(t, m.Contains("abca"), "order 4 is beyond the model")
}

func TestBuild_MultiByteRunes(t *testing.T) {
	m, err := Build("é—é—é", 2)
	require.NoError(t, err)

	dist, ok := m.Lookup("é—")
	require.True(t, ok)
	assert.Equal(t, 2, dist.Count('é'))

	dist, ok = m.Lookup("—")
	require.True(t, ok)
	assert.Equal(t, 2, dist.Total())
}

func TestBuild_EmptyModel(t *testing.T) {
	_, err := Build("abc", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyModel))

	_, err = Build("", 1)
	assert.True(t, errors.Is(err, ErrEmptyModel))

	_, err = Build("abcd", 0)
	assert.True(t, errors.Is(err, ErrInvalidOrder))

	_, err = Build("ab\xffcab\xffc", 2)
	assert.True(t, errors.Is(err, ErrInvalidText))
}

func TestBuild_TotalsMatchCountSums(t *testing.T) {
	texts := []string{
		"abcabcabc",
		"The quick brown fox jumps over the lazy dog. The dog sleeps!\nA new line.",
		"x, x. x; x: x!\nx x-x x.",
		"aaaaaaaaaaaaaaaaaaaa",
	}
	for _, text := range texts {
		m, err := Build(text, 5)
		require.NoError(t, err)
		for k := 1; k <= m.MaxOrder(); k++ {
			om, _ := m.Order(k)
			usages := 0
			for i := 0; i < om.Len(); i++ {
				dist, ok := om.Lookup(om.Key(i))
				require.True(t, ok)
				sum := 0
				dist.Each(func(_ rune, count int) { sum += count })
				assert.Equal(t, dist.Total(), sum, "order %d context %q", k, om.Key(i))
				usages += sum
			}
			assert.Equal(t, om.Usages(), usages)
		}
	}
}

func TestOffsetRing(t *testing.T) {
	r := newOffsetRing(3)
	assert.Equal(t, 0, r.Len())
	for i := 1; i <= 5; i++ {
		r.Push(i * 10)
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 50, r.Back(0))
	assert.Equal(t, 40, r.Back(1))
	assert.Equal(t, 30, r.Back(2))
}

func TestSample_WalksCumulativeCounts(t *testing.T) {
	d := NewDistribution[rune]()
	d.AddN('a', 2)
	d.AddN('b', 3)
	d.AddN('c', 1)

	// draw = IntN(6)+1; a covers 1-2, b covers 3-5, c covers 6.
	src := &fixedSource{draws: []int{0, 1, 2, 4, 5}}
	want := []rune{'a', 'a', 'b', 'b', 'c'}
	for _, w := range want {
		got, err := Sample(d, src)
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}
}

func TestSample_EmptyDistribution(t *testing.T) {
	_, err := Sample(NewDistribution[int](), rand.New(rand.NewPCG(1, 2)))
	assert.True(t, errors.Is(err, ErrEmptyDistribution))
}

func TestOverlay_DoesNotMutateBase(t *testing.T) {
	d := NewDistribution[rune]()
	d.AddN('a', 4)
	d.AddN('.', 2)

	var o Overlay[rune]
	o.Reset(d)
	o.Override('.', 10)
	assert.Equal(t, 14, o.Total())
	assert.Equal(t, 10, o.Count('.'))
	assert.Equal(t, 4, o.Count('a'))

	o.Override('.', 1)
	assert.Equal(t, 5, o.Total())

	assert.Equal(t, 2, d.Count('.'))
	assert.Equal(t, 6, d.Total())

	o.Reset(d)
	assert.Equal(t, 6, o.Total())
	assert.Equal(t, 2, o.Count('.'))
}

func TestSampleOverlay_UsesOverrides(t *testing.T) {
	d := NewDistribution[rune]()
	d.AddN('a', 1)
	d.AddN('b', 1)

	var o Overlay[rune]
	o.Reset(d)
	o.Override('a', 0)

	rng := rand.New(rand.NewPCG(7, 7))
	for i := 0; i < 50; i++ {
		got, err := SampleOverlay(&o, rng)
		require.NoError(t, err)
		assert.Equal(t, 'b', got)
	}
}

func TestSampleOverlay_Unbound(t *testing.T) {
	var o Overlay[rune]
	_, err := SampleOverlay(&o, rand.New(rand.NewPCG(1, 1)))
	assert.True(t, errors.Is(err, ErrEmptyDistribution))
}

func TestRandomContext(t *testing.T) {
	m, err := Build("hello world", 2)
	require.NoError(t, err)
	om, _ := m.Order(2)

	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 20; i++ {
		ctx, ok := om.RandomContext(rng)
		require.True(t, ok)
		assert.True(t, om.Contains(ctx))
	}
}

func TestModelSnapshot_RoundTripThroughJSON(t *testing.T) {
	m, err := Build("She said: «oui». He said no!\nThen—silence.", 4)
	require.NoError(t, err)

	data, err := json.Marshal(m.Snapshot())
	require.NoError(t, err)

	var snap ModelSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	restored, err := ModelFromSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, m.Stats(), restored.Stats())

	for k := 1; k <= m.MaxOrder(); k++ {
		om, _ := m.Order(k)
		rom, _ := restored.Order(k)
		for i := 0; i < om.Len(); i++ {
			assert.Equal(t, om.Key(i), rom.Key(i))
			want, _ := om.Lookup(om.Key(i))
			got, _ := rom.Lookup(om.Key(i))
			assert.Equal(t, want.Snapshot(), got.Snapshot())
		}
	}
}

func TestModelFromSnapshot_Rejects(t *testing.T) {
	_, err := ModelFromSnapshot(ModelSnapshot{})
	assert.True(t, errors.Is(err, ErrInvalidSnapshot))

	_, err = ModelFromSnapshot(ModelSnapshot{Orders: []OrderSnapshot{{Order: 2}}})
	assert.True(t, errors.Is(err, ErrInvalidSnapshot))

	_, err = ModelFromSnapshot(ModelSnapshot{Orders: []OrderSnapshot{{
		Order:    1,
		Contexts: []ContextSnapshot{{Context: "ab", Followers: "c", Counts: []int{1}}},
	}}})
	assert.True(t, errors.Is(err, ErrInvalidSnapshot))

	valid := func() ModelSnapshot {
		m, err := Build("abcabcab", 1)
		require.NoError(t, err)
		return m.Snapshot()
	}
	_, err = ModelFromSnapshot(valid())
	require.NoError(t, err)

	dup := valid()
	dup.Orders[0].Contexts = append(dup.Orders[0].Contexts, dup.Orders[0].Contexts[0])
	dup.Orders[0].Usages += dup.Orders[0].Contexts[0].Counts[0]
	_, err = ModelFromSnapshot(dup)
	assert.True(t, errors.Is(err, ErrInvalidSnapshot), "duplicate context")

	dupFollower := valid()
	cs := &dupFollower.Orders[0].Contexts[0]
	cs.Followers += cs.Followers
	cs.Counts = append(cs.Counts, cs.Counts...)
	dupFollower.Orders[0].Usages *= 2
	_, err = ModelFromSnapshot(dupFollower)
	assert.True(t, errors.Is(err, ErrInvalidSnapshot), "duplicate follower")

	usages := valid()
	usages.Orders[0].Usages++
	_, err = ModelFromSnapshot(usages)
	assert.True(t, errors.Is(err, ErrInvalidSnapshot), "usages mismatch")
}

func TestDistributionSnapshot(t *testing.T) {
	d := NewDistribution[int]()
	d.AddN(12, 3)
	d.Add(4)

	restored, err := DistributionFromSnapshot(d.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, []int{12, 4}, restored.Symbols())
	assert.Equal(t, 4, restored.Total())

	_, err = DistributionFromSnapshot(DistributionSnapshot[int]{Symbols: []int{1}, Counts: []int{}})
	assert.True(t, errors.Is(err, ErrInvalidSnapshot))
}
