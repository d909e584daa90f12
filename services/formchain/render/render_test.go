// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"bytes"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/formchain/services/formchain/search"
)

func triples(text string, orders ...int) []search.Triple {
	out := make([]search.Triple, 0, len(text))
	i := 0
	for _, r := range text {
		order := orders[len(orders)-1]
		if i < len(orders) {
			order = orders[i]
		}
		out = append(out, search.Triple{Symbol: r, GeneratorOrder: order})
		i++
	}
	return out
}

func TestRoman(t *testing.T) {
	cases := map[int]string{1: "I", 4: "IV", 9: "IX", 14: "XIV", 40: "XL", 1994: "MCMXCIV", 0: ""}
	for n, want := range cases {
		assert.Equal(t, want, Roman(n), "n=%d", n)
	}
}

func TestTitleAndAuthor(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		title := Title(rng)
		require.NotEmpty(t, title)
		assert.Equal(t, strings.ToUpper(title[:1]), title[:1])
		assert.NotRegexp(t, `\b[Aa] [AEIOUaeiou]`, title)
		assert.NotContains(t, title, " ?")

		author := Author(rng)
		assert.Len(t, strings.Fields(author), 2)
	}
}

func TestArticleBeforeVowel(t *testing.T) {
	assert.Equal(t, "An Adventures", articleBeforeVowel.ReplaceAllString("A Adventures", "${1}n $2"))
	assert.Equal(t, "Who Stole an Evidence", articleBeforeVowel.ReplaceAllString("Who Stole a Evidence", "${1}n $2"))
	assert.Equal(t, "Down a Pool", articleBeforeVowel.ReplaceAllString("Down a Pool", "${1}n $2"))
}

func TestShade(t *testing.T) {
	assert.Equal(t, 0, Shade(7, 3, 7))
	assert.Equal(t, 198, Shade(3, 3, 7))
	assert.Equal(t, 198, Shade(1, 3, 7), "orders below the minimum use the lightest level")
	assert.Equal(t, 0, Shade(9, 3, 7))
	for o := 3; o < 7; o++ {
		assert.Greater(t, Shade(o, 3, 7), Shade(o+1, 3, 7))
	}
}

func TestCompose_Chapters(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	text := "One.\nTwo.\n\nThree.\nFour.\nFive."
	doc := Compose(triples(text, 5), Options{Title: true, ChapterParagraphs: 2}, rng)

	assert.NotEmpty(t, doc.Title)
	assert.NotEmpty(t, doc.Author)
	require.Len(t, doc.Blocks, 3)
	assert.Equal(t, "One.\nTwo.\n", search.Text(doc.Blocks[0].Triples))
	assert.Equal(t, "\nThree.\nFour.\n", search.Text(doc.Blocks[1].Triples))
	assert.Equal(t, "Five.", search.Text(doc.Blocks[2].Triples))
	for i, b := range doc.Blocks {
		assert.Equal(t, i+1, b.Chapter)
		assert.NotEmpty(t, b.Heading)
	}
	assert.Equal(t, text, doc.Text())
}

func TestCompose_NoChapters(t *testing.T) {
	doc := Compose(triples("abc", 3), Options{}, rand.New(rand.NewPCG(1, 1)))
	require.Len(t, doc.Blocks, 1)
	assert.Zero(t, doc.Blocks[0].Chapter)
	assert.Empty(t, doc.Title)
}

func TestPlain(t *testing.T) {
	doc := Document{
		Title:  "The Tale",
		Author: "Mock Turtle",
		Blocks: []Block{
			{Chapter: 1, Heading: "Down the Pool", Triples: triples("Hi.\n", 3)},
			{Chapter: 2, Heading: "Tea-Party", Triples: triples("Bye.", 3)},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, Plain{}.Render(&buf, doc))
	assert.Equal(t, "The Tale\nby Mock Turtle\n\nCHAPTER I.\nDown the Pool\n\nHi.\n\nCHAPTER II.\nTea-Party\n\nBye.", buf.String())
}

func TestHTML(t *testing.T) {
	doc := Document{Blocks: []Block{{Triples: triples("a<b", 3, 3, 5)}}}
	var buf bytes.Buffer
	require.NoError(t, HTML{MinOrder: 3, MaxOrder: 5}.Render(&buf, doc))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `<meta charset="UTF-8">`))
	assert.Contains(t, out, ".order-5 { color: rgb(0,0,0); }")
	assert.Contains(t, out, ".order-3 { color: rgb(165,165,165); }")
	assert.Contains(t, out, `<span class="order-3">a&lt;</span><span class="order-5">b</span>`)
}

func TestTerminal_NoColorProfile(t *testing.T) {
	var buf bytes.Buffer
	r, err := New(FormatTerminal, &buf, 3, 5)
	require.NoError(t, err)

	doc := Document{Blocks: []Block{{Triples: triples("ab\ncd", 3, 4, 4, 5)}}}
	require.NoError(t, r.Render(&buf, doc))
	assert.Equal(t, "ab\ncd", buf.String())
}

func TestTerminal_Styles(t *testing.T) {
	term := NewTerminal(lipgloss.NewRenderer(&bytes.Buffer{}), 3, 5)
	assert.Len(t, term.styles, 5)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	r, err := New("", &buf, 3, 7)
	require.NoError(t, err)
	assert.IsType(t, Plain{}, r)

	r, err = New(FormatHTML, &buf, 3, 7)
	require.NoError(t, err)
	assert.IsType(t, HTML{}, r)

	_, err = New("pdf", &buf, 3, 7)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
