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
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/AleutianAI/formchain/services/formchain/ngram"
)

// wordType is a slot in a title template.
type wordType int

const (
	person wordType = iota
	place
	thing
	pronoun
	adjective
	verb
	preposition
	article
	conjunction
	punctuation
)

var titleWords = map[wordType][]string{
	person:      {"Pig", "Rabbit", "Caterpillar", "Lobster", "Queen's", "Turtle's", "Alice's", "Bill"},
	place:       {"Pool", "Croquet-Ground", "Rabbit-Hole", "Wonderland"},
	thing:       {"Tears", "Tale", "Advice", "Pepper", "Story", "Quadrille", "Tarts", "Evidence", "Caucus-Race", "Tea-Party", "Adventures"},
	pronoun:     {"Who"},
	adjective:   {"Long", "Little", "Mad", "Mock"},
	verb:        {"Sends", "Stole"},
	preposition: {"Down", "of", "in", "from"},
	article:     {"a", "the"},
	conjunction: {"and"},
	punctuation: {"?"},
}

var titleTemplates = [][]wordType{
	{preposition, article, place},
	{article, place, preposition, thing},
	{article, thing, conjunction, article, adjective, thing},
	{article, person, verb, preposition, article, adjective, person},
	{thing, preposition, article, person},
	{person, conjunction, thing},
	{article, adjective, thing},
	{article, person, place},
	{article, adjective, person, thing},
	{article, person, thing},
	{pronoun, verb, article, thing, punctuation},
	{person, thing},
	{person, thing, preposition, place},
}

var authorNames = []string{
	"Alice", "Antipathies", "Bill", "Canary", "Cat", "Caterpillar", "Cheshire",
	"Conqueror", "Crab", "Dinah", "Dodo", "Dormouse", "Duchess", "Duck",
	"Eaglet", "Edgar", "Atheling", "Elsie", "Lacie", "Father", "William",
	"Fish-Footman", "Five", "Footman", "Frog-Footman", "Fury", "Gryphon",
	"Hatter", "Jack", "King", "Knave", "Lewis", "Carroll", "Little", "Lizard",
	"Lobster", "Lory", "Magpie", "March", "Hare", "Mock", "Turtle", "Morcar",
	"Mouse", "Multiplication", "Northumbria", "Owl", "Panther", "Pepper",
	"Pigeon", "Queen", "Rabbit", "Seven", "Shakespeare", "Tillie", "Two", "White",
}

// articleBeforeVowel matches an indefinite article followed by a vowel.
var articleBeforeVowel = regexp.MustCompile(`\b([Aa]) ([AEIOUaeiou])`)

// Title fills a random template with random words.
func Title(rng ngram.Source) string {
	template := titleTemplates[rng.IntN(len(titleTemplates))]

	var b strings.Builder
	for _, slot := range template {
		words := titleWords[slot]
		if b.Len() > 0 && slot != punctuation {
			b.WriteByte(' ')
		}
		b.WriteString(words[rng.IntN(len(words))])
	}
	return articleBeforeVowel.ReplaceAllString(capitalize(b.String()), "${1}n $2")
}

// Author returns two random names.
func Author(rng ngram.Source) string {
	return authorNames[rng.IntN(len(authorNames))] + " " + authorNames[rng.IntN(len(authorNames))]
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

var romanNumerals = []struct {
	value  int
	symbol string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

// Roman returns n in Roman numerals. Non-positive n yields "".
func Roman(n int) string {
	var b strings.Builder
	for _, rn := range romanNumerals {
		for n >= rn.value {
			b.WriteString(rn.symbol)
			n -= rn.value
		}
	}
	return b.String()
}
