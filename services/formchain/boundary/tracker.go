// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package boundary detects sentence and paragraph boundaries in a symbol
// stream and models the lengths of consecutive units.
//
// Trackers are plain value types. Copying one is a full checkpoint, which is
// how speculative generation lines branch and commit.
package boundary

import (
	"strings"
	"unicode"
)

// DefaultSentenceEnders are the symbols that close a sentence.
const DefaultSentenceEnders = ".!?"

// SentenceEvent describes a sentence that just ended.
type SentenceEvent struct {
	// Words is the number of words in the sentence.
	Words int

	// Start is the offset of the sentence's first letter.
	Start int

	// Previous is the word count of the preceding sentence, valid only when
	// HasPrevious is true.
	Previous    int
	HasPrevious bool
}

// SentenceTracker counts words and reports sentence ends.
//
// A sentence starts at the first letter seen while no sentence is pending and
// ends at the next sentence ender. A newline discards a pending sentence.
//
// Thread Safety: Not safe for concurrent use. Copy to branch.
type SentenceTracker struct {
	enders      string
	inWord      bool
	words       int
	start       int
	pending     bool
	previous    int
	hasPrevious bool
}

// NewSentenceTracker creates a tracker. An empty enders string selects
// DefaultSentenceEnders.
func NewSentenceTracker(enders string) SentenceTracker {
	if enders == "" {
		enders = DefaultSentenceEnders
	}
	return SentenceTracker{enders: enders}
}

// IsEnder reports whether r closes a sentence.
func (t *SentenceTracker) IsEnder(r rune) bool {
	return strings.ContainsRune(t.enders, r)
}

// Enders returns the configured sentence enders.
func (t *SentenceTracker) Enders() string {
	return t.enders
}

// Watch consumes one symbol.
//
// Inputs:
//   - offset: Position of r in the stream. Reported back as Start.
//   - r: The symbol.
//
// Outputs:
//   - SentenceEvent: The finished sentence, valid when the bool is true.
//   - bool: True if r ended a sentence.
func (t *SentenceTracker) Watch(offset int, r rune) (SentenceEvent, bool) {
	if unicode.IsLetter(r) {
		t.inWord = true
		if !t.pending {
			t.pending = true
			t.start = offset
		}
		return SentenceEvent{}, false
	}

	if t.inWord {
		t.inWord = false
		t.words++
	}

	if t.pending && t.IsEnder(r) {
		ev := SentenceEvent{
			Words:       t.words,
			Start:       t.start,
			Previous:    t.previous,
			HasPrevious: t.hasPrevious,
		}
		t.previous = t.words
		t.hasPrevious = true
		t.words = 0
		t.pending = false
		return ev, true
	}

	if r == '\n' {
		t.pending = false
		t.words = 0
	}
	return SentenceEvent{}, false
}

// InSentence reports whether a sentence has started and not yet ended.
func (t *SentenceTracker) InSentence() bool {
	return t.pending
}

// Words returns the words completed in the pending sentence.
func (t *SentenceTracker) Words() int {
	return t.words
}

// Previous returns the word count of the last finished sentence.
func (t *SentenceTracker) Previous() (int, bool) {
	return t.previous, t.hasPrevious
}

// Sync copies the full state of src.
func (t *SentenceTracker) Sync(src SentenceTracker) {
	*t = src
}

// ParagraphEvent describes a paragraph that just ended.
type ParagraphEvent struct {
	// Sentences is the number of sentences in the paragraph.
	Sentences int

	// Previous is the sentence count of the preceding paragraph, valid only
	// when HasPrevious is true.
	Previous    int
	HasPrevious bool
}

// ParagraphTracker counts sentences and reports paragraph ends.
//
// It reads the sentence tracker after that tracker has consumed the same
// symbol. A paragraph ends at the first newline seen between sentences;
// further newlines are ignored until a new sentence begins.
//
// Thread Safety: Not safe for concurrent use. Copy to branch.
type ParagraphTracker struct {
	sentences   int
	inSentence  bool
	hasEnded    bool
	previous    int
	hasPrevious bool
}

// NewParagraphTracker creates a tracker. Newlines before the first sentence
// do not end a paragraph.
func NewParagraphTracker() ParagraphTracker {
	return ParagraphTracker{hasEnded: true}
}

// Watch consumes one symbol.
//
// Inputs:
//   - r: The symbol.
//   - sentences: The sentence tracker, already advanced past r.
//
// Outputs:
//   - ParagraphEvent: The finished paragraph, valid when the bool is true.
//   - bool: True if r ended a paragraph.
func (t *ParagraphTracker) Watch(r rune, sentences *SentenceTracker) (ParagraphEvent, bool) {
	if sentences.InSentence() {
		if !t.inSentence {
			t.inSentence = true
			t.hasEnded = false
		}
		return ParagraphEvent{}, false
	}

	if t.inSentence {
		t.inSentence = false
		t.sentences++
	}
	if t.hasEnded || r != '\n' {
		return ParagraphEvent{}, false
	}

	ev := ParagraphEvent{
		Sentences:   t.sentences,
		Previous:    t.previous,
		HasPrevious: t.hasPrevious,
	}
	t.hasEnded = true
	t.previous = t.sentences
	t.hasPrevious = true
	t.sentences = 0
	return ev, true
}

// Sentences returns the sentences completed in the current paragraph.
func (t *ParagraphTracker) Sentences() int {
	return t.sentences
}

// Previous returns the sentence count of the last finished paragraph.
func (t *ParagraphTracker) Previous() (int, bool) {
	return t.previous, t.hasPrevious
}

// Sync copies the full state of src.
func (t *ParagraphTracker) Sync(src ParagraphTracker) {
	*t = src
}
