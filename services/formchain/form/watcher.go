// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package form tracks the punctuation and spacing skeleton of a symbol stream
// and scores it against a model trained on the skeleton of the source text.
package form

import (
	"unicode"
	"unicode/utf8"

	"github.com/AleutianAI/formchain/services/formchain/ngram"
)

// Marker replaces every run of word symbols in a skeleton.
const Marker = 'x'

// NoMatch is the matched order of an empty skeleton buffer.
const NoMatch = -1

// IsWordRune reports whether r belongs to a word run. Hyphens join words.
func IsWordRune(r rune) bool {
	return r == '-' || unicode.IsLetter(r)
}

// State is the checkpointable part of a Watcher. It is a plain value; copying
// it is a full checkpoint.
type State struct {
	// Buffer is the bounded skeleton tail, at most the watcher's max order
	// symbols long.
	Buffer string

	// PendingSpace is set when a space followed a marker and has not been
	// written yet. It is written only if punctuation follows.
	PendingSpace bool

	// InRun is set while the stream is inside a non-word run.
	InRun bool

	// Matched is the 0-indexed order of the longest buffer suffix known to
	// the form model, or NoMatch.
	Matched int
}

// Watcher turns symbols into skeleton symbols and reports how well the
// skeleton tail is attested by the form model.
//
// Thread Safety: Not safe for concurrent use. The form model is shared
// read-only; every generation line owns its own Watcher.
type Watcher struct {
	model    *ngram.Model
	maxOrder int
	state    State
}

// NewWatcher creates a watcher over model.
//
// Inputs:
//   - model: Form model trained on the source skeleton.
//   - maxOrder: Buffer bound. Values outside 1..model.MaxOrder() select
//     model.MaxOrder().
//
// Outputs:
//   - *Watcher: Watcher with an empty buffer.
func NewWatcher(model *ngram.Model, maxOrder int) *Watcher {
	if maxOrder < 1 || maxOrder > model.MaxOrder() {
		maxOrder = model.MaxOrder()
	}
	return &Watcher{
		model:    model,
		maxOrder: maxOrder,
		state:    State{Matched: NoMatch},
	}
}

// Watch consumes one text symbol.
//
// Description:
//
//	Word symbols append a single Marker unless the buffer already ends with
//	one. A space after a marker is deferred. Any other symbol flushes a
//	deferred space and is appended as is. The buffer is then bounded to the
//	max order and, if it changed, trimmed from the left until the whole buffer
//	is a context known to the form model.
//
// Outputs:
//   - int: The matched order (0-indexed), NoMatch for an empty buffer.
//   - bool: True when the skeleton changed and the stream is not inside a
//     non-word run, i.e. a new word just began.
func (w *Watcher) Watch(r rune) (int, bool) {
	s := &w.state
	last, _ := utf8.DecodeLastRuneInString(s.Buffer)
	changed := false

	switch {
	case IsWordRune(r):
		if s.Buffer == "" || last != Marker {
			s.Buffer += string(Marker)
			changed = true
		}
		s.PendingSpace = false
		s.InRun = false
	case r == ' ' && s.Buffer != "" && last == Marker:
		s.PendingSpace = true
	default:
		if s.PendingSpace {
			s.Buffer += " "
			s.PendingSpace = false
		}
		s.Buffer += string(r)
		s.InRun = true
		changed = true
	}

	n := utf8.RuneCountInString(s.Buffer)
	for ; n > w.maxOrder; n-- {
		s.Buffer = dropFirst(s.Buffer)
	}

	if changed {
		for n > 0 && !w.model.Contains(s.Buffer) {
			s.Buffer = dropFirst(s.Buffer)
			n--
		}
	}
	s.Matched = n - 1

	return s.Matched, changed && !s.InRun
}

// Matched returns the last matched order.
func (w *Watcher) Matched() int {
	return w.state.Matched
}

// MaxOrder returns the buffer bound.
func (w *Watcher) MaxOrder() int {
	return w.maxOrder
}

// State returns a copy of the watcher state.
func (w *Watcher) State() State {
	return w.state
}

// Restore replaces the watcher state.
func (w *Watcher) Restore(s State) {
	w.state = s
}

// Sync copies the full state of src.
func (w *Watcher) Sync(src *Watcher) {
	w.state = src.state
}

func dropFirst(s string) string {
	_, size := utf8.DecodeRuneInString(s)
	return s[size:]
}
