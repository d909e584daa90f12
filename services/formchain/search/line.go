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
	"unicode/utf8"

	"github.com/AleutianAI/formchain/services/formchain/boundary"
	"github.com/AleutianAI/formchain/services/formchain/corpus"
	"github.com/AleutianAI/formchain/services/formchain/form"
	"github.com/AleutianAI/formchain/services/formchain/generator"
	"github.com/AleutianAI/formchain/services/formchain/ngram"
)

// Triple is one emitted symbol with the orders that produced it.
type Triple struct {
	Symbol         rune `json:"symbol"`
	GeneratorOrder int  `json:"generator_order"`
	FormOrder      int  `json:"form_order"`
}

// Text concatenates the symbols of triples.
func Text(triples []Triple) string {
	buf := make([]byte, 0, len(triples))
	for _, t := range triples {
		buf = utf8.AppendRune(buf, t.Symbol)
	}
	return string(buf)
}

// Line is one generation line: a generator, a form watcher and the sentence
// and paragraph trackers that drive its length targets.
//
// Thread Safety: Not safe for concurrent use. Lines share the trained corpus
// read-only and own everything else.
type Line struct {
	trained    *corpus.Trained
	gen        *generator.Generator
	form       *form.Watcher
	rng        ngram.Source
	sentences  boundary.SentenceTracker
	paragraphs boundary.ParagraphTracker

	sentenceTarget  int
	paragraphTarget int
	offset          int
}

// NewLine creates an unstarted line.
func NewLine(trained *corpus.Trained, cfg generator.Config, rng ngram.Source) (*Line, error) {
	gen, err := generator.New(trained.TextModel, cfg, rng)
	if err != nil {
		return nil, err
	}
	return &Line{
		trained:    trained,
		gen:        gen,
		form:       form.NewWatcher(trained.FormModel, trained.Options.FormOrder),
		rng:        rng,
		sentences:  boundary.NewSentenceTracker(trained.Options.Terminators),
		paragraphs: boundary.NewParagraphTracker(),
	}, nil
}

// Start seeds the generator and feeds the seed through the watchers.
//
// Inputs:
//   - seed: Literal source text, or empty for a random context.
//
// Outputs:
//   - []Triple: The seed symbols as they enter the output.
//   - error: Generator start failure.
func (l *Line) Start(seed string) ([]Triple, error) {
	if err := l.gen.Start(seed); err != nil {
		return nil, err
	}
	seed = l.gen.Context()
	order := utf8.RuneCountInString(seed)

	l.sentenceTarget, _ = l.trained.Sentences.Next(0, false, l.rng)
	l.paragraphTarget, _ = l.trained.Paragraphs.Next(0, false, l.rng)

	out := make([]Triple, 0, order)
	for _, r := range seed {
		formOrder, _ := l.observe(r)
		out = append(out, Triple{Symbol: r, GeneratorOrder: order, FormOrder: formOrder})
	}
	return out, nil
}

// Advance generates one symbol.
//
// Outputs:
//   - Triple: The symbol and its orders.
//   - bool: True if the symbol completed a structural unit.
//   - error: Generator failure.
func (l *Line) Advance() (Triple, bool, error) {
	r, order, err := l.gen.Step(
		generator.Target{
			Terminators: l.sentences.Enders(),
			Length:      l.sentenceTarget,
			Progress:    l.sentences.Words(),
		},
		generator.Target{
			Terminators: "\n",
			Length:      l.paragraphTarget,
			Progress:    l.paragraphs.Sentences(),
		},
	)
	if err != nil {
		return Triple{}, false, fmt.Errorf("step: %w", err)
	}
	formOrder, isBoundary := l.observe(r)
	return Triple{Symbol: r, GeneratorOrder: order, FormOrder: formOrder}, isBoundary, nil
}

// observe feeds r to the form watcher and the trackers and draws new length
// targets when a unit ends.
func (l *Line) observe(r rune) (int, bool) {
	formOrder, isBoundary := l.form.Watch(r)
	if ev, ok := l.sentences.Watch(l.offset, r); ok {
		if n, ok := l.trained.Sentences.Next(ev.Words, true, l.rng); ok {
			l.sentenceTarget = n
		}
	}
	if ev, ok := l.paragraphs.Watch(r, &l.sentences); ok {
		if n, ok := l.trained.Paragraphs.Next(ev.Sentences, true, l.rng); ok {
			l.paragraphTarget = n
		}
	}
	l.offset++
	return formOrder, isBoundary
}

// Sync copies the full state of src. The random source is not copied.
func (l *Line) Sync(src *Line) {
	l.gen.Sync(src.gen)
	l.form.Sync(src.form)
	l.sentences.Sync(src.sentences)
	l.paragraphs.Sync(src.paragraphs)
	l.sentenceTarget = src.sentenceTarget
	l.paragraphTarget = src.paragraphTarget
	l.offset = src.offset
}

// SetSource replaces the random source of the line and its generator.
func (l *Line) SetSource(rng ngram.Source) {
	l.rng = rng
	l.gen.SetSource(rng)
}

// Matched returns the form watcher's last matched order.
func (l *Line) Matched() int {
	return l.form.Matched()
}

// Generator returns the generator state.
func (l *Line) Generator() generator.State {
	return l.gen.State()
}
