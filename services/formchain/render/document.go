// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render turns generated triples into presentation text.
//
// Compose arranges the output into a Document with an optional title,
// author and chapter headings. Renderers write a Document as plain text,
// HTML shaded by generator order, or colored terminal text.
package render

import (
	"github.com/AleutianAI/formchain/services/formchain/ngram"
	"github.com/AleutianAI/formchain/services/formchain/search"
)

// Options control composition.
type Options struct {
	// Title adds a generated title and author.
	Title bool

	// ChapterParagraphs starts a new chapter every N paragraphs. Zero
	// disables chapters.
	ChapterParagraphs int
}

// Block is a run of generated text, optionally preceded by a chapter
// heading.
type Block struct {
	// Chapter is the chapter number, zero if the block has no heading.
	Chapter int

	// Heading is the chapter title.
	Heading string

	Triples []search.Triple
}

// Document is composed output ready to render.
type Document struct {
	Title  string
	Author string
	Blocks []Block
}

// Text returns the generated text of every block.
func (d Document) Text() string {
	var all []search.Triple
	for _, b := range d.Blocks {
		all = append(all, b.Triples...)
	}
	return search.Text(all)
}

// Compose arranges triples into a document.
//
// Inputs:
//   - triples: Generated output.
//   - opts: Title and chapter settings.
//   - rng: Source for titles and author names.
//
// Outputs:
//   - Document: One block, or one block per chapter when chapters are on.
//     A chapter ends after the newline that closes its last paragraph.
func Compose(triples []search.Triple, opts Options, rng ngram.Source) Document {
	var doc Document
	if opts.Title {
		doc.Title = Title(rng)
		doc.Author = Author(rng)
	}
	if opts.ChapterParagraphs <= 0 {
		doc.Blocks = []Block{{Triples: triples}}
		return doc
	}

	chapter := 1
	current := Block{Chapter: chapter, Heading: Title(rng)}
	paragraphs := 0
	var prev rune
	for _, t := range triples {
		current.Triples = append(current.Triples, t)
		if t.Symbol == '\n' && prev != '\n' && prev != 0 {
			paragraphs++
		}
		prev = t.Symbol
		if paragraphs == opts.ChapterParagraphs {
			doc.Blocks = append(doc.Blocks, current)
			chapter++
			current = Block{Chapter: chapter, Heading: Title(rng)}
			paragraphs = 0
			prev = 0
		}
	}
	if len(current.Triples) > 0 || len(doc.Blocks) == 0 {
		doc.Blocks = append(doc.Blocks, current)
	}
	return doc
}
