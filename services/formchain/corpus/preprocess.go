// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package corpus

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/AleutianAI/formchain/services/formchain/form"
)

const (
	modifierApostrophe = "ʼ"
	openQuote          = '‘'
	closeQuote         = '’'
	emDash             = "—"
	replacementChar    = "\uFFFD"
)

var (
	contractionPattern = regexp.MustCompile(`([\p{L}\p{N}_])'([\p{L}\p{N}_])`)
	quotePattern       = regexp.MustCompile(`([^\p{L}\p{N}_])'((?s).*?)'([^\p{L}\p{N}_])`)
	markerRunPattern   = regexp.MustCompile(`x( x)*`)
	lineEndings        = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// Preprocess canonicalizes raw text before training.
//
// Description:
//
//	Applies, in order: invalid UTF-8 to U+FFFD, NFC normalization, CRLF and CR to LF, apostrophes
//	inside words to U+02BC, paired single quotes to U+2018/U+2019, any
//	remaining straight apostrophe to U+02BC, and "--" to an em dash.
//
// Inputs:
//   - raw: Source text.
//
// Outputs:
//   - string: Normalized text.
func Preprocess(raw string) string {
	text := norm.NFC.String(strings.ToValidUTF8(raw, replacementChar))
	text = lineEndings.Replace(text)
	text = contractionPattern.ReplaceAllString(text, "${1}"+modifierApostrophe+"${2}")
	text = pairQuotes(text)
	text = strings.ReplaceAll(text, "'", modifierApostrophe)
	return strings.ReplaceAll(text, "--", emDash)
}

// pairQuotes replaces straight single quotes that open and close a quoted
// passage with typographic quotes. Matching resumes right after each closing
// quote so the delimiter after it can open the next passage.
func pairQuotes(text string) string {
	type pair struct{ open, close int }
	var pairs []pair

	for from := 0; from < len(text); {
		loc := quotePattern.FindStringSubmatchIndex(text[from:])
		if loc == nil {
			break
		}
		// loc[3] ends the leading delimiter, loc[5] ends the quoted body.
		p := pair{open: from + loc[3], close: from + loc[5]}
		pairs = append(pairs, p)
		from = p.close + 1
	}
	if len(pairs) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + 2*len(pairs))
	last := 0
	for _, p := range pairs {
		b.WriteString(text[last:p.open])
		b.WriteRune(openQuote)
		b.WriteString(text[p.open+1 : p.close])
		b.WriteRune(closeQuote)
		last = p.close + 1
	}
	b.WriteString(text[last:])
	return b.String()
}

// ExtractForm returns the skeleton of normalized text: every run of word
// symbols becomes form.Marker, and markers separated only by single spaces
// collapse into one.
func ExtractForm(text string) string {
	var b strings.Builder
	b.Grow(len(text) / 2)
	inWord := false
	for _, r := range text {
		if form.IsWordRune(r) {
			inWord = true
			continue
		}
		if inWord {
			b.WriteRune(form.Marker)
			inWord = false
		}
		b.WriteRune(r)
	}
	if inWord {
		b.WriteRune(form.Marker)
	}
	return markerRunPattern.ReplaceAllString(b.String(), string(form.Marker))
}
