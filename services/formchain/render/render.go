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
	"bufio"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/formchain/services/formchain/search"
)

// Output formats.
const (
	FormatPlain    = "plain"
	FormatHTML     = "html"
	FormatTerminal = "terminal"
)

// ErrUnknownFormat is returned by New for an unsupported format.
var ErrUnknownFormat = errors.New("unknown output format")

// Renderer writes a Document.
type Renderer interface {
	Render(w io.Writer, doc Document) error
}

// New returns the renderer for format.
//
// Inputs:
//   - format: FormatPlain, FormatHTML, FormatTerminal, or "" to pick the
//     terminal renderer when w is a terminal and plain text otherwise.
//   - w: Destination, used for the terminal check and lipgloss profile.
//   - minOrder, maxOrder: Generator order bounds used for shading.
//
// Outputs:
//   - Renderer: The renderer.
//   - error: ErrUnknownFormat.
func New(format string, w io.Writer, minOrder, maxOrder int) (Renderer, error) {
	if format == "" {
		format = FormatPlain
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = FormatTerminal
		}
	}
	switch format {
	case FormatPlain:
		return Plain{}, nil
	case FormatHTML:
		return HTML{MinOrder: minOrder, MaxOrder: maxOrder}, nil
	case FormatTerminal:
		return NewTerminal(lipgloss.NewRenderer(w), minOrder, maxOrder), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Shade returns the gray level for order: 0 (black) at maxOrder rising
// toward 248 at minOrder. Orders below minOrder get the lightest level.
func Shade(order, minOrder, maxOrder int) int {
	span := maxOrder + 1 - minOrder
	if span <= 0 {
		return 0
	}
	if order < minOrder {
		order = minOrder
	}
	if order > maxOrder {
		order = maxOrder
	}
	rest := span - (order - minOrder) - 1
	return int(float64(rest) / float64(span) * 248)
}

// run is a maximal stretch of triples with the same generator order.
type run struct {
	order int
	text  string
}

func runs(triples []search.Triple) []run {
	var out []run
	var b strings.Builder
	order := 0
	for i, t := range triples {
		if i > 0 && t.GeneratorOrder != order {
			out = append(out, run{order: order, text: b.String()})
			b.Reset()
		}
		order = t.GeneratorOrder
		b.WriteRune(t.Symbol)
	}
	if b.Len() > 0 {
		out = append(out, run{order: order, text: b.String()})
	}
	return out
}

func chapterLine(b Block) string {
	return "CHAPTER " + Roman(b.Chapter) + "."
}

// Plain writes text only.
type Plain struct{}

// Render implements Renderer.
func (Plain) Render(w io.Writer, doc Document) error {
	bw := bufio.NewWriter(w)
	if doc.Title != "" {
		fmt.Fprintf(bw, "%s\nby %s\n\n", doc.Title, doc.Author)
	}
	for i, b := range doc.Blocks {
		if b.Chapter > 0 {
			if i > 0 {
				bw.WriteString("\n")
			}
			fmt.Fprintf(bw, "%s\n%s\n\n", chapterLine(b), b.Heading)
		}
		bw.WriteString(search.Text(b.Triples))
	}
	return bw.Flush()
}

// HTML writes a standalone page with one span per run of equal generator
// order, shaded by a per-order class.
type HTML struct {
	MinOrder int
	MaxOrder int
}

// Render implements Renderer.
func (h HTML) Render(w io.Writer, doc Document) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(`<meta charset="UTF-8">`)
	bw.WriteString(`<style type="text/css"> body { white-space: pre-wrap; } `)
	for order := 1; order <= h.MaxOrder; order++ {
		v := Shade(order, h.MinOrder, h.MaxOrder)
		fmt.Fprintf(bw, ".order-%d { color: rgb(%d,%d,%d); }\n", order, v, v, v)
	}
	bw.WriteString("</style>\n")

	if doc.Title != "" {
		fmt.Fprintf(bw, "<h1>%s</h1>\n<p class=\"author\">by %s</p>\n",
			html.EscapeString(doc.Title), html.EscapeString(doc.Author))
	}
	for _, b := range doc.Blocks {
		if b.Chapter > 0 {
			fmt.Fprintf(bw, "<h2>%s<br>%s</h2>\n",
				html.EscapeString(chapterLine(b)), html.EscapeString(b.Heading))
		}
		for _, r := range runs(b.Triples) {
			fmt.Fprintf(bw, `<span class="order-%d">%s</span>`, r.order, html.EscapeString(r.text))
		}
	}
	return bw.Flush()
}

// Terminal writes text colored by generator order.
type Terminal struct {
	styles  map[int]lipgloss.Style
	heading lipgloss.Style
	base    lipgloss.Style
}

// NewTerminal creates a terminal renderer bound to a lipgloss renderer,
// which decides the color profile of the destination.
func NewTerminal(r *lipgloss.Renderer, minOrder, maxOrder int) Terminal {
	t := Terminal{
		styles:  make(map[int]lipgloss.Style, maxOrder),
		heading: r.NewStyle().Bold(true),
		base:    r.NewStyle(),
	}
	for order := 1; order <= maxOrder; order++ {
		// Inverted shade: high orders are bright.
		v := 255 - Shade(order, minOrder, maxOrder)
		t.styles[order] = r.NewStyle().Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", v, v, v)))
	}
	return t
}

// Render implements Renderer.
func (t Terminal) Render(w io.Writer, doc Document) error {
	bw := bufio.NewWriter(w)
	if doc.Title != "" {
		fmt.Fprintf(bw, "%s\nby %s\n\n", t.heading.Render(doc.Title), doc.Author)
	}
	for i, b := range doc.Blocks {
		if b.Chapter > 0 {
			if i > 0 {
				bw.WriteString("\n")
			}
			fmt.Fprintf(bw, "%s\n%s\n\n", t.heading.Render(chapterLine(b)), b.Heading)
		}
		for _, r := range runs(b.Triples) {
			style, ok := t.styles[r.order]
			if !ok {
				style = t.base
			}
			// Styling lines separately keeps lipgloss from padding them.
			lines := strings.Split(r.text, "\n")
			for j, line := range lines {
				if j > 0 {
					bw.WriteString("\n")
				}
				if line != "" {
					bw.WriteString(style.Render(line))
				}
			}
		}
	}
	return bw.Flush()
}
