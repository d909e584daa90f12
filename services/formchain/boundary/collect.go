// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package boundary

// Lengths holds the unit-length models of one text.
type Lengths struct {
	// Sentences maps sentence word counts to the next sentence's word count.
	Sentences *LengthModel

	// Paragraphs maps paragraph sentence counts to the next paragraph's.
	Paragraphs *LengthModel

	// Starts are the byte offsets where sentences begin, in text order.
	Starts []int
}

// CollectLengths scans text once through a sentence tracker and a paragraph
// tracker and builds both length models.
//
// Inputs:
//   - text: Normalized training text.
//   - enders: Sentence enders. Empty selects DefaultSentenceEnders.
//
// Outputs:
//   - Lengths: The models and the sentence start offsets.
func CollectLengths(text string, enders string) Lengths {
	out := Lengths{
		Sentences:  NewLengthModel(),
		Paragraphs: NewLengthModel(),
	}
	sentences := NewSentenceTracker(enders)
	paragraphs := NewParagraphTracker()

	for offset, r := range text {
		if ev, ok := sentences.Watch(offset, r); ok {
			out.Starts = append(out.Starts, ev.Start)
			if ev.HasPrevious {
				out.Sentences.Record(ev.Previous, ev.Words)
			} else {
				out.Sentences.Observe(ev.Words)
			}
		}
		if ev, ok := paragraphs.Watch(r, &sentences); ok {
			if ev.HasPrevious {
				out.Paragraphs.Record(ev.Previous, ev.Sentences)
			} else {
				out.Paragraphs.Observe(ev.Sentences)
			}
		}
	}
	return out
}
