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
	"errors"
	"fmt"

	"github.com/AleutianAI/formchain/services/formchain/boundary"
	"github.com/AleutianAI/formchain/services/formchain/ngram"
)

// SnapshotVersion is bumped whenever the snapshot layout changes.
const SnapshotVersion = 1

// ErrSnapshotMismatch is returned when a snapshot's version or fingerprint
// does not match its content.
var ErrSnapshotMismatch = errors.New("corpus snapshot mismatch")

// Snapshot is the serializable form of a Trained corpus.
type Snapshot struct {
	Version        int                          `json:"version"`
	Fingerprint    string                       `json:"fingerprint"`
	Options        Options                      `json:"options"`
	Text           string                       `json:"text"`
	TextModel      ngram.ModelSnapshot          `json:"text_model"`
	FormModel      ngram.ModelSnapshot          `json:"form_model"`
	Sentences      boundary.LengthModelSnapshot `json:"sentences"`
	Paragraphs     boundary.LengthModelSnapshot `json:"paragraphs"`
	SentenceStarts []int                        `json:"sentence_starts"`
}

// Snapshot returns the serializable form of c.
func (c *Trained) Snapshot() Snapshot {
	return Snapshot{
		Version:        SnapshotVersion,
		Fingerprint:    c.Fingerprint,
		Options:        c.Options,
		Text:           c.Text,
		TextModel:      c.TextModel.Snapshot(),
		FormModel:      c.FormModel.Snapshot(),
		Sentences:      c.Sentences.Snapshot(),
		Paragraphs:     c.Paragraphs.Snapshot(),
		SentenceStarts: c.SentenceStarts,
	}
}

// FromSnapshot rebuilds a Trained corpus and checks its fingerprint.
func FromSnapshot(s Snapshot) (*Trained, error) {
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrSnapshotMismatch, s.Version, SnapshotVersion)
	}
	if fp := Fingerprint(s.Text, s.Options); fp != s.Fingerprint {
		return nil, fmt.Errorf("%w: fingerprint %s does not match content", ErrSnapshotMismatch, s.Fingerprint)
	}

	textModel, err := ngram.ModelFromSnapshot(s.TextModel)
	if err != nil {
		return nil, fmt.Errorf("text model: %w", err)
	}
	formModel, err := ngram.ModelFromSnapshot(s.FormModel)
	if err != nil {
		return nil, fmt.Errorf("form model: %w", err)
	}
	sentences, err := boundary.LengthModelFromSnapshot(s.Sentences)
	if err != nil {
		return nil, fmt.Errorf("sentence lengths: %w", err)
	}
	paragraphs, err := boundary.LengthModelFromSnapshot(s.Paragraphs)
	if err != nil {
		return nil, fmt.Errorf("paragraph lengths: %w", err)
	}
	for _, start := range s.SentenceStarts {
		if start < 0 || start >= len(s.Text) {
			return nil, fmt.Errorf("%w: sentence start %d outside text", ErrSnapshotMismatch, start)
		}
	}

	return &Trained{
		Text:           s.Text,
		TextModel:      textModel,
		FormModel:      formModel,
		Sentences:      sentences,
		Paragraphs:     paragraphs,
		SentenceStarts: s.SentenceStarts,
		Fingerprint:    s.Fingerprint,
		Options:        s.Options,
	}, nil
}
