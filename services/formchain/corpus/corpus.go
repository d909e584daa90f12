// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package corpus turns a source text into the trained models used for
// generation: the text model, the form model and the sentence and paragraph
// length models.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/formchain/services/formchain/boundary"
	"github.com/AleutianAI/formchain/services/formchain/ngram"
	"github.com/AleutianAI/formchain/services/formchain/telemetry"
)

// ErrInvalidOptions is returned for orders below 1.
var ErrInvalidOptions = errors.New("invalid training options")

// Options control training.
type Options struct {
	// MaxOrder is the highest order of the text model.
	MaxOrder int `json:"max_order"`

	// FormOrder is the highest order of the form model.
	FormOrder int `json:"form_order"`

	// Terminators are the sentence enders.
	Terminators string `json:"terminators"`
}

// Validate checks o.
func (o Options) Validate() error {
	if o.MaxOrder < 1 {
		return fmt.Errorf("%w: max order %d", ErrInvalidOptions, o.MaxOrder)
	}
	if o.FormOrder < 1 {
		return fmt.Errorf("%w: form order %d", ErrInvalidOptions, o.FormOrder)
	}
	return nil
}

func (o Options) terminators() string {
	if o.Terminators == "" {
		return boundary.DefaultSentenceEnders
	}
	return o.Terminators
}

// Trained is a fully trained corpus.
//
// Thread Safety: Immutable after training; safe for concurrent reads.
type Trained struct {
	// Text is the normalized training text.
	Text string

	// TextModel is the character model of Text.
	TextModel *ngram.Model

	// FormModel is the character model of the skeleton of Text.
	FormModel *ngram.Model

	// Sentences and Paragraphs are the unit length models.
	Sentences  *boundary.LengthModel
	Paragraphs *boundary.LengthModel

	// SentenceStarts are byte offsets into Text where sentences begin.
	SentenceStarts []int

	// Fingerprint identifies Text and Options.
	Fingerprint string

	Options Options
}

// Fingerprint returns the cache identity of a normalized text trained with
// opts: the hex SHA-256 of the options and the text.
func Fingerprint(text string, opts Options) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(opts.MaxOrder)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(opts.FormOrder)))
	h.Write([]byte{0})
	h.Write([]byte(opts.terminators()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Trainer builds Trained corpora.
//
// Thread Safety: Safe for concurrent use.
type Trainer struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewTrainer creates a trainer. Nil logger selects slog.Default(); nil
// metrics disables recording.
func NewTrainer(logger *slog.Logger, metrics *telemetry.Metrics) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{logger: logger, metrics: metrics}
}

// Train preprocesses raw text and trains on the result.
func (t *Trainer) Train(ctx context.Context, raw string, opts Options) (*Trained, error) {
	return t.TrainNormalized(ctx, Preprocess(raw), opts)
}

// TrainNormalized trains on already normalized text.
//
// Description:
//
//	Builds the text model, the form model and the length models
//	concurrently. Each is a single pass over its input.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - text: Normalized text.
//   - opts: Training options.
//
// Outputs:
//   - *Trained: The trained corpus.
//   - error: ErrInvalidOptions, ngram.ErrInvalidText if text is not valid
//     UTF-8, or ngram.ErrEmptyModel if the text or its skeleton is too short
//     for the requested orders.
func (t *Trainer) TrainNormalized(ctx context.Context, text string, opts Options) (*Trained, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("train: %w", ngram.ErrInvalidText)
	}
	opts.Terminators = opts.terminators()

	ctx, span := telemetry.StartSpan(ctx, "corpus.Train",
		trace.WithAttributes(
			attribute.Int("corpus.symbols", utf8.RuneCountInString(text)),
			attribute.Int("corpus.max_order", opts.MaxOrder),
			attribute.Int("corpus.form_order", opts.FormOrder),
		),
	)
	defer span.End()
	start := time.Now()

	out := &Trained{
		Text:        text,
		Fingerprint: Fingerprint(text, opts),
		Options:     opts,
	}
	skeleton := ExtractForm(text)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := ngram.Build(text, opts.MaxOrder)
		if err != nil {
			return fmt.Errorf("text model: %w", err)
		}
		out.TextModel = m
		return gctx.Err()
	})
	g.Go(func() error {
		m, err := ngram.Build(skeleton, opts.FormOrder)
		if err != nil {
			return fmt.Errorf("form model: %w", err)
		}
		out.FormModel = m
		return gctx.Err()
	})
	g.Go(func() error {
		lengths := boundary.CollectLengths(text, opts.Terminators)
		out.Sentences = lengths.Sentences
		out.Paragraphs = lengths.Paragraphs
		out.SentenceStarts = lengths.Starts
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	elapsed := time.Since(start)
	t.metrics.RecordTrain(ctx, elapsed)
	telemetry.SetSpanOK(span)
	telemetry.LoggerWithTrace(ctx, t.logger).Info("corpus trained",
		slog.String("fingerprint", out.Fingerprint[:12]),
		slog.Int("symbols", utf8.RuneCountInString(text)),
		slog.Int("sentences", len(out.SentenceStarts)),
		slog.Duration("elapsed", elapsed),
	)
	return out, nil
}

// Seed picks a literal sentence start from the text.
//
// Description:
//
//	Candidates are sentence starts whose first symbol is uppercase and that
//	are followed by more than n symbols. The seed is the first n symbols of a
//	uniformly chosen candidate, so every suffix of it is a known context.
//
// Inputs:
//   - rng: Random source.
//   - n: Seed length in symbols.
//
// Outputs:
//   - string: The seed.
//   - bool: False if no sentence start qualifies.
func (c *Trained) Seed(rng ngram.Source, n int) (string, bool) {
	var candidates []string
	for _, start := range c.SentenceStarts {
		if seed, ok := c.seedAt(start, n); ok {
			candidates = append(candidates, seed)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rng.IntN(len(candidates))], true
}

func (c *Trained) seedAt(start, n int) (string, bool) {
	rest := c.Text[start:]
	first, _ := utf8.DecodeRuneInString(rest)
	if !unicode.IsUpper(first) {
		return "", false
	}
	end := 0
	for i := 0; i < n; i++ {
		if end >= len(rest) {
			return "", false
		}
		_, size := utf8.DecodeRuneInString(rest[end:])
		end += size
	}
	if end >= len(rest) {
		return "", false
	}
	return rest[:end], true
}

// Stats summarizes a trained corpus.
type Stats struct {
	Fingerprint      string             `json:"fingerprint"`
	Symbols          int                `json:"symbols"`
	Sentences        int                `json:"sentences"`
	SentenceLengths  int                `json:"sentence_lengths"`
	ParagraphLengths int                `json:"paragraph_lengths"`
	TextOrders       []ngram.OrderStats `json:"text_orders"`
	FormOrders       []ngram.OrderStats `json:"form_orders"`
}

// Stats returns the corpus summary.
func (c *Trained) Stats() Stats {
	return Stats{
		Fingerprint:      c.Fingerprint,
		Symbols:          utf8.RuneCountInString(c.Text),
		Sentences:        len(c.SentenceStarts),
		SentenceLengths:  c.Sentences.Marginal().Len(),
		ParagraphLengths: c.Paragraphs.Marginal().Len(),
		TextOrders:       c.TextModel.Stats(),
		FormOrders:       c.FormModel.Stats(),
	}
}
