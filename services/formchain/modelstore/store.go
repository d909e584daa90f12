// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package modelstore caches trained corpora in BadgerDB.
//
// Entries are corpus snapshots encoded as JSON and compressed with zstd,
// keyed by the corpus fingerprint. A cached entry replaces training
// entirely; there is no incremental update.
package modelstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/AleutianAI/formchain/services/formchain/corpus"
	"github.com/AleutianAI/formchain/services/formchain/storage/badger"
	"github.com/AleutianAI/formchain/services/formchain/telemetry"
)

const keyPrefix = "corpus/"

var (
	// ErrNotFound is returned when no corpus is cached under a fingerprint.
	ErrNotFound = errors.New("corpus not cached")

	// ErrNilDB is returned by New without a database.
	ErrNilDB = errors.New("modelstore requires a database")
)

// Store reads and writes cached corpora.
//
// Thread Safety: Safe for concurrent use. The zstd encoder and decoder are
// used only through their stateless EncodeAll/DecodeAll methods.
type Store struct {
	db      *badger.DB
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New creates a store over db. The caller keeps ownership of db.
func New(db *badger.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	s := &Store{db: db, enc: enc, dec: dec, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the codec resources. It does not close the database.
func (s *Store) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

// Key returns the database key of a fingerprint.
func Key(fingerprint string) []byte {
	return []byte(keyPrefix + fingerprint)
}

// Load returns the corpus cached under fingerprint.
//
// Outputs:
//   - *corpus.Trained: The corpus.
//   - error: ErrNotFound on a miss; a decode or corpus.ErrSnapshotMismatch
//     error if the entry is unusable.
func (s *Store) Load(ctx context.Context, fingerprint string) (*corpus.Trained, error) {
	raw, ok, err := s.db.Get(ctx, Key(fingerprint))
	if err != nil {
		s.metrics.RecordCacheLookup(ctx, "error")
		return nil, fmt.Errorf("read %s: %w", fingerprint, err)
	}
	if !ok {
		s.metrics.RecordCacheLookup(ctx, "miss")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fingerprint)
	}

	trained, err := s.decode(raw)
	if err != nil {
		s.metrics.RecordCacheLookup(ctx, "error")
		return nil, fmt.Errorf("decode %s: %w", fingerprint, err)
	}
	if trained.Fingerprint != fingerprint {
		s.metrics.RecordCacheLookup(ctx, "error")
		return nil, fmt.Errorf("%w: stored under %s, holds %s", corpus.ErrSnapshotMismatch, fingerprint, trained.Fingerprint)
	}
	s.metrics.RecordCacheLookup(ctx, "hit")
	return trained, nil
}

// Save stores c under its fingerprint, replacing any previous entry.
func (s *Store) Save(ctx context.Context, c *corpus.Trained) error {
	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.Fingerprint, err)
	}
	compressed := s.enc.EncodeAll(data, make([]byte, 0, len(data)/4))
	if err := s.db.Set(ctx, Key(c.Fingerprint), compressed); err != nil {
		return fmt.Errorf("write %s: %w", c.Fingerprint, err)
	}
	s.logger.Debug("corpus cached",
		slog.String("fingerprint", c.Fingerprint),
		slog.Int("json_bytes", len(data)),
		slog.Int("stored_bytes", len(compressed)),
	)
	return nil
}

// Delete removes the entry for fingerprint.
func (s *Store) Delete(ctx context.Context, fingerprint string) error {
	return s.db.Delete(ctx, Key(fingerprint))
}

// List returns the cached fingerprints in key order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.db.Keys(ctx, []byte(keyPrefix))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(string(k), keyPrefix))
	}
	return out, nil
}

// LoadOrTrain returns the cached corpus for raw text, training and caching
// it on a miss. Unusable entries are retrained and overwritten. A failed
// write is logged and does not fail the call.
//
// Outputs:
//   - *corpus.Trained: The corpus.
//   - bool: True if it came from the cache.
//   - error: Training failure.
func (s *Store) LoadOrTrain(ctx context.Context, trainer *corpus.Trainer, raw string, opts corpus.Options) (*corpus.Trained, bool, error) {
	text := corpus.Preprocess(raw)
	fingerprint := corpus.Fingerprint(text, opts)

	trained, err := s.Load(ctx, fingerprint)
	if err == nil {
		return trained, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("cached corpus unusable, retraining",
			slog.String("fingerprint", fingerprint),
			slog.String("error", err.Error()),
		)
	}

	trained, err = trainer.TrainNormalized(ctx, text, opts)
	if err != nil {
		return nil, false, err
	}
	if err := s.Save(ctx, trained); err != nil {
		s.logger.Warn("failed to cache corpus",
			slog.String("fingerprint", fingerprint),
			slog.String("error", err.Error()),
		)
	}
	return trained, false, nil
}

func (s *Store) decode(raw []byte) (*corpus.Trained, error) {
	data, err := s.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	var snap corpus.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return corpus.FromSnapshot(snap)
}
