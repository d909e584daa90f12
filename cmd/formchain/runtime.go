// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/formchain/pkg/logging"
	"github.com/AleutianAI/formchain/services/formchain/config"
	"github.com/AleutianAI/formchain/services/formchain/corpus"
	"github.com/AleutianAI/formchain/services/formchain/modelstore"
	"github.com/AleutianAI/formchain/services/formchain/storage/badger"
	"github.com/AleutianAI/formchain/services/formchain/telemetry"
)

// ErrNoInput is returned when no training file was given.
var ErrNoInput = errors.New("no input file: pass one as an argument, with --input or in the config")

// runtime holds everything a command needs after startup.
type runtime struct {
	cfg      config.Config
	log      *logging.Logger
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	shutdown func(context.Context) error

	db    *badger.DB
	store *modelstore.Store
}

// setup loads the configuration, applies command line overrides, and starts
// logging and telemetry.
//
// Inputs:
//   - ctx: Context for telemetry exporter setup.
//   - cmd: The running command. Only flags the user set override the config.
//   - args: Positional arguments. The first, if any, is the input file.
//
// Outputs:
//   - *runtime: Ready runtime. Call close when done.
//   - error: Config or telemetry failures.
func setup(ctx context.Context, cmd *cobra.Command, args []string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}
	if len(args) > 0 {
		cfg.InputPath = args[0]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "formchain",
		Format:  cfg.Log.Format,
	})
	slog.SetDefault(log.Slog())

	rt := &runtime{cfg: cfg, log: log, logger: log.Slog()}
	if cfg.Telemetry.Enabled() {
		shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
		if err != nil {
			log.Close()
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		rt.shutdown = shutdown
	}
	metrics, err := telemetry.NewMetrics(otel.Meter(telemetry.MeterName))
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	rt.metrics = metrics
	return rt, nil
}

// close releases the cache, flushes telemetry and closes the log file.
func (rt *runtime) close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger.Warn("Failed to close cache", slog.String("error", err.Error()))
		}
	}
	if rt.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rt.shutdown(ctx); err != nil {
			rt.logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
		cancel()
	}
	_ = rt.log.Close()
}

// openStore opens the corpus cache at the configured path.
func (rt *runtime) openStore() error {
	dbCfg := badger.DefaultConfig(expandHome(rt.cfg.Cache.Path))
	dbCfg.Logger = rt.logger.With(slog.String("component", "badger"))
	db, err := badger.Open(dbCfg)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	store, err := modelstore.New(db, modelstore.WithLogger(rt.logger), modelstore.WithMetrics(rt.metrics))
	if err != nil {
		_ = db.Close()
		return err
	}
	rt.db, rt.store = db, store
	return nil
}

// loadCorpus reads the input file and trains on it, going through the cache
// when it is enabled.
func (rt *runtime) loadCorpus(ctx context.Context) (*corpus.Trained, error) {
	if rt.cfg.InputPath == "" {
		return nil, ErrNoInput
	}
	raw, err := os.ReadFile(rt.cfg.InputPath)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	trainer := corpus.NewTrainer(rt.logger, rt.metrics)
	if !rt.cfg.Cache.Enabled {
		return trainer.Train(ctx, string(raw), rt.cfg.Corpus())
	}
	if err := rt.openStore(); err != nil {
		return nil, err
	}
	trained, cached, err := rt.store.LoadOrTrain(ctx, trainer, string(raw), rt.cfg.Corpus())
	if err != nil {
		return nil, err
	}
	rt.logger.Info("Corpus ready",
		slog.String("input", rt.cfg.InputPath),
		slog.String("fingerprint", trained.Fingerprint),
		slog.Bool("cached", cached))
	return trained, nil
}

// applyFlags copies every flag the user set into cfg. Flags a command does
// not define are skipped.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	ints := map[string]*int{
		"min-order":          &cfg.MinOrder,
		"max-order":          &cfg.MaxOrder,
		"form-order":         &cfg.FormOrder,
		"max-tries":          &cfg.MaxTries,
		"distortion-factor":  &cfg.DistortionFactor,
		"amount":             &cfg.OutputAmount,
		"min-coherence":      &cfg.MinCoherence,
		"fork-step-budget":   &cfg.ForkStepBudget,
		"parallelism":        &cfg.Parallelism,
		"chapter-paragraphs": &cfg.ChapterParagraphs,
	}
	strs := map[string]*string{
		"input":       &cfg.InputPath,
		"output":      &cfg.OutputPath,
		"format":      &cfg.Format,
		"terminators": &cfg.Terminators,
		"log-level":   &cfg.Log.Level,
		"log-dir":     &cfg.Log.Dir,
		"cache-path":  &cfg.Cache.Path,
		"addr":        &cfg.Server.Addr,
	}
	bools := map[string]*bool{
		"formatted": &cfg.Formatted,
		"cache":     &cfg.Cache.Enabled,
	}

	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch {
		case ints[f.Name] != nil:
			*ints[f.Name], err = flags.GetInt(f.Name)
		case strs[f.Name] != nil:
			*strs[f.Name], err = flags.GetString(f.Name)
		case bools[f.Name] != nil:
			*bools[f.Name], err = flags.GetBool(f.Name)
		case f.Name == "seed":
			cfg.Seed, err = flags.GetUint64(f.Name)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
