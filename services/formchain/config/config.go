// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the formchain run configuration.
//
// Load merges defaults, a YAML or JSON file and FORMCHAIN_* environment
// variables, in that order of increasing priority. Command-line flags are
// applied on top by the CLI. The result is one immutable value passed to
// constructors.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/formchain/services/formchain/corpus"
	"github.com/AleutianAI/formchain/services/formchain/search"
	"github.com/AleutianAI/formchain/services/formchain/telemetry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete run configuration.
type Config struct {
	// InputPath is the training text file.
	InputPath string `json:"input_path" yaml:"input_path"`

	// OutputPath is where output is written; empty means stdout.
	OutputPath string `json:"output_path" yaml:"output_path"`

	MinOrder  int `json:"min_order" yaml:"min_order" validate:"min=1"`
	MaxOrder  int `json:"max_order" yaml:"max_order" validate:"min=1,gtefield=MinOrder"`
	FormOrder int `json:"form_order" yaml:"form_order" validate:"min=2"`

	// MaxTries is the number of forks per segment.
	MaxTries int `json:"max_tries" yaml:"max_tries" validate:"min=0"`

	DistortionFactor int `json:"distortion_factor" yaml:"distortion_factor" validate:"min=1"`

	// OutputAmount is the number of symbols to generate, seed included.
	OutputAmount int `json:"output_amount" yaml:"output_amount" validate:"min=1"`

	// Formatted adds a title, author and chapters.
	Formatted bool `json:"formatted" yaml:"formatted"`

	// Format is the output format; empty picks terminal or plain by
	// destination.
	Format string `json:"format" yaml:"format" validate:"omitempty,oneof=plain html terminal"`

	MinCoherence   int `json:"min_coherence" yaml:"min_coherence" validate:"min=0"`
	ForkStepBudget int `json:"fork_step_budget" yaml:"fork_step_budget" validate:"min=1"`
	Parallelism    int `json:"parallelism" yaml:"parallelism" validate:"min=1"`

	// Seed fixes the random source; zero seeds from the clock.
	Seed uint64 `json:"seed" yaml:"seed"`

	// ChapterParagraphs starts a chapter every N paragraphs when Formatted.
	ChapterParagraphs int `json:"chapter_paragraphs" yaml:"chapter_paragraphs" validate:"min=0"`

	Terminators string `json:"terminators" yaml:"terminators" validate:"required"`

	Cache     CacheConfig      `json:"cache" yaml:"cache"`
	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`
	Log       LogConfig        `json:"log" yaml:"log"`
	Server    ServerConfig     `json:"server" yaml:"server"`
}

// CacheConfig controls the trained-corpus cache.
type CacheConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path" validate:"required_if=Enabled true"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir    string `json:"dir" yaml:"dir"`
	Format string `json:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// ServerConfig controls serve mode.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" validate:"required"`

	// MaxAmount caps the amount a single request may ask for.
	MaxAmount int `json:"max_amount" yaml:"max_amount" validate:"min=1"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		MinOrder:         3,
		MaxOrder:         7,
		FormOrder:        10,
		MaxTries:         8,
		DistortionFactor: 4,
		OutputAmount:     2000,
		MinCoherence:     5,
		ForkStepBudget:   400,
		Parallelism:      4,
		Terminators:      ".!?",
		Cache: CacheConfig{
			Path: "~/.formchain/cache",
		},
		Telemetry: telemetry.DefaultConfig(),
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr:      ":8090",
			MaxAmount: 20000,
		},
	}
}

// Load builds a configuration with priority env > file > defaults.
//
// Inputs:
//   - path: YAML or JSON file. Empty or missing files are skipped.
//
// Outputs:
//   - Config: The merged configuration.
//   - error: Parse failures and ErrInvalidConfig.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

// envInts maps environment variables to integer fields.
func envInts(cfg *Config) map[string]*int {
	return map[string]*int{
		"FORMCHAIN_MIN_ORDER":          &cfg.MinOrder,
		"FORMCHAIN_MAX_ORDER":          &cfg.MaxOrder,
		"FORMCHAIN_FORM_ORDER":         &cfg.FormOrder,
		"FORMCHAIN_MAX_TRIES":          &cfg.MaxTries,
		"FORMCHAIN_DISTORTION_FACTOR":  &cfg.DistortionFactor,
		"FORMCHAIN_OUTPUT_AMOUNT":      &cfg.OutputAmount,
		"FORMCHAIN_MIN_COHERENCE":      &cfg.MinCoherence,
		"FORMCHAIN_FORK_STEP_BUDGET":   &cfg.ForkStepBudget,
		"FORMCHAIN_PARALLELISM":        &cfg.Parallelism,
		"FORMCHAIN_CHAPTER_PARAGRAPHS": &cfg.ChapterParagraphs,
		"FORMCHAIN_SERVER_MAX_AMOUNT":  &cfg.Server.MaxAmount,
	}
}

// envStrings maps environment variables to string fields.
func envStrings(cfg *Config) map[string]*string {
	return map[string]*string{
		"FORMCHAIN_INPUT":       &cfg.InputPath,
		"FORMCHAIN_OUTPUT":      &cfg.OutputPath,
		"FORMCHAIN_FORMAT":      &cfg.Format,
		"FORMCHAIN_TERMINATORS": &cfg.Terminators,
		"FORMCHAIN_CACHE_PATH":  &cfg.Cache.Path,
		"FORMCHAIN_LOG_LEVEL":   &cfg.Log.Level,
		"FORMCHAIN_LOG_DIR":     &cfg.Log.Dir,
		"FORMCHAIN_LOG_FORMAT":  &cfg.Log.Format,
		"FORMCHAIN_SERVER_ADDR": &cfg.Server.Addr,
	}
}

// envBools maps environment variables to boolean fields.
func envBools(cfg *Config) map[string]*bool {
	return map[string]*bool{
		"FORMCHAIN_FORMATTED":     &cfg.Formatted,
		"FORMCHAIN_CACHE_ENABLED": &cfg.Cache.Enabled,
	}
}

func loadEnv(cfg *Config) error {
	for name, field := range envInts(cfg) {
		if v := os.Getenv(name); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, name, v)
			}
			*field = i
		}
	}
	for name, field := range envStrings(cfg) {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
	for name, field := range envBools(cfg) {
		if v := os.Getenv(name); v != "" {
			*field = v == "true" || v == "1"
		}
	}
	if v := os.Getenv("FORMCHAIN_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: FORMCHAIN_SEED=%q is not an unsigned integer", ErrInvalidConfig, v)
		}
		cfg.Seed = seed
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), describe(fe)))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// Search returns the search configuration.
func (c Config) Search() search.Config {
	return search.Config{
		MinOrder:         c.MinOrder,
		MaxOrder:         c.MaxOrder,
		DistortionFactor: c.DistortionFactor,
		Forks:            c.MaxTries,
		MinCoherence:     c.MinCoherence,
		ForkStepBudget:   c.ForkStepBudget,
		Parallelism:      c.Parallelism,
		OutputAmount:     c.OutputAmount,
	}
}

// Corpus returns the training options.
func (c Config) Corpus() corpus.Options {
	return corpus.Options{
		MaxOrder:    c.MaxOrder,
		FormOrder:   c.FormOrder,
		Terminators: c.Terminators,
	}
}
