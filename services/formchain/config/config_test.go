// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.MinOrder)
	assert.Equal(t, 7, cfg.MaxOrder)
	assert.Equal(t, 8, cfg.MaxTries)
	assert.Equal(t, 2000, cfg.OutputAmount)
	assert.False(t, cfg.Formatted)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().MaxOrder, cfg.MaxOrder)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "formchain.yaml", `
input_path: alice.txt
min_order: 2
max_order: 5
max_tries: 3
format: html
formatted: true
chapter_paragraphs: 12
cache:
  enabled: true
  path: /tmp/cache
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice.txt", cfg.InputPath)
	assert.Equal(t, 2, cfg.MinOrder)
	assert.Equal(t, 5, cfg.MaxOrder)
	assert.Equal(t, 3, cfg.MaxTries)
	assert.Equal(t, "html", cfg.Format)
	assert.True(t, cfg.Formatted)
	assert.Equal(t, 12, cfg.ChapterParagraphs)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched fields keep defaults.
	assert.Equal(t, 400, cfg.ForkStepBudget)
}

func TestLoad_JSONFallback(t *testing.T) {
	// JSON documents load through the same path as YAML.
	path := writeFile(t, "formchain.json", "{\n\t\"max_order\": 6,\n\t\"seed\": 99\n}")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.MaxOrder)
	assert.Equal(t, uint64(99), cfg.Seed)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "formchain.yaml", "max_order: 5\noutput_amount: 100\n")
	t.Setenv("FORMCHAIN_MAX_ORDER", "6")
	t.Setenv("FORMCHAIN_FORMAT", "plain")
	t.Setenv("FORMCHAIN_FORMATTED", "1")
	t.Setenv("FORMCHAIN_SEED", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.MaxOrder)
	assert.Equal(t, 100, cfg.OutputAmount)
	assert.Equal(t, "plain", cfg.Format)
	assert.True(t, cfg.Formatted)
	assert.Equal(t, uint64(7), cfg.Seed)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("FORMCHAIN_MAX_TRIES", "many")
	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_BadFile(t *testing.T) {
	path := writeFile(t, "broken.yaml", "max_order: [1, 2\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"min above max", func(c *Config) { c.MinOrder, c.MaxOrder = 5, 4 }},
		{"zero min order", func(c *Config) { c.MinOrder = 0 }},
		{"form order too small", func(c *Config) { c.FormOrder = 1 }},
		{"zero distortion", func(c *Config) { c.DistortionFactor = 0 }},
		{"negative tries", func(c *Config) { c.MaxTries = -1 }},
		{"unknown format", func(c *Config) { c.Format = "pdf" }},
		{"zero budget", func(c *Config) { c.ForkStepBudget = 0 }},
		{"cache without path", func(c *Config) { c.Cache = CacheConfig{Enabled: true} }},
		{"bad exporter", func(c *Config) { c.Telemetry.TraceExporter = "zipkin" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"no terminators", func(c *Config) { c.Terminators = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := Default()
	cfg.MaxTries = 0
	assert.NoError(t, cfg.Validate(), "zero forks is a runtime error, not a config error")
}

func TestConversions(t *testing.T) {
	cfg := Default()
	s := cfg.Search()
	assert.Equal(t, cfg.MaxTries, s.Forks)
	assert.Equal(t, cfg.MinCoherence, s.MinCoherence)
	assert.Equal(t, cfg.MinOrder, s.Generator().MinOrder)

	c := cfg.Corpus()
	assert.Equal(t, cfg.FormOrder, c.FormOrder)
	assert.Equal(t, ".!?", c.Terminators)
}
