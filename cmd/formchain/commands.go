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
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "formchain",
		Short: "Generate text that keeps the shape of its source",
		Long: `formchain trains character n-gram models on a text and generates new text,
searching over speculative continuations for the ones whose punctuation
skeleton best matches the source.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	generateCmd = &cobra.Command{
		Use:   "generate [input file]",
		Short: "Generate text from a training corpus",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runGenerate,
	}
	statsCmd = &cobra.Command{
		Use:   "stats [input file]",
		Short: "Print model statistics for a training corpus",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStats,
	}
	serveCmd = &cobra.Command{
		Use:   "serve [input file]",
		Short: "Serve generation over HTTP",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runServe,
	}
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage the trained-corpus cache",
	}
	cacheListCmd = &cobra.Command{
		Use:   "list",
		Short: "List cached corpus fingerprints",
		Args:  cobra.NoArgs,
		RunE:  runCacheList,
	}
	cacheDeleteCmd = &cobra.Command{
		Use:   "delete [fingerprint...]",
		Short: "Delete cached corpora",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCacheDelete,
	}

	configPath string
	statsJSON  bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML or JSON config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-dir", "", "Also write JSON logs to this directory")
	rootCmd.PersistentFlags().Bool("cache", false, "Cache trained corpora")
	rootCmd.PersistentFlags().String("cache-path", "", "Cache directory")

	for _, cmd := range []*cobra.Command{generateCmd, statsCmd, serveCmd} {
		addModelFlags(cmd)
	}

	f := generateCmd.Flags()
	f.StringP("output", "o", "", "Output file (default stdout)")
	f.IntP("amount", "n", 0, "Symbols to generate, seed included")
	f.Int("max-tries", 0, "Speculative forks per segment")
	f.Int("distortion-factor", 0, "Terminator reweighting strength")
	f.Int("min-coherence", 0, "Form order at which a fork qualifies")
	f.Int("fork-step-budget", 0, "Symbols a fork may produce without reaching a boundary")
	f.Int("parallelism", 0, "Forks run concurrently")
	f.Uint64("seed", 0, "Random seed (0 picks one)")
	f.Bool("formatted", false, "Add a title, author and chapters")
	f.String("format", "", "Output format: plain, html or terminal (default by destination)")
	f.Int("chapter-paragraphs", 0, "Paragraphs per chapter when formatted")

	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print JSON")

	s := serveCmd.Flags()
	s.String("addr", "", "Listen address")
	s.Int("max-tries", 0, "Speculative forks per segment")
	s.Int("parallelism", 0, "Forks run concurrently")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)
}

func addModelFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("input", "i", "", "Training text file")
	f.Int("min-order", 0, "Lowest generator order")
	f.Int("max-order", 0, "Highest generator order")
	f.Int("form-order", 0, "Highest form model order")
	f.String("terminators", "", "Sentence enders")
}
