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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/formchain/services/formchain/config"
	"github.com/AleutianAI/formchain/services/formchain/corpus"
	"github.com/AleutianAI/formchain/services/formchain/render"
	"github.com/AleutianAI/formchain/services/formchain/search"
	"github.com/AleutianAI/formchain/services/formchain/server"
)

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := setup(ctx, cmd, args)
	if err != nil {
		return err
	}
	defer rt.close()

	trained, err := rt.loadCorpus(ctx)
	if err != nil {
		return err
	}
	if rt.cfg.OutputPath == "" {
		return generate(ctx, rt, trained, cmd.OutOrStdout())
	}
	return generateToFile(ctx, rt, trained, rt.cfg.OutputPath)
}

// generateToFile writes to path. A failed close is reported when generation
// itself succeeded.
func generateToFile(ctx context.Context, rt *runtime, trained *corpus.Trained, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()
	return generate(ctx, rt, trained, f)
}

// generate runs one search and renders the result to out. Output produced
// before a failure is still written.
func generate(ctx context.Context, rt *runtime, trained *corpus.Trained, out io.Writer) error {
	seed := rt.cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger := rt.logger.With(slog.String("run_id", uuid.NewString()))
	logger.Info("Generating",
		slog.Uint64("seed", seed),
		slog.Int("amount", rt.cfg.OutputAmount),
		slog.Int("forks", rt.cfg.MaxTries))

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	orch, err := search.New(trained, rt.cfg.Search(), rng,
		search.WithLogger(logger),
		search.WithMetrics(rt.metrics),
		search.WithTracer(search.NewTracer(logger, rt.cfg.Telemetry.Enabled())),
	)
	if err != nil {
		return err
	}

	start := time.Now()
	triples, runErr := orch.Run(ctx)
	if runErr != nil && len(triples) == 0 {
		return runErr
	}

	if err := write(out, rt.cfg, triples, rng); err != nil {
		return err
	}
	logger.Info("Generation finished",
		slog.Int("symbols", len(triples)),
		slog.Int("segments", orch.Segments()),
		slog.Duration("elapsed", time.Since(start)))
	return runErr
}

func write(out io.Writer, cfg config.Config, triples []search.Triple, rng *rand.Rand) error {
	opts := render.Options{}
	if cfg.Formatted {
		opts = render.Options{Title: true, ChapterParagraphs: cfg.ChapterParagraphs}
	}
	doc := render.Compose(triples, opts, rng)
	renderer, err := render.New(cfg.Format, out, cfg.MinOrder, cfg.MaxOrder)
	if err != nil {
		return err
	}
	return renderer.Render(out, doc)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := setup(ctx, cmd, args)
	if err != nil {
		return err
	}
	defer rt.close()

	trained, err := rt.loadCorpus(ctx)
	if err != nil {
		return err
	}
	return printStats(cmd.OutOrStdout(), trained.Stats(), statsJSON)
}

func printStats(w io.Writer, stats corpus.Stats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Fprintf(w, "Fingerprint:        %s\n", stats.Fingerprint)
	fmt.Fprintf(w, "Symbols:            %d\n", stats.Symbols)
	fmt.Fprintf(w, "Sentences:          %d\n", stats.Sentences)
	fmt.Fprintf(w, "Sentence lengths:   %d\n", stats.SentenceLengths)
	fmt.Fprintf(w, "Paragraph lengths:  %d\n\n", stats.ParagraphLengths)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tORDER\tCONTEXTS\tUSAGES")
	for _, o := range stats.TextOrders {
		fmt.Fprintf(tw, "text\t%d\t%d\t%d\n", o.Order, o.Contexts, o.Usages)
	}
	for _, o := range stats.FormOrders {
		fmt.Fprintf(tw, "form\t%d\t%d\t%d\n", o.Order, o.Contexts, o.Usages)
	}
	return tw.Flush()
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := setup(ctx, cmd, args)
	if err != nil {
		return err
	}
	defer rt.close()

	trained, err := rt.loadCorpus(ctx)
	if err != nil {
		return err
	}
	srv := server.New(trained, rt.cfg, rt.logger, rt.metrics)
	rt.logger.Info("Serving", slog.String("addr", rt.cfg.Server.Addr))
	return srv.Run(ctx, rt.cfg.Server.Addr)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := setup(ctx, cmd, args)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.openStore(); err != nil {
		return err
	}
	fingerprints, err := rt.store.List(ctx)
	if err != nil {
		return err
	}
	for _, fp := range fingerprints {
		fmt.Fprintln(cmd.OutOrStdout(), fp)
	}
	return nil
}

func runCacheDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := setup(ctx, cmd, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.openStore(); err != nil {
		return err
	}
	var errs []error
	for _, fp := range args {
		if err := rt.store.Delete(ctx, fp); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", fp, err))
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), "deleted", fp)
	}
	return errors.Join(errs...)
}
