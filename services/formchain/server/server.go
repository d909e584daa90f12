// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes generation over HTTP.
//
// One trained corpus is loaded at startup and shared read-only; every
// request runs its own search orchestrator.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/formchain/services/formchain/config"
	"github.com/AleutianAI/formchain/services/formchain/corpus"
	"github.com/AleutianAI/formchain/services/formchain/render"
	"github.com/AleutianAI/formchain/services/formchain/search"
	"github.com/AleutianAI/formchain/services/formchain/telemetry"
)

const serviceName = "formchain"

// GenerateRequest is the body of POST /v1/formchain/generate.
type GenerateRequest struct {
	// Amount overrides the configured output amount.
	Amount int `json:"amount" binding:"omitempty,min=1"`

	// Format is "plain" or "html". Empty means plain.
	Format string `json:"format" binding:"omitempty,oneof=plain html"`

	// Seed fixes the random source. Zero picks one.
	Seed uint64 `json:"seed"`

	// Formatted overrides the configured title and chapter setting.
	Formatted *bool `json:"formatted"`
}

// GenerateResponse is the result of a generation.
type GenerateResponse struct {
	RunID    string `json:"run_id"`
	Seed     uint64 `json:"seed"`
	Text     string `json:"text"`
	Segments int    `json:"segments"`
	Symbols  int    `json:"symbols"`
}

// Server serves generation requests.
//
// Thread Safety: Safe for concurrent use. Requests share the corpus and
// nothing else.
type Server struct {
	trained *corpus.Trained
	cfg     config.Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	router  *gin.Engine
}

// New creates a server and its routes.
//
// Inputs:
//   - trained: The corpus to generate from.
//   - cfg: Run configuration; request fields override parts of it.
//   - logger: Logger (nil selects slog.Default()).
//   - metrics: Metrics sink (nil disables recording).
func New(trained *corpus.Trained, cfg config.Config, logger *slog.Logger, metrics *telemetry.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		trained: trained,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		router:  gin.New(),
	}
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(serviceName))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	if h := telemetry.MetricsHandler(); h != nil {
		s.router.GET("/metrics", gin.WrapH(h))
	}
	v1 := s.router.Group("/v1/formchain")
	{
		v1.GET("/health", s.handleHealth)
		v1.GET("/stats", s.handleStats)
		v1.POST("/generate", s.handleGenerate)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("formchain server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("formchain server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"fingerprint": s.trained.Fingerprint,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.trained.Stats())
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Amount > s.cfg.Server.MaxAmount {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("amount %d exceeds limit %d", req.Amount, s.cfg.Server.MaxAmount),
		})
		return
	}

	resp, err := s.generate(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, search.ErrNoQualifyingFork) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error(), "run_id": resp.RunID})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	resp := GenerateResponse{RunID: uuid.NewString(), Seed: req.Seed}
	if resp.Seed == 0 {
		resp.Seed = rand.Uint64()
	}
	logger := telemetry.LoggerWithTrace(ctx, s.logger).With(slog.String("run_id", resp.RunID))

	searchCfg := s.cfg.Search()
	if req.Amount > 0 {
		searchCfg.OutputAmount = req.Amount
	}
	formatted := s.cfg.Formatted
	if req.Formatted != nil {
		formatted = *req.Formatted
	}

	rng := rand.New(rand.NewPCG(resp.Seed, resp.Seed^0x9e3779b97f4a7c15))
	orch, err := search.New(s.trained, searchCfg, rng,
		search.WithLogger(logger),
		search.WithMetrics(s.metrics),
		search.WithTracer(search.NewTracer(logger, s.cfg.Telemetry.Enabled())),
	)
	if err != nil {
		return resp, err
	}
	triples, err := orch.Run(ctx)
	if err != nil {
		return resp, err
	}

	opts := render.Options{}
	if formatted {
		opts = render.Options{Title: true, ChapterParagraphs: s.cfg.ChapterParagraphs}
	}
	doc := render.Compose(triples, opts, rng)

	var buf bytes.Buffer
	format := req.Format
	if format == "" {
		format = render.FormatPlain
	}
	renderer, err := render.New(format, &buf, s.cfg.MinOrder, s.cfg.MaxOrder)
	if err != nil {
		return resp, err
	}
	if err := renderer.Render(&buf, doc); err != nil {
		return resp, err
	}

	resp.Text = buf.String()
	resp.Segments = orch.Segments()
	resp.Symbols = len(triples)
	return resp, nil
}
