// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/formchain/services/formchain/config"
	"github.com/AleutianAI/formchain/services/formchain/corpus"
)

const sampleText = "The cat sat on the mat. The dog ran to the park, and the cat ran too. A bird sang.\n" +
	"The sun rose over the hill. A cat slept; the dog barked! Did the bird fly away?\n" +
	"The mat was red. The park was green, and the hill was high.\n"

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.MinOrder = 2
	cfg.MaxOrder = 5
	cfg.FormOrder = 4
	cfg.MaxTries = 3
	cfg.MinCoherence = 3
	cfg.Parallelism = 2
	cfg.OutputAmount = 200
	cfg.Server.MaxAmount = 1000
	if mutate != nil {
		mutate(&cfg)
	}

	trained, err := corpus.NewTrainer(nil, nil).TrainNormalized(context.Background(), sampleText, cfg.Corpus())
	require.NoError(t, err)
	return New(trained, cfg, nil, nil)
}

func performRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reqBody bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&reqBody).Encode(body)
	}
	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	w := performRequest(s, http.MethodGet, "/v1/formchain/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Len(t, body["fingerprint"], 64)
}

func TestStats(t *testing.T) {
	s := newTestServer(t, nil)
	w := performRequest(s, http.MethodGet, "/v1/formchain/stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var stats corpus.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 8, stats.Sentences)
	assert.Len(t, stats.TextOrders, 5)
}

func TestGenerate_Plain(t *testing.T) {
	s := newTestServer(t, nil)
	w := performRequest(s, http.MethodPost, "/v1/formchain/generate", GenerateRequest{Amount: 120, Seed: 9})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	_, err := uuid.Parse(resp.RunID)
	assert.NoError(t, err)
	assert.Equal(t, uint64(9), resp.Seed)
	assert.GreaterOrEqual(t, resp.Symbols, 120)
	assert.Equal(t, resp.Symbols, utf8.RuneCountInString(resp.Text))
	assert.Positive(t, resp.Segments)
}

func TestGenerate_SeedIsReproducible(t *testing.T) {
	s := newTestServer(t, nil)
	req := GenerateRequest{Amount: 80, Seed: 1234}

	var a, b GenerateResponse
	require.NoError(t, json.Unmarshal(performRequest(s, http.MethodPost, "/v1/formchain/generate", req).Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(performRequest(s, http.MethodPost, "/v1/formchain/generate", req).Body.Bytes(), &b))

	assert.Equal(t, a.Text, b.Text)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestGenerate_HTMLFormatted(t *testing.T) {
	s := newTestServer(t, nil)
	formatted := true
	w := performRequest(s, http.MethodPost, "/v1/formchain/generate",
		GenerateRequest{Amount: 60, Seed: 3, Format: "html", Formatted: &formatted})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Text, `<meta charset="UTF-8">`))
	assert.Contains(t, resp.Text, "<h1>")
	assert.Contains(t, resp.Text, `<span class="order-`)
}

func TestGenerate_BadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	w := performRequest(s, http.MethodPost, "/v1/formchain/generate", GenerateRequest{Format: "pdf"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(s, http.MethodPost, "/v1/formchain/generate", GenerateRequest{Amount: 5000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/formchain/generate", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerate_NoForks(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.MaxTries = 0 })
	w := performRequest(s, http.MethodPost, "/v1/formchain/generate", GenerateRequest{Amount: 50})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "no qualifying fork")
}
