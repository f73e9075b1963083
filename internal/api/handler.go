// Package api exposes the analyzer over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"solana-counterparty-lab/internal/domain"
	"solana-counterparty-lab/internal/observability"
)

const (
	// defaultRunsLimit caps /api/runs responses when no limit is given.
	defaultRunsLimit = 20

	readyTimeout = 5 * time.Second
)

// Analyzer is the part of the orchestrator served over HTTP.
type Analyzer interface {
	Analyze(ctx context.Context, address string) *domain.AnalysisResult
	CacheStats() domain.CacheStats
	Runs(ctx context.Context, address string, limit int) ([]*domain.AnalysisRun, error)
}

// Handler serves the analysis API.
type Handler struct {
	analyzer Analyzer
	logger   *log.Logger
	mux      *http.ServeMux
	ready    func(ctx context.Context) error
}

// NewHandler creates a Handler with all routes registered.
func NewHandler(analyzer Analyzer, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	h := &Handler{
		analyzer: analyzer,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /api/analyze/{address}", h.handleAnalyze)
	h.mux.HandleFunc("GET /api/cache/stats", h.handleCacheStats)
	h.mux.HandleFunc("GET /api/runs/{address}", h.handleRuns)

	// Health check
	h.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Readiness: upstream reachable
	h.mux.HandleFunc("/ready", h.handleReady)

	// Prometheus metrics
	h.mux.Handle("/metrics", observability.Handler())

	return h
}

// WithReadinessProbe sets the check behind /ready, typically an upstream ping.
func (h *Handler) WithReadinessProbe(probe func(ctx context.Context) error) *Handler {
	h.ready = probe
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleAnalyze always answers with the result payload. The status code
// mirrors the payload: 400 for a malformed address, 502 when the ledger
// provider could not be reached.
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	result := h.analyzer.Analyze(r.Context(), r.PathValue("address"))

	status := http.StatusOK
	switch {
	case !result.IsValid:
		status = http.StatusBadRequest
	case result.Failed():
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, result)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.logger.Printf("readiness probe failed: %v", err)
			http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.analyzer.CacheStats())
}

// RunResponse is one entry of the /api/runs response.
type RunResponse struct {
	RunID            string `json:"runId"`
	ProviderTier     string `json:"providerTier"`
	StartedAt        int64  `json:"startedAt"`
	DurationMs       int64  `json:"durationMs"`
	SignaturesListed int    `json:"signaturesListed"`
	RecordsFetched   int    `json:"recordsFetched"`
	RecordsSkipped   int    `json:"recordsSkipped"`
	BatchesFailed    int    `json:"batchesFailed"`
	RateLimitHits    int    `json:"rateLimitHits"`
	RelatedAccounts  int    `json:"relatedAccounts"`
	Status           string `json:"status"`
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := h.analyzer.Runs(r.Context(), r.PathValue("address"), limit)
	if err != nil {
		h.logger.Printf("list runs: %v", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "run log unavailable"})
		return
	}

	// Run errors stay server-side; they can carry provider URLs.
	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, RunResponse{
			RunID:            run.RunID,
			ProviderTier:     run.ProviderTier,
			StartedAt:        run.StartedAt,
			DurationMs:       run.DurationMs,
			SignaturesListed: run.SignaturesListed,
			RecordsFetched:   run.RecordsFetched,
			RecordsSkipped:   run.RecordsSkipped,
			BatchesFailed:    run.BatchesFailed,
			RateLimitHits:    run.RateLimitHits,
			RelatedAccounts:  run.RelatedAccounts,
			Status:           run.Status,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Printf("encode response: %v", err)
	}
}
