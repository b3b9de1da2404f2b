package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/musicarr/internal/logctx"
)

const (
	maxRequestSize = 1 << 20 // 1MB

	errNoValidURLs = "No valid list of URLs provided"
)

// Downloader turns one submitted URL into its result string.
type Downloader interface {
	Download(ctx context.Context, url any) string
}

type HealthChecker interface {
	Healthy() bool
}

type DownloadRequest struct {
	URLs any `json:"urls"`
}

type Result struct {
	URL    any    `json:"url"`
	Output string `json:"output"`
}

type DownloadResponse struct {
	Results []Result `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type QobuzHandler struct {
	downloader Downloader
	health     HealthChecker
}

// NewQobuzHandler creates the handler for the download and health endpoints.
func NewQobuzHandler(d Downloader, health HealthChecker) *QobuzHandler {
	return &QobuzHandler{downloader: d, health: health}
}

func (h *QobuzHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/qobuz", h.HandleDownload)
	r.Get("/health", h.HandleHealth)

	return r
}

// HandleDownload downloads every URL of the batch in order and reports one result per URL.
func (h *QobuzHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	var req DownloadRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize))
	dec.UseNumber()

	if err := dec.Decode(&req); err != nil {
		logger.WarnContext(ctx, "failed to decode request", "err", err)
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: errNoValidURLs})

		return
	}

	urls, ok := req.URLs.([]any)
	if !ok {
		logger.WarnContext(ctx, "request has no list of urls")
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: errNoValidURLs})

		return
	}

	logger.InfoContext(ctx, "received download request", "urls", len(urls))

	// The batch always runs to completion, even if the caller goes away.
	dctx := context.WithoutCancel(ctx)

	results := make([]Result, 0, len(urls))
	for _, u := range urls {
		results = append(results, Result{URL: u, Output: h.downloader.Download(dctx, u)})
	}

	writeJSON(ctx, w, http.StatusOK, DownloadResponse{Results: results})
}

func (h *QobuzHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if !h.health.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Unhealthy"))

		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Healthy"))
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "err", err)
	}
}
