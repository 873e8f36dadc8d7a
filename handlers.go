package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	maxSubmissionBytes  = 4 * 1024
)

type healthCheckResponse struct {
	Ok        bool   `json:"ok"`
	Renderer  string `json:"renderer"`
	MagickBin string `json:"magickBin,omitempty"`
	Error     string `json:"error,omitempty"`
}

func submitHandler(bridge *Bridge, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Requiring JSON forces a CORS preflight for cross-site pages.
		if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
			writeJSON(w, log, http.StatusUnsupportedMediaType, Result{Error: "content type must be application/json"})
			return
		}

		var sub CharacterSubmission
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes)).Decode(&sub); err != nil {
			writeJSON(w, log, http.StatusBadRequest, Result{Error: "invalid request body"})
			return
		}

		res := bridge.Submit(r.Context(), sub)
		writeJSON(w, log, resultStatus(res), res)
	}
}

func resultStatus(res Result) int {
	switch err := res.Err(); {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidSubmission):
		return http.StatusBadRequest
	case errors.Is(err, ErrToolNotFound):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func historyHandler(store *HistoryStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		entries, err := store.Recent(r.Context(), limit)
		if err != nil {
			log.Error("history query failed", "error", err)
			http.Error(w, "Failed to query history", http.StatusInternalServerError)
			return
		}
		writeJSON(w, log, http.StatusOK, entries)
	}
}

func healthCheckHandler(cfg AppConfig, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthCheckResponse{Ok: true, Renderer: cfg.Renderer}
		if cfg.Renderer == rendererMagick {
			path, err := resolveTool(cfg.MagickBin)
			resp.MagickBin = path
			if err != nil {
				resp.Ok = false
				resp.Error = err.Error()
			}
		}
		status := http.StatusOK
		if !resp.Ok {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, log, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to encode response", "error", err)
	}
}
