// Package handlers serves the JSON command API.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/darkpattern-remover/internal/browser"
	"github.com/Rorqualx/darkpattern-remover/internal/cleaner"
	"github.com/Rorqualx/darkpattern-remover/internal/config"
	"github.com/Rorqualx/darkpattern-remover/internal/metrics"
	"github.com/Rorqualx/darkpattern-remover/internal/security"
	"github.com/Rorqualx/darkpattern-remover/internal/types"
	"github.com/Rorqualx/darkpattern-remover/pkg/version"
)

// requestOverhead is the body allowance on top of MaxHTMLBytes for the
// rest of the JSON envelope.
const requestOverhead = 64 << 10

// Handler handles all API requests.
type Handler struct {
	pool    *browser.Pool
	cleaner *cleaner.Cleaner
	config  *config.Config

	// validateURL is replaced in tests to avoid DNS lookups.
	validateURL func(r *http.Request, rawURL string) error
}

// New creates a new Handler. pool may be nil when only static cleaning is
// served.
func New(pool *browser.Pool, c *cleaner.Cleaner, cfg *config.Config) *Handler {
	return &Handler{
		pool:    pool,
		cleaner: c,
		config:  cfg,
		validateURL: func(r *http.Request, rawURL string) error {
			return security.ValidateURL(r.Context(), rawURL)
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/health":
		h.handleHealth(w, startTime)
	case r.URL.Path != "/v1" && r.URL.Path != "/":
		h.writeErrorWithStatus(w, http.StatusNotFound, "Not found", startTime)
	case r.Method != http.MethodPost:
		h.writeError(w, "Method not allowed", startTime)
	default:
		h.handleAPI(w, r, startTime)
	}
}

func (h *Handler) handleAPI(w http.ResponseWriter, r *http.Request, startTime time.Time) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.config.MaxHTMLBytes)+requestOverhead)
	defer r.Body.Close()

	buf := getBuffer()
	defer putBuffer(buf)

	if _, err := io.Copy(buf, r.Body); err != nil {
		log.Warn().Err(err).Msg("Failed to read request body")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, "Request body too large", startTime)
			return
		}
		h.writeError(w, "Failed to read request", startTime)
		return
	}

	var req types.Request
	if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request")
		h.writeError(w, "Invalid JSON request", startTime)
		return
	}

	log.Info().
		Str("cmd", req.Cmd).
		Str("url", security.RedactURL(req.URL)).
		Str("host", req.Host).
		Int("html_bytes", len(req.HTML)).
		Msg("Request received")

	h.routeCommand(w, r, &req, startTime)
}

// handleHealth returns service health information.
func (h *Handler) handleHealth(w http.ResponseWriter, startTime time.Time) {
	msg := "Dark pattern remover is ready"
	if h.pool == nil {
		msg = "Dark pattern remover is ready (static mode)"
	}
	h.writeJSONResponse(w, http.StatusOK, types.Response{
		Status:    types.StatusOK,
		Message:   msg,
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	})
}

func (h *Handler) ok(message string, startTime time.Time) *types.Response {
	return &types.Response{
		Status:    types.StatusOK,
		Message:   message,
		StartTime: startTime.UnixMilli(),
		Version:   version.Full(),
	}
}

func (h *Handler) timeout(req *types.Request) time.Duration {
	timeout := h.config.DefaultTimeout
	if req.MaxTimeout > 0 {
		timeout = time.Duration(req.MaxTimeout) * time.Millisecond
		if timeout > h.config.MaxTimeout {
			timeout = h.config.MaxTimeout
		}
	}
	return timeout
}

func solution(res *cleaner.Result) *types.Solution {
	sol := &types.Solution{
		URL:    res.URL,
		HTML:   res.HTML,
		Report: res.Report,
	}
	if len(res.Screenshot) > 0 {
		sol.Screenshot = base64.StdEncoding.EncodeToString(res.Screenshot)
	}
	if res.Truncated {
		truncated := true
		sol.HTMLTruncated = &truncated
	}
	return sol
}

// writeError writes an error envelope. Errors go out with HTTP 200 so that
// clients only need to inspect the body.
func (h *Handler) writeError(w http.ResponseWriter, message string, startTime time.Time) {
	h.writeErrorWithStatus(w, http.StatusOK, message, startTime)
}

func (h *Handler) writeErrorWithStatus(w http.ResponseWriter, statusCode int, message string, startTime time.Time) {
	h.writeJSONResponse(w, statusCode, types.Response{
		Status:    types.StatusError,
		Message:   message,
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	})
}

// writeJSONResponse encodes into a buffer first so that an encoding error
// never leaves a partial body behind.
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, resp any) {
	buf := getResponseBuffer()
	defer putResponseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"internal encoding error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	_, _ = w.Write(buf.Bytes())
}

func recordRequest(cmd, status string, startTime time.Time) {
	metrics.RecordRequest(cmd, status, time.Since(startTime))
}
