// Package api serves the clustering engine, point sessions and the run
// archive over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/pointlab/pointlab/internal/archive"
	"github.com/pointlab/pointlab/internal/config"
	"github.com/pointlab/pointlab/internal/logging"
	"github.com/pointlab/pointlab/internal/palette"
	"github.com/pointlab/pointlab/internal/session"
)

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		return gzip.NewWriter(nil)
	},
}

type gzipResponseWriter struct {
	http.ResponseWriter
	gz *gzip.Writer
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.gz.Write(b)
}

type Router struct {
	cfg      *config.Config
	mux      *http.ServeMux
	handler  http.Handler
	logger   *logging.Logger
	sessions *session.Manager
	archive  *archive.Archive
	palette  *palette.Palette
	limiter  *rate.Limiter
}

func NewRouter(cfg *config.Config) *Router {
	return NewRouterWithLogger(cfg, nil)
}

func NewRouterWithLogger(cfg *config.Config, logger *logging.Logger) *Router {
	return NewRouterWithArchive(cfg, logger, nil)
}

// NewRouterWithArchive creates a Router that persists runs to arc. A nil
// archive disables the /v1/runs endpoints and the save flag.
func NewRouterWithArchive(cfg *config.Config, logger *logging.Logger, arc *archive.Archive) *Router {
	if logger == nil {
		logger = logging.New()
	}
	r := &Router{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: logger,
		sessions: session.NewManager(session.Config{
			MaxSessions:         cfg.Sessions.GetMaxSessions(),
			MaxPointsPerSession: cfg.Sessions.GetMaxPointsPerSession(),
			Bounds: session.Bounds{
				Width:  cfg.Sessions.CanvasWidth,
				Height: cfg.Sessions.CanvasHeight,
			},
		}),
		archive: arc,
		palette: palette.Default(),
	}
	if cfg.Limits.ClusterRPS > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.Limits.ClusterRPS), cfg.Limits.GetClusterBurst())
	}

	r.mux.HandleFunc("GET /health", r.handleHealth)
	r.mux.HandleFunc("GET /metrics", r.handleMetrics)
	r.mux.HandleFunc("POST /v1/cluster", r.authMiddleware(r.rateLimitMiddleware(r.clusterTimeoutMiddleware(r.handleCluster))))
	r.mux.HandleFunc("POST /v1/sweep", r.authMiddleware(r.rateLimitMiddleware(r.clusterTimeoutMiddleware(r.handleSweep))))
	r.mux.HandleFunc("GET /v1/sessions", r.authMiddleware(r.handleListSessions))
	r.mux.HandleFunc("GET /v1/sessions/{session}", r.authMiddleware(r.handleGetSession))
	r.mux.HandleFunc("DELETE /v1/sessions/{session}", r.authMiddleware(r.handleDeleteSession))
	r.mux.HandleFunc("PUT /v1/sessions/{session}/points", r.authMiddleware(r.handleAddPoints))
	r.mux.HandleFunc("POST /v1/sessions/{session}/cluster", r.authMiddleware(r.rateLimitMiddleware(r.clusterTimeoutMiddleware(r.handleClusterSession))))
	r.mux.HandleFunc("GET /v1/runs", r.authMiddleware(r.requireArchive(r.handleListRuns)))
	r.mux.HandleFunc("GET /v1/runs/{id}", r.authMiddleware(r.requireArchive(r.handleGetRun)))
	r.mux.HandleFunc("DELETE /v1/runs/{id}", r.authMiddleware(r.requireArchive(r.handleDeleteRun)))
	r.mux.HandleFunc("GET /v1/runs/{id}/clusters/{label}", r.authMiddleware(r.requireArchive(r.handleRunCluster)))

	r.handler = logging.Middleware(logger)(http.HandlerFunc(r.serve))
	return r
}

// Sessions exposes the session manager.
func (r *Router) Sessions() *session.Manager {
	return r.sessions
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// serve applies body limits and content encodings before dispatching.
func (r *Router) serve(w http.ResponseWriter, req *http.Request) {
	maxBody := r.cfg.Limits.MaxBodyBytes()
	if req.ContentLength > maxBody {
		r.writeAPIError(w, ErrPayloadTooLarge(fmt.Sprintf("request body exceeds %d bytes", maxBody)))
		return
	}

	req.Body = http.MaxBytesReader(w, req.Body, maxBody)
	body, err := r.decompressBody(req)
	if err != nil {
		r.writeAPIError(w, ErrBadRequest(err.Error()))
		return
	}
	if body != req.Body {
		// the cap applies to the decoded stream too
		req.Body = http.MaxBytesReader(w, body, maxBody)
	}

	// promhttp negotiates its own compression
	if req.URL.Path != "/metrics" && strings.Contains(req.Header.Get("Accept-Encoding"), "gzip") {
		gz := gzipWriterPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			gz.Close()
			gzipWriterPool.Put(gz)
		}()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
		r.mux.ServeHTTP(&gzipResponseWriter{ResponseWriter: w, gz: gz}, req)
		return
	}

	r.mux.ServeHTTP(w, req)
}

type zstdReadCloser struct {
	dec  *zstd.Decoder
	body io.Closer
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.body.Close()
}

func (r *Router) decompressBody(req *http.Request) (io.ReadCloser, error) {
	switch req.Header.Get("Content-Encoding") {
	case "", "identity":
		return req.Body, nil
	case "gzip":
		gz, err := gzip.NewReader(req.Body)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		return gz, nil
	case "zstd":
		dec, err := zstd.NewReader(req.Body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("invalid zstd body: %w", err)
		}
		return &zstdReadCloser{dec: dec, body: req.Body}, nil
	default:
		return nil, fmt.Errorf("unsupported Content-Encoding %q", req.Header.Get("Content-Encoding"))
	}
}

func (r *Router) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.AuthToken == "" {
			next(w, req)
			return
		}

		auth := req.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			r.writeAPIError(w, ErrUnauthorized("missing or invalid Authorization header"))
			return
		}
		if strings.TrimPrefix(auth, "Bearer ") != r.cfg.AuthToken {
			r.writeAPIError(w, ErrUnauthorized("invalid token"))
			return
		}

		next(w, req)
	}
}

func (r *Router) rateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.limiter != nil && !r.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			r.writeAPIError(w, ErrRateLimited())
			return
		}
		next(w, req)
	}
}

// clusterTimeoutMiddleware bounds the time a clustering request may run.
func (r *Router) clusterTimeoutMiddleware(next http.HandlerFunc) http.HandlerFunc {
	timeout := time.Duration(r.cfg.Timeout.GetClusterTimeout()) * time.Millisecond
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), timeout)
		defer cancel()
		next(w, req.WithContext(ctx))
	}
}

func (r *Router) requireArchive(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.archive == nil {
			r.writeAPIError(w, ErrArchiveDisabled())
			return
		}
		next(w, req)
	}
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	r.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) handleMetrics(w http.ResponseWriter, req *http.Request) {
	promhttp.Handler().ServeHTTP(w, req)
}

func (r *Router) decodeJSON(req *http.Request, v interface{}) *APIError {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return ErrPayloadTooLarge(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		}
		return ErrInvalidJSON()
	}
	return nil
}

// encodeFailure is sent when a response body cannot be encoded.
var encodeFailure = []byte(`{"error":"failed to encode response","status":"error"}` + "\n")

// writeJSON encodes data before touching the header so that an encoding
// failure still reaches the client as a 500.
func (r *Router) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		r.logger.Error("encode response", "error", err, "status", status)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write(encodeFailure)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func (r *Router) writeError(w http.ResponseWriter, status int, message string) {
	r.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  message,
	})
}

func (r *Router) writeAPIError(w http.ResponseWriter, err *APIError) {
	r.writeError(w, err.StatusCode, err.Message)
}

// writeErr maps a domain error and writes it.
func (r *Router) writeErr(w http.ResponseWriter, req *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		r.logger.WithContext(req.Context()).Error("request failed", "error", err, "status", apiErr.StatusCode)
	}
	r.writeAPIError(w, apiErr)
}
