// Package logging wraps log/slog with the request-scoped fields pointlab
// attaches to every log line.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger wraps slog.Logger with request-aware helpers.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with JSON output at info level.
func New() *Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a new Logger with JSON output to the provided writer.
func NewWithWriter(w io.Writer) *Logger {
	return NewWithLevel(w, slog.LevelInfo)
}

// NewWithLevel creates a new Logger with JSON output at the given level.
func NewWithLevel(w io.Writer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{Logger: slog.New(handler)}
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard)
}

// With returns a new logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Request describes one HTTP request in flight. Middleware creates it and
// logs it once the handler returns; handlers add clustering time to it.
type Request struct {
	ID       string
	Session  string
	Endpoint string
	Start    time.Time

	mu          sync.Mutex
	clusterTime time.Duration
	clusterRuns int
}

// AddClusterTime records time spent inside the clustering engine. Sweeps call
// it once per k.
func (r *Request) AddClusterTime(d time.Duration) {
	r.mu.Lock()
	r.clusterTime += d
	r.clusterRuns++
	r.mu.Unlock()
}

// ClusterTime returns the accumulated engine time and number of runs.
func (r *Request) ClusterTime() (time.Duration, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clusterTime, r.clusterRuns
}

// Elapsed returns the time since the request started, or zero if Start is unset.
func (r *Request) Elapsed() time.Duration {
	if r.Start.IsZero() {
		return 0
	}
	return time.Since(r.Start)
}

type requestKey struct{}

// NewContext returns a context carrying req.
func NewContext(ctx context.Context, req *Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// FromContext returns the request stored in ctx, or nil.
func FromContext(ctx context.Context) *Request {
	req, _ := ctx.Value(requestKey{}).(*Request)
	return req
}

// WithContext returns a logger tagged with the identity of the request in
// ctx. Contexts without a request return l unchanged.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	req := FromContext(ctx)
	if req == nil {
		return l
	}
	return &Logger{Logger: l.Logger.With(identity(req)...)}
}

// WithRequest returns a logger carrying the request identity plus its timing.
func (l *Logger) WithRequest(req *Request) *Logger {
	attrs := identity(req)
	if elapsed := req.Elapsed(); elapsed > 0 {
		attrs = append(attrs, slog.Float64("server_total_ms", ms(elapsed)))
	}
	if d, runs := req.ClusterTime(); runs > 0 {
		attrs = append(attrs,
			slog.Float64("cluster_execution_ms", ms(d)),
			slog.Int("cluster_runs", runs),
		)
	}
	return &Logger{Logger: l.Logger.With(attrs...)}
}

func identity(req *Request) []any {
	attrs := make([]any, 0, 6)
	if req.ID != "" {
		attrs = append(attrs, slog.String("request_id", req.ID))
	}
	if req.Session != "" {
		attrs = append(attrs, slog.String("session", req.Session))
	}
	if req.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", req.Endpoint))
	}
	return attrs
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
