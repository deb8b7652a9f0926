package logging

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware tags each request with an ID (the client's X-Request-ID when
// present), stores a Request in the context and logs one line per request.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := &Request{
				ID:       r.Header.Get("X-Request-ID"),
				Session:  SessionFromPath(r.URL.Path),
				Endpoint: r.Method + " " + r.URL.Path,
				Start:    time.Now(),
			}
			if req.ID == "" {
				req.ID = uuid.NewString()
			}

			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			w.Header().Set("X-Request-ID", req.ID)

			next.ServeHTTP(rw, r.WithContext(NewContext(r.Context(), req)))

			logger.WithRequest(req).Info("request completed",
				"status", rw.status,
				"method", r.Method,
				"path", r.URL.Path,
			)
		})
	}
}

// SessionFromPath returns the session segment of a /v1/sessions/{session}
// path, or "" for any other path.
func SessionFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/v1/sessions/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}
