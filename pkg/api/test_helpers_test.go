package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pointlab/pointlab/internal/archive"
	"github.com/pointlab/pointlab/internal/config"
	"github.com/pointlab/pointlab/internal/logging"
	"github.com/pointlab/pointlab/pkg/objectstore"
)

const testAuthToken = "test-token"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.AuthToken = testAuthToken
	return cfg
}

func addAuth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+testAuthToken)
}

// newTestRouter builds a router with a discarding logger and an in-memory
// archive.
func newTestRouter(t *testing.T, cfg *config.Config) *Router {
	t.Helper()
	arc, err := archive.New(objectstore.NewMemoryStore(), archive.CodecZstd, logging.Discard())
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	t.Cleanup(arc.Close)
	return NewRouterWithArchive(cfg, logging.Discard(), arc)
}

// newTestRouterWithStore is newTestRouter over a caller supplied store.
func newTestRouterWithStore(t *testing.T, cfg *config.Config, store objectstore.Store) *Router {
	t.Helper()
	arc, err := archive.New(store, archive.CodecZstd, logging.Discard())
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	t.Cleanup(arc.Close)
	return NewRouterWithArchive(cfg, logging.Discard(), arc)
}

// failingStore rejects every write.
type failingStore struct {
	*objectstore.MemoryStore
}

func (failingStore) Put(ctx context.Context, key string, body io.Reader, size int64, opts *objectstore.PutOptions) (*objectstore.ObjectInfo, error) {
	return nil, errors.New("disk full")
}

// do sends an authenticated JSON request and returns the recorder.
func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	addAuth(req)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	expectStatus(t, w, want)
	var body map[string]string
	decode(t, w, &body)
	if body["status"] != "error" || body["error"] == "" {
		t.Errorf("unexpected error envelope: %v", body)
	}
}

// twoGroups is two well separated pairs of points.
var twoGroups = [][]float64{{0, 0}, {0, 1}, {10, 10}, {10, 11}}
