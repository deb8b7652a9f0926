package objectstore

import (
	"context"
	"io"
	"time"

	"github.com/pointlab/pointlab/internal/metrics"
)

// InstrumentedStore records per-operation counts and latency for a Store.
// New wraps every backend in one.
type InstrumentedStore struct {
	inner Store
}

func NewInstrumentedStore(inner Store) *InstrumentedStore {
	return &InstrumentedStore{inner: inner}
}

// Unwrap returns the wrapped backend.
func (s *InstrumentedStore) Unwrap() Store {
	return s.inner
}

// timed starts the clock for op; the returned func records the outcome.
func timed(op string) func(error) {
	start := time.Now()
	return func(err error) {
		metrics.ObserveObjectStoreOp(op, time.Since(start).Seconds(), err)
	}
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	done := timed("get")
	rc, info, err := s.inner.Get(ctx, key)
	done(err)
	return rc, info, err
}

func (s *InstrumentedStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	done := timed("head")
	info, err := s.inner.Head(ctx, key)
	done(err)
	return info, err
}

func (s *InstrumentedStore) Put(ctx context.Context, key string, body io.Reader, size int64, opts *PutOptions) (*ObjectInfo, error) {
	op := "put"
	if opts != nil && opts.IfAbsent {
		op = "put_if_absent"
	}
	done := timed(op)
	info, err := s.inner.Put(ctx, key, body, size, opts)
	done(err)
	return info, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	done := timed("delete")
	err := s.inner.Delete(ctx, key)
	done(err)
	return err
}

func (s *InstrumentedStore) List(ctx context.Context, opts *ListOptions) (*ListResult, error) {
	done := timed("list")
	res, err := s.inner.List(ctx, opts)
	done(err)
	return res, err
}
