// Package objectstore stores opaque blobs under string keys. The archive
// keeps clustering run records here; backends are in-memory, local
// filesystem and S3-compatible services.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrAlreadyExists  = errors.New("object already exists")
	ErrChecksumFailed = errors.New("checksum verification failed")
	ErrUnknownType    = errors.New("unknown object store type")
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
}

type ListResult struct {
	Objects     []ObjectInfo
	NextMarker  string
	IsTruncated bool
}

// PutOptions tune a write. Checksum is the base64 sha256 of the body; a
// mismatch fails the write with ErrChecksumFailed. IfAbsent refuses to
// overwrite an existing key.
type PutOptions struct {
	ContentType string
	Checksum    string
	IfAbsent    bool
}

type ListOptions struct {
	Prefix  string
	Marker  string
	MaxKeys int
}

type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	Put(ctx context.Context, key string, body io.Reader, size int64, opts *PutOptions) (*ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, opts *ListOptions) (*ListResult, error)
}

// Config selects and configures a backend.
type Config struct {
	Type      string // memory, fs or s3
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	RootPath  string
}

// New builds the configured backend wrapped with metrics.
func New(ctx context.Context, cfg Config) (Store, error) {
	var (
		inner Store
		err   error
	)
	switch cfg.Type {
	case "", "memory":
		inner = NewMemoryStore()
	case "fs":
		inner, err = NewFSStore(cfg.RootPath)
	case "s3":
		var s3 *S3Store
		s3, err = NewS3Store(S3Config{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
		if err == nil {
			err = s3.EnsureBucket(ctx)
		}
		inner = s3
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return NewInstrumentedStore(inner), nil
}

func listLimit(opts *ListOptions) (prefix, marker string, maxKeys int) {
	maxKeys = 1000
	if opts != nil {
		prefix = opts.Prefix
		marker = opts.Marker
		if opts.MaxKeys > 0 {
			maxKeys = opts.MaxKeys
		}
	}
	return prefix, marker, maxKeys
}
