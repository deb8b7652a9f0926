package objectstore

import (
	"context"
	"os"
	"testing"
)

// TestS3Store runs the shared suite against a live S3-compatible endpoint
// such as a local MinIO.
func TestS3Store(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set, skipping S3 tests")
	}

	cfg := S3Config{
		Endpoint:  endpoint,
		Bucket:    os.Getenv("MINIO_BUCKET"),
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Region:    "us-east-1",
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "pointlab-test"
	}
	if cfg.AccessKey == "" {
		cfg.AccessKey = "minioadmin"
	}
	if cfg.SecretKey == "" {
		cfg.SecretKey = "minioadmin"
	}

	store, err := NewS3Store(cfg)
	if err != nil {
		t.Fatalf("failed to create S3 store: %v", err)
	}
	if err := store.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("failed to ensure bucket: %v", err)
	}

	runStoreTests(t, store)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	if _, err := NewS3Store(S3Config{Endpoint: "localhost:9000"}); err == nil {
		t.Error("expected an error without a bucket")
	}
}

func TestNewS3Store_StripsScheme(t *testing.T) {
	store, err := NewS3Store(S3Config{Endpoint: "https://s3.example.com", Bucket: "b"})
	if err != nil {
		t.Fatalf("NewS3Store failed: %v", err)
	}
	if got := store.client.EndpointURL(); got.Scheme != "https" || got.Host != "s3.example.com" {
		t.Errorf("unexpected endpoint %s", got)
	}
}
