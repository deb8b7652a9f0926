package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected listen addr :8080, got %s", cfg.ListenAddr)
	}
	if cfg.Cluster.DefaultIterations != 10 {
		t.Errorf("expected 10 default iterations, got %d", cfg.Cluster.DefaultIterations)
	}
	if cfg.Cluster.LearningRate != 0.01 {
		t.Errorf("expected learning rate 0.01, got %v", cfg.Cluster.LearningRate)
	}
	if cfg.ObjectStore.Type != "memory" {
		t.Errorf("expected memory object store, got %s", cfg.ObjectStore.Type)
	}
	if cfg.Archive.Enabled {
		t.Error("expected archive disabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("POINTLAB_LISTEN_ADDR", ":9090")
	t.Setenv("POINTLAB_AUTH_TOKEN", "secret-token")
	t.Setenv("POINTLAB_CLUSTER_DEFAULT_ITERATIONS", "50")
	t.Setenv("POINTLAB_CLUSTER_LEARNING_RATE", "0.25")
	t.Setenv("POINTLAB_CLUSTER_EMPTY_POLICY", "reseed")
	t.Setenv("POINTLAB_SESSIONS_CANVAS", "500x400")
	t.Setenv("POINTLAB_ARCHIVE_ENABLED", "1")
	t.Setenv("POINTLAB_ARCHIVE_COMPRESSION", "lz4")
	t.Setenv("POINTLAB_ARCHIVE_CACHE_MB", "16")
	t.Setenv("POINTLAB_LIMITS_CLUSTER_RPS", "2.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("expected listen addr :9090, got %s", cfg.ListenAddr)
	}
	if cfg.AuthToken != "secret-token" {
		t.Errorf("expected auth token secret-token, got %s", cfg.AuthToken)
	}
	if cfg.Cluster.DefaultIterations != 50 {
		t.Errorf("expected 50 iterations, got %d", cfg.Cluster.DefaultIterations)
	}
	if cfg.Cluster.LearningRate != 0.25 {
		t.Errorf("expected learning rate 0.25, got %v", cfg.Cluster.LearningRate)
	}
	if cfg.Cluster.EmptyPolicy != "reseed" {
		t.Errorf("expected reseed policy, got %s", cfg.Cluster.EmptyPolicy)
	}
	if cfg.Sessions.CanvasWidth != 500 || cfg.Sessions.CanvasHeight != 400 {
		t.Errorf("expected 500x400 canvas, got %vx%v", cfg.Sessions.CanvasWidth, cfg.Sessions.CanvasHeight)
	}
	if !cfg.Archive.Enabled {
		t.Error("expected archive enabled")
	}
	if cfg.Archive.GetCompression() != CompressionLZ4 {
		t.Errorf("expected lz4, got %s", cfg.Archive.GetCompression())
	}
	if cfg.Archive.CacheBytes() != 16<<20 {
		t.Errorf("expected 16MB cache, got %d bytes", cfg.Archive.CacheBytes())
	}
	if cfg.Limits.ClusterRPS != 2.5 {
		t.Errorf("expected 2.5 rps, got %v", cfg.Limits.ClusterRPS)
	}
}

func TestInvalidNumericEnvIgnored(t *testing.T) {
	t.Setenv("POINTLAB_CLUSTER_MAX_K", "lots")
	t.Setenv("POINTLAB_SESSIONS_CANVAS", "wide")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cluster.MaxK != 64 {
		t.Errorf("expected default max k 64, got %d", cfg.Cluster.MaxK)
	}
	if cfg.Sessions.CanvasWidth != 0 {
		t.Errorf("expected no canvas, got width %v", cfg.Sessions.CanvasWidth)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"listen_addr": ":3000",
		"cluster": {
			"default_iterations": 25,
			"max_k": 8
		},
		"sessions": {
			"max_sessions": 10,
			"canvas_width": 500,
			"canvas_height": 500
		},
		"archive": {"enabled": true, "compression": "none"},
		"object_store": {
			"type": "s3",
			"endpoint": "http://localhost:9000",
			"bucket": "runs",
			"access_key": "minioadmin",
			"secret_key": "minioadmin"
		},
		"timeout": {"cluster_ms": 500}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.ListenAddr != ":3000" {
		t.Errorf("expected listen addr :3000, got %s", cfg.ListenAddr)
	}
	if cfg.Cluster.GetDefaultIterations() != 25 {
		t.Errorf("expected 25 iterations, got %d", cfg.Cluster.GetDefaultIterations())
	}
	if cfg.Cluster.GetMaxK() != 8 {
		t.Errorf("expected max k 8, got %d", cfg.Cluster.GetMaxK())
	}
	// Unset fields in the file keep their defaults.
	if cfg.Cluster.LearningRate != 0.01 {
		t.Errorf("expected default learning rate, got %v", cfg.Cluster.LearningRate)
	}
	if cfg.Sessions.GetMaxSessions() != 10 {
		t.Errorf("expected 10 sessions, got %d", cfg.Sessions.GetMaxSessions())
	}
	if cfg.Archive.GetCompression() != CompressionNone {
		t.Errorf("expected no compression, got %s", cfg.Archive.GetCompression())
	}
	if cfg.ObjectStore.Type != "s3" || cfg.ObjectStore.Bucket != "runs" {
		t.Errorf("unexpected object store config: %+v", cfg.ObjectStore)
	}
	if cfg.Timeout.GetClusterTimeout() != 500 {
		t.Errorf("expected 500ms timeout, got %d", cfg.Timeout.GetClusterTimeout())
	}
}

func TestLoadFromConfigEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pointlab.json")
	if err := os.WriteFile(path, []byte(`{"listen_addr": ":4000"}`), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("POINTLAB_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.ListenAddr != ":4000" {
		t.Errorf("expected listen addr :4000, got %s", cfg.ListenAddr)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"listen_addr": ":3000"}`), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("POINTLAB_LISTEN_ADDR", ":5000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.ListenAddr != ":5000" {
		t.Errorf("expected env to win with :5000, got %s", cfg.ListenAddr)
	}
}

func TestInvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestMissingConfigFile(t *testing.T) {
	if _, err := Load("/nonexistent/pointlab.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGetterFallbacks(t *testing.T) {
	var c Config
	if c.Cluster.GetDefaultIterations() != 10 {
		t.Errorf("expected 10, got %d", c.Cluster.GetDefaultIterations())
	}
	if c.Cluster.GetLearningRate() != 0.01 {
		t.Errorf("expected 0.01, got %v", c.Cluster.GetLearningRate())
	}
	c.Cluster.LearningRate = 3
	if c.Cluster.GetLearningRate() != 0.01 {
		t.Errorf("expected out-of-range rate to fall back, got %v", c.Cluster.GetLearningRate())
	}
	if c.Cluster.GetMaxIterations() != 10000 {
		t.Errorf("expected 10000, got %d", c.Cluster.GetMaxIterations())
	}
	if c.Sessions.GetMaxPointsPerSession() != 100000 {
		t.Errorf("expected 100000, got %d", c.Sessions.GetMaxPointsPerSession())
	}
	if c.Limits.MaxBodyBytes() != 16*1024*1024 {
		t.Errorf("expected 16MB, got %d", c.Limits.MaxBodyBytes())
	}
	if c.Limits.GetClusterBurst() != 1 {
		t.Errorf("expected burst 1, got %d", c.Limits.GetClusterBurst())
	}
	c.Limits.ClusterRPS = 20
	if c.Limits.GetClusterBurst() != 20 {
		t.Errorf("expected burst 20, got %d", c.Limits.GetClusterBurst())
	}
	if c.Archive.GetCompression() != CompressionZstd {
		t.Errorf("expected zstd, got %s", c.Archive.GetCompression())
	}
}
