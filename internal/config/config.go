package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Compression names a codec for archived runs.
type Compression string

const (
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
	CompressionNone Compression = "none"
)

// DefaultCompression is used when the archive compression is empty or invalid.
const DefaultCompression = CompressionZstd

// IsValid returns true if the compression is a recognized value.
func (c Compression) IsValid() bool {
	switch c {
	case CompressionZstd, CompressionLZ4, CompressionNone:
		return true
	default:
		return false
	}
}

type Config struct {
	ListenAddr  string            `json:"listen_addr"`
	AuthToken   string            `json:"auth_token"`
	LogLevel    string            `json:"log_level"`
	Cluster     ClusterConfig     `json:"cluster"`
	Sessions    SessionsConfig    `json:"sessions"`
	Archive     ArchiveConfig     `json:"archive"`
	ObjectStore ObjectStoreConfig `json:"object_store"`
	Limits      LimitsConfig      `json:"limits"`
	Timeout     TimeoutConfig     `json:"timeout"`
}

// ClusterConfig holds engine defaults and caps applied to API requests.
type ClusterConfig struct {
	// DefaultIterations is used when a request does not name an iteration count.
	// Default: 10
	DefaultIterations int `json:"default_iterations"`
	// LearningRate is the default damping factor. Default: 0.01
	LearningRate float64 `json:"learning_rate"`
	// MaxK caps the number of centers per request. Default: 64
	MaxK int `json:"max_k"`
	// MaxIterations caps the iteration budget per request. Default: 10000
	MaxIterations int `json:"max_iterations"`
	// EmptyPolicy is "skip" or "reseed". Default: skip
	EmptyPolicy string `json:"empty_policy"`
}

// GetDefaultIterations returns DefaultIterations with default fallback.
func (c ClusterConfig) GetDefaultIterations() int {
	if c.DefaultIterations <= 0 {
		return 10
	}
	return c.DefaultIterations
}

// GetLearningRate returns LearningRate with default fallback.
func (c ClusterConfig) GetLearningRate() float64 {
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return 0.01
	}
	return c.LearningRate
}

// GetMaxK returns MaxK with default fallback.
func (c ClusterConfig) GetMaxK() int {
	if c.MaxK <= 0 {
		return 64
	}
	return c.MaxK
}

// GetMaxIterations returns MaxIterations with default fallback.
func (c ClusterConfig) GetMaxIterations() int {
	if c.MaxIterations <= 0 {
		return 10000
	}
	return c.MaxIterations
}

// SessionsConfig holds guardrails for buffered point sessions.
type SessionsConfig struct {
	// MaxSessions is the maximum number of live sessions. Default: 1000
	MaxSessions int `json:"max_sessions"`
	// MaxPointsPerSession caps buffered points per session. Default: 100000
	MaxPointsPerSession int `json:"max_points_per_session"`
	// CanvasWidth and CanvasHeight clamp incoming points when both are set.
	CanvasWidth  float64 `json:"canvas_width"`
	CanvasHeight float64 `json:"canvas_height"`
}

// GetMaxSessions returns MaxSessions with default fallback.
func (c SessionsConfig) GetMaxSessions() int {
	if c.MaxSessions <= 0 {
		return 1000
	}
	return c.MaxSessions
}

// GetMaxPointsPerSession returns MaxPointsPerSession with default fallback.
func (c SessionsConfig) GetMaxPointsPerSession() int {
	if c.MaxPointsPerSession <= 0 {
		return 100000
	}
	return c.MaxPointsPerSession
}

// ArchiveConfig controls persistence of clustering runs.
type ArchiveConfig struct {
	Enabled     bool   `json:"enabled"`
	Compression string `json:"compression"`
	// CacheMB bounds the in-memory cache of encoded records. Zero disables it.
	CacheMB int `json:"cache_mb"`
}

// GetCompression returns the archive compression as a typed value.
// Returns DefaultCompression if the stored value is empty or invalid.
func (c ArchiveConfig) GetCompression() Compression {
	comp := Compression(c.Compression)
	if !comp.IsValid() {
		return DefaultCompression
	}
	return comp
}

// CacheBytes returns the record cache budget in bytes.
func (c ArchiveConfig) CacheBytes() int64 {
	if c.CacheMB <= 0 {
		return 0
	}
	return int64(c.CacheMB) << 20
}

type ObjectStoreConfig struct {
	Type      string `json:"type"`
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"use_ssl"`
	RootPath  string `json:"root_path"`
}

// LimitsConfig holds request limits.
type LimitsConfig struct {
	// ClusterRPS is the sustained clustering request rate. 0 disables limiting.
	ClusterRPS float64 `json:"cluster_rps"`
	// ClusterBurst is the limiter burst size. Default: max(1, ClusterRPS)
	ClusterBurst int `json:"cluster_burst"`
	// MaxBodyMB caps request body size. Default: 16
	MaxBodyMB int `json:"max_body_mb"`
}

// GetClusterBurst returns ClusterBurst with default fallback.
func (c LimitsConfig) GetClusterBurst() int {
	if c.ClusterBurst > 0 {
		return c.ClusterBurst
	}
	if c.ClusterRPS >= 1 {
		return int(c.ClusterRPS)
	}
	return 1
}

// MaxBodyBytes returns the body cap (converted from MB to bytes).
func (c LimitsConfig) MaxBodyBytes() int64 {
	if c.MaxBodyMB <= 0 {
		return 16 * 1024 * 1024
	}
	return int64(c.MaxBodyMB) * 1024 * 1024
}

// TimeoutConfig holds per-request timeout configuration.
type TimeoutConfig struct {
	// ClusterTimeoutMs is the maximum time allowed for a clustering request.
	// Default: 10000 (10 seconds)
	ClusterTimeoutMs int `json:"cluster_ms"`
}

// GetClusterTimeout returns the cluster timeout in milliseconds with default fallback.
func (c TimeoutConfig) GetClusterTimeout() int {
	if c.ClusterTimeoutMs <= 0 {
		return 10000
	}
	return c.ClusterTimeoutMs
}

func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Cluster: ClusterConfig{
			DefaultIterations: 10,
			LearningRate:      0.01,
			MaxK:              64,
			MaxIterations:     10000,
			EmptyPolicy:       "skip",
		},
		Sessions: SessionsConfig{
			MaxSessions:         1000,
			MaxPointsPerSession: 100000,
		},
		Archive: ArchiveConfig{
			Enabled:     false,
			Compression: string(DefaultCompression),
		},
		ObjectStore: ObjectStoreConfig{
			Type:     "memory",
			Region:   "us-east-1",
			RootPath: "/tmp/pointlab-runs",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("POINTLAB_CONFIG")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if env := os.Getenv("POINTLAB_LISTEN_ADDR"); env != "" {
		cfg.ListenAddr = env
	}
	if env := os.Getenv("POINTLAB_AUTH_TOKEN"); env != "" {
		cfg.AuthToken = env
	}
	if env := os.Getenv("POINTLAB_LOG_LEVEL"); env != "" {
		cfg.LogLevel = env
	}

	// Engine defaults
	if env := os.Getenv("POINTLAB_CLUSTER_DEFAULT_ITERATIONS"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Cluster.DefaultIterations = n
		}
	}
	if env := os.Getenv("POINTLAB_CLUSTER_LEARNING_RATE"); env != "" {
		if f, err := parseFloatEnv(env); err == nil {
			cfg.Cluster.LearningRate = f
		}
	}
	if env := os.Getenv("POINTLAB_CLUSTER_MAX_K"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Cluster.MaxK = n
		}
	}
	if env := os.Getenv("POINTLAB_CLUSTER_MAX_ITERATIONS"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Cluster.MaxIterations = n
		}
	}
	if env := os.Getenv("POINTLAB_CLUSTER_EMPTY_POLICY"); env != "" {
		cfg.Cluster.EmptyPolicy = env
	}

	// Session guardrails
	if env := os.Getenv("POINTLAB_SESSIONS_MAX_SESSIONS"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Sessions.MaxSessions = n
		}
	}
	if env := os.Getenv("POINTLAB_SESSIONS_MAX_POINTS"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Sessions.MaxPointsPerSession = n
		}
	}
	if env := os.Getenv("POINTLAB_SESSIONS_CANVAS"); env != "" {
		if w, h, err := parseCanvas(env); err == nil {
			cfg.Sessions.CanvasWidth = w
			cfg.Sessions.CanvasHeight = h
		}
	}

	// Archive and object store
	if env := os.Getenv("POINTLAB_ARCHIVE_ENABLED"); env != "" {
		cfg.Archive.Enabled = env == "true" || env == "1"
	}
	if env := os.Getenv("POINTLAB_ARCHIVE_COMPRESSION"); env != "" {
		cfg.Archive.Compression = env
	}
	if env := os.Getenv("POINTLAB_ARCHIVE_CACHE_MB"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Archive.CacheMB = n
		}
	}
	if env := os.Getenv("POINTLAB_OBJECT_STORE_TYPE"); env != "" {
		cfg.ObjectStore.Type = env
	}
	if env := os.Getenv("POINTLAB_OBJECT_STORE_ENDPOINT"); env != "" {
		cfg.ObjectStore.Endpoint = env
	}
	if env := os.Getenv("POINTLAB_OBJECT_STORE_BUCKET"); env != "" {
		cfg.ObjectStore.Bucket = env
	}
	if env := os.Getenv("POINTLAB_OBJECT_STORE_ROOT"); env != "" {
		cfg.ObjectStore.RootPath = env
	}
	if env := os.Getenv("POINTLAB_OBJECT_STORE_ACCESS_KEY"); env != "" {
		cfg.ObjectStore.AccessKey = env
	}
	if env := os.Getenv("POINTLAB_OBJECT_STORE_SECRET_KEY"); env != "" {
		cfg.ObjectStore.SecretKey = env
	}
	if env := os.Getenv("POINTLAB_OBJECT_STORE_REGION"); env != "" {
		cfg.ObjectStore.Region = env
	}
	if env := os.Getenv("POINTLAB_OBJECT_STORE_USE_SSL"); env != "" {
		cfg.ObjectStore.UseSSL = env == "true" || env == "1"
	}

	// Limits and timeouts
	if env := os.Getenv("POINTLAB_LIMITS_CLUSTER_RPS"); env != "" {
		if f, err := parseFloatEnv(env); err == nil {
			cfg.Limits.ClusterRPS = f
		}
	}
	if env := os.Getenv("POINTLAB_LIMITS_CLUSTER_BURST"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Limits.ClusterBurst = n
		}
	}
	if env := os.Getenv("POINTLAB_LIMITS_MAX_BODY_MB"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Limits.MaxBodyMB = n
		}
	}
	if env := os.Getenv("POINTLAB_TIMEOUT_CLUSTER_MS"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Timeout.ClusterTimeoutMs = n
		}
	}

	return cfg, nil
}

func parseIntEnv(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseFloatEnv(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err
}

// parseCanvas parses "WIDTHxHEIGHT".
func parseCanvas(s string) (float64, float64, error) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(s)), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("canvas must be WIDTHxHEIGHT, got %q", s)
	}
	w, err := parseFloatEnv(parts[0])
	if err != nil {
		return 0, 0, err
	}
	h, err := parseFloatEnv(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}
