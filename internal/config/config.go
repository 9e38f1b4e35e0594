// Package config provides configuration loading for ultramemory.
//
// Configuration is read from an optional YAML settings file, then
// overridden by ULTRAMEMORY_* environment variables. Every section has
// hardcoded defaults so an empty config is runnable against local
// backends.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors returned by Config.Validate.
var (
	ErrInvalidPort      = errors.New("invalid port")
	ErrInvalidProvider  = errors.New("unknown embedding provider")
	ErrInvalidDimension = errors.New("embedding dimension must be positive")
)

// Config holds the complete ultramemory configuration.
type Config struct {
	Engine      EngineConfig      `koanf:"engine"`
	Vector      VectorConfig      `koanf:"vector"`
	Graph       GraphConfig       `koanf:"graph"`
	Cache       CacheConfig       `koanf:"cache"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Repo        RepoConfig        `koanf:"repo"`
	Consolidate ConsolidateConfig `koanf:"consolidate"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// EngineConfig holds engine-wide settings.
type EngineConfig struct {
	// DataDir is the per-user state directory (settings, schedules,
	// audit logs, heartbeat file). Empty means ~/.ulmemory.
	DataDir string `koanf:"data_dir"`
}

// VectorConfig holds the Qdrant vector index connection settings.
type VectorConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"` // gRPC port, not the REST one
	APIKey         Secret   `koanf:"api_key"`
	UseTLS         bool     `koanf:"use_tls"`
	CollectionName string   `koanf:"collection_name"`
	DialTimeout    Duration `koanf:"dial_timeout"`
	RequestTimeout Duration `koanf:"request_timeout"`
	RetryAttempts  int      `koanf:"retry_attempts"`
	RetryBackoff   Duration `koanf:"retry_backoff"`
}

// GraphConfig holds the FalkorDB graph index connection settings.
// FalkorDB speaks the Redis protocol; Addr is host:port.
type GraphConfig struct {
	Addr      string `koanf:"addr"`
	Password  Secret `koanf:"password"`
	DB        int    `koanf:"db"`
	GraphName string `koanf:"graph_name"`
}

// CacheConfig holds the Redis cache connection settings. WarmOnStart
// makes the daemon pre-populate the query cache on boot.
type CacheConfig struct {
	Addr        string `koanf:"addr"`
	Password    Secret `koanf:"password"`
	DB          int    `koanf:"db"`
	WarmOnStart bool   `koanf:"warm_on_start"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the backend: "minimax" or "openai".
	Provider string `koanf:"provider"`
	APIKey   Secret `koanf:"api_key"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	// VectorSize is the embedding dimension every stored vector is
	// coerced to (truncate or zero-pad).
	VectorSize int      `koanf:"vector_size"`
	Timeout    Duration `koanf:"timeout"`
	// RateLimit is requests per second against the provider API.
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
}

// RepoConfig holds repository ingestion settings.
type RepoConfig struct {
	GitHubToken Secret `koanf:"github_token"`
	MaxFileSize int64  `koanf:"max_file_size"`
	MaxFiles    int    `koanf:"max_files"`
	// Excludes are extra path components to skip on top of the
	// built-in exclude set.
	Excludes []string `koanf:"excludes"`
	// RedactSecrets scans file content with gitleaks before indexing.
	RedactSecrets bool `koanf:"redact_secrets"`
}

// ConsolidateConfig holds consolidation engine knobs.
type ConsolidateConfig struct {
	SemanticSampleSize int     `koanf:"semantic_sample_size"`
	SemanticThreshold  float32 `koanf:"semantic_threshold"`
	FuzzySampleSize    int     `koanf:"fuzzy_sample_size"`
	FuzzyThreshold     float64 `koanf:"fuzzy_threshold"`
	SimilarDocLimit    int     `koanf:"similar_doc_limit"`
	SimilarThreshold   float32 `koanf:"similar_threshold"`
	OrphanBatchSize    int     `koanf:"orphan_batch_size"`
	MaxSyncIterations  int     `koanf:"max_sync_iterations"`
}

// ServerConfig holds the daemon HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // console or json
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"` // grpc or http/protobuf
	Insecure       bool     `koanf:"insecure"`
	SamplingRate   float64  `koanf:"sampling_rate"`
	MetricInterval Duration `koanf:"metric_interval"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Vector.Host == "" {
		c.Vector.Host = "localhost"
	}
	if c.Vector.Port == 0 {
		c.Vector.Port = 6334
	}
	if c.Vector.CollectionName == "" {
		c.Vector.CollectionName = "ultramemory"
	}
	if c.Vector.DialTimeout == 0 {
		c.Vector.DialTimeout = Duration(5 * time.Second)
	}
	if c.Vector.RequestTimeout == 0 {
		c.Vector.RequestTimeout = Duration(30 * time.Second)
	}
	if c.Vector.RetryAttempts == 0 {
		c.Vector.RetryAttempts = 3
	}
	if c.Vector.RetryBackoff == 0 {
		c.Vector.RetryBackoff = Duration(time.Second)
	}

	if c.Graph.Addr == "" {
		c.Graph.Addr = "localhost:6370"
	}
	if c.Graph.GraphName == "" {
		c.Graph.GraphName = "default"
	}

	if c.Cache.Addr == "" {
		c.Cache.Addr = "localhost:6379"
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "minimax"
	}
	if c.Embedding.Model == "" {
		switch c.Embedding.Provider {
		case "openai":
			c.Embedding.Model = "text-embedding-3-small"
		default:
			c.Embedding.Model = "MiniMax-Text-01"
		}
	}
	if c.Embedding.BaseURL == "" {
		switch c.Embedding.Provider {
		case "openai":
			c.Embedding.BaseURL = "https://api.openai.com/v1"
		default:
			c.Embedding.BaseURL = "https://api.minimax.chat/v1"
		}
	}
	if c.Embedding.VectorSize == 0 {
		c.Embedding.VectorSize = 1536
	}
	if c.Embedding.Timeout == 0 {
		c.Embedding.Timeout = Duration(30 * time.Second)
	}
	if c.Embedding.RateLimit == 0 {
		c.Embedding.RateLimit = 5
	}
	if c.Embedding.Burst == 0 {
		c.Embedding.Burst = 10
	}

	if c.Repo.MaxFileSize == 0 {
		c.Repo.MaxFileSize = 1024 * 1024
	}
	if c.Repo.MaxFiles == 0 {
		c.Repo.MaxFiles = 1000
	}

	if c.Consolidate.SemanticSampleSize == 0 {
		c.Consolidate.SemanticSampleSize = 200
	}
	if c.Consolidate.SemanticThreshold == 0 {
		c.Consolidate.SemanticThreshold = 0.85
	}
	if c.Consolidate.FuzzySampleSize == 0 {
		c.Consolidate.FuzzySampleSize = 200
	}
	if c.Consolidate.FuzzyThreshold == 0 {
		c.Consolidate.FuzzyThreshold = 0.75
	}
	if c.Consolidate.SimilarDocLimit == 0 {
		c.Consolidate.SimilarDocLimit = 100
	}
	if c.Consolidate.SimilarThreshold == 0 {
		c.Consolidate.SimilarThreshold = 0.7
	}
	if c.Consolidate.OrphanBatchSize == 0 {
		c.Consolidate.OrphanBatchSize = 1000
	}
	if c.Consolidate.MaxSyncIterations == 0 {
		c.Consolidate.MaxSyncIterations = 5
	}

	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9732
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.Telemetry.Protocol == "" {
		c.Telemetry.Protocol = "grpc"
	}
	if c.Telemetry.SamplingRate == 0 {
		c.Telemetry.SamplingRate = 1.0
	}
	if c.Telemetry.MetricInterval == 0 {
		c.Telemetry.MetricInterval = Duration(60 * time.Second)
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Vector.Port < 1 || c.Vector.Port > 65535 {
		return fmt.Errorf("%w: vector.port %d", ErrInvalidPort, c.Vector.Port)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.http_port %d", ErrInvalidPort, c.Server.Port)
	}
	switch c.Embedding.Provider {
	case "minimax", "openai":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Embedding.Provider)
	}
	if c.Embedding.VectorSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimension, c.Embedding.VectorSize)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint required when telemetry is enabled")
	}
	return nil
}
