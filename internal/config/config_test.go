package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Vector.Host != "localhost" || cfg.Vector.Port != 6334 {
		t.Errorf("vector defaults = %s:%d, want localhost:6334", cfg.Vector.Host, cfg.Vector.Port)
	}
	if cfg.Vector.CollectionName != "ultramemory" {
		t.Errorf("collection default = %q, want ultramemory", cfg.Vector.CollectionName)
	}
	if cfg.Vector.RetryAttempts != 3 || cfg.Vector.RetryBackoff.Duration() != time.Second {
		t.Errorf("retry defaults = %d/%s, want 3/1s", cfg.Vector.RetryAttempts, cfg.Vector.RetryBackoff.Duration())
	}
	if cfg.Graph.GraphName != "default" {
		t.Errorf("graph name default = %q, want default", cfg.Graph.GraphName)
	}
	if cfg.Embedding.Model != "MiniMax-Text-01" {
		t.Errorf("model default = %q, want MiniMax-Text-01", cfg.Embedding.Model)
	}
	if cfg.Consolidate.SemanticSampleSize != 200 || cfg.Consolidate.OrphanBatchSize != 1000 {
		t.Errorf("consolidate defaults = %d/%d, want 200/1000",
			cfg.Consolidate.SemanticSampleSize, cfg.Consolidate.OrphanBatchSize)
	}
	if cfg.Consolidate.MaxSyncIterations != 5 {
		t.Errorf("max sync iterations = %d, want 5", cfg.Consolidate.MaxSyncIterations)
	}
	if cfg.Repo.MaxFileSize != 1024*1024 {
		t.Errorf("repo max file size = %d, want 1MiB", cfg.Repo.MaxFileSize)
	}
}

func TestApplyDefaults_ProviderDependentModel(t *testing.T) {
	cfg := &Config{}
	cfg.Embedding.Provider = "openai"
	cfg.ApplyDefaults()

	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("openai model default = %q, want text-embedding-3-small", cfg.Embedding.Model)
	}
	if cfg.Embedding.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("openai base url default = %q", cfg.Embedding.BaseURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"defaults are valid", func(c *Config) {}, nil},
		{"bad vector port", func(c *Config) { c.Vector.Port = -1 }, ErrInvalidPort},
		{"bad server port", func(c *Config) { c.Server.Port = 700000 }, ErrInvalidPort},
		{"bad provider", func(c *Config) { c.Embedding.Provider = "acme" }, ErrInvalidProvider},
		{"bad dimension", func(c *Config) { c.Embedding.VectorSize = -5 }, ErrInvalidDimension},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_TelemetryNeedsEndpoint(t *testing.T) {
	cfg := defaultConfig()
	cfg.Telemetry.Enabled = true

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want endpoint complaint")
	}

	cfg.Telemetry.Endpoint = "localhost:4317"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("super-secret-token")

	if got := s.String(); got != "[REDACTED]" {
		t.Errorf("String() = %q, want [REDACTED]", got)
	}
	if got := fmt.Sprintf("%v", s); got != "[REDACTED]" {
		t.Errorf("Sprintf = %q, want [REDACTED]", got)
	}
	if got := s.Value(); got != "super-secret-token" {
		t.Errorf("Value() = %q, want raw secret", got)
	}

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "super-secret-token") {
		t.Errorf("JSON leaked the secret: %s", data)
	}
}

func TestSecretEmpty(t *testing.T) {
	var s Secret
	if s.IsSet() {
		t.Error("empty secret reports IsSet")
	}
	if got := s.String(); got != "" {
		t.Errorf("empty String() = %q, want empty", got)
	}
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Duration() != 90*time.Second {
		t.Errorf("Duration() = %s, want 90s", d.Duration())
	}

	if err := d.UnmarshalText([]byte("-5s")); err == nil {
		t.Error("negative duration accepted, want error")
	}
}
