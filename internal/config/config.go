// Package config provides configuration loading for buyerd.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, ORACLE_BASE_URL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/buyerd/internal/logging"
)

// ErrInvalidConfig indicates an unusable configuration value.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete buyerd configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   logging.Config  `koanf:"logging"`
	Oracle    OracleConfig    `koanf:"oracle"`
	Search    SearchConfig    `koanf:"search"`
	Policy    PolicyConfig    `koanf:"policy"`
	Approvals ApprovalsConfig `koanf:"approvals"`
	Cache     CacheConfig     `koanf:"cache"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// OracleConfig holds configuration for the language-model collaborators
// (classifier, filter generator, compliance verdicts, justifications).
// The endpoint must be OpenAI-compatible.
type OracleConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
	// RatePerSecond bounds outbound oracle calls; 0 disables limiting.
	RatePerSecond float64 `koanf:"rate_per_second"`
}

// SearchConfig holds the shopping search API configuration.
type SearchConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
	// Country and Language localize results (gl/hl parameters).
	Country  string `koanf:"country"`
	Language string `koanf:"language"`
}

// PolicyConfig holds the procurement-policy retrieval configuration.
type PolicyConfig struct {
	// Path points at the plain-text policy document indexed at startup.
	Path      string `koanf:"path"`
	IndexDir  string `koanf:"index_dir"`
	ChunkSize int    `koanf:"chunk_size"`
	TopK      int    `koanf:"top_k"`
	// EmbeddingModel is served by the oracle endpoint.
	EmbeddingModel string `koanf:"embedding_model"`
}

// ApprovalsConfig holds the approval notification configuration.
type ApprovalsConfig struct {
	// ApproverID is the default second-party approver for escalations.
	ApproverID string `koanf:"approver_id"`
	NATSURL    string `koanf:"nats_url"`
}

// CacheConfig holds the result-cache configuration.
type CacheConfig struct {
	// Dir is where cached result artifacts are persisted across restarts.
	Dir string `koanf:"dir"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9180,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: *logging.NewDefaultConfig(),
		Oracle: OracleConfig{
			BaseURL:       "https://api.openai.com/v1",
			Model:         "gpt-4o-mini",
			Timeout:       30 * time.Second,
			RatePerSecond: 4,
		},
		Search: SearchConfig{
			BaseURL:  "https://serpapi.com/search.json",
			Country:  "in",
			Language: "en",
		},
		Policy: PolicyConfig{
			IndexDir:       "~/.local/share/buyerd/policy",
			ChunkSize:      500,
			TopK:           5,
			EmbeddingModel: "text-embedding-3-small",
		},
		Approvals: ApprovalsConfig{
			NATSURL: "nats://127.0.0.1:4222",
		},
		Cache: CacheConfig{
			Dir: "~/.cache/buyerd/results",
		},
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: logging: %v", ErrInvalidConfig, err)
	}
	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("%w: oracle base URL required", ErrInvalidConfig)
	}
	if c.Oracle.Model == "" {
		return fmt.Errorf("%w: oracle model required", ErrInvalidConfig)
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("%w: oracle timeout must be positive", ErrInvalidConfig)
	}
	if c.Search.BaseURL == "" {
		return fmt.Errorf("%w: search base URL required", ErrInvalidConfig)
	}
	if c.Policy.ChunkSize <= 0 {
		return fmt.Errorf("%w: policy chunk size must be positive", ErrInvalidConfig)
	}
	if c.Policy.TopK <= 0 {
		return fmt.Errorf("%w: policy top_k must be positive", ErrInvalidConfig)
	}
	return nil
}
