package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 9180, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, 5, cfg.Policy.TopK)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"missing oracle url", func(c *Config) { c.Oracle.BaseURL = "" }},
		{"missing oracle model", func(c *Config) { c.Oracle.Model = "" }},
		{"zero oracle timeout", func(c *Config) { c.Oracle.Timeout = 0 }},
		{"missing search url", func(c *Config) { c.Search.BaseURL = "" }},
		{"zero chunk size", func(c *Config) { c.Policy.ChunkSize = 0 }},
		{"zero top_k", func(c *Config) { c.Policy.TopK = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "blaring" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadWithFile_YAMLAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  http_port: 8088
oracle:
  model: llama-3.3-70b-versatile
  base_url: https://api.groq.com/openai/v1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("SERVER_HTTP_PORT", "9999")
	t.Setenv("APPROVALS_APPROVER_ID", "U09MGR")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	// Env beats file, file beats defaults.
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.Oracle.Model)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.Oracle.BaseURL)
	assert.Equal(t, "U09MGR", cfg.Approvals.ApproverID)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoadWithFile_MissingFile(t *testing.T) {
	_, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadWithFile_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := LoadWithFile(path)
	require.Error(t, err)
}

func TestEnvTransform_IgnoresUnrelatedVariables(t *testing.T) {
	assert.Equal(t, "", envTransform("PATH"))
	assert.Equal(t, "", envTransform("HOME"))
	assert.Equal(t, "server.http_port", envTransform("SERVER_HTTP_PORT"))
	assert.Equal(t, "oracle.rate_per_second", envTransform("ORACLE_RATE_PER_SECOND"))
}
