package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:11434/v1",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base url", func(c *Config) { c.BaseURL = "" }},
		{"missing model", func(c *Config) { c.Model = "" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	assert.NoError(t, validConfig().Validate())
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(validConfig())
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewClient(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestComplete_EmptyPrompt(t *testing.T) {
	client, err := NewClient(validConfig())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "system", "")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}
