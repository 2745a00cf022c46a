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
	assert.Equal(t, 18, cfg.Schedule.MaxAttempts)
	assert.Equal(t, 4*time.Second, cfg.Schedule.QuickInterval())
	assert.Equal(t, "downloads", cfg.Fulfillment.DownloadDir)
	assert.NotEmpty(t, cfg.RetryRule)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reconciler.yaml")
	doc := `
listen_addr: ":9999"
backend_base_url: "http://backend.internal:9000"
schedule:
  quick_attempts: 3
  quick_interval_ms: 1000
  medium_attempts: 3
  medium_interval_ms: 2000
  slow_interval_ms: 5000
  max_attempts: 10
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "http://backend.internal:9000", cfg.BackendBaseURL)
	assert.Equal(t, 10, cfg.Schedule.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Schedule.QuickInterval())
	// Untouched sections keep their defaults.
	assert.Equal(t, Default().GatewayBaseURL, cfg.GatewayBaseURL)
	assert.Equal(t, Default().Breaker, cfg.Breaker)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing gateway url", func(c *Config) { c.GatewayBaseURL = "" }},
		{"missing backend url", func(c *Config) { c.BackendBaseURL = "" }},
		{"zero max attempts", func(c *Config) { c.Schedule.MaxAttempts = 0 }},
		{"negative tier", func(c *Config) { c.Schedule.QuickAttempts = -1 }},
		{"tiers exceed budget", func(c *Config) {
			c.Schedule.QuickAttempts = 10
			c.Schedule.MediumAttempts = 10
			c.Schedule.MaxAttempts = 12
		}},
		{"non-positive timeout", func(c *Config) { c.HTTPTimeoutMs = 0 }},
		{"zero breaker threshold", func(c *Config) { c.Breaker.FailureThreshold = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
