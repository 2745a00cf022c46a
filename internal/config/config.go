// Package config loads the engine's runtime configuration from a YAML file
// and applies defaults. Durations are expressed in milliseconds, as the
// backend SLAs are. Configuration is read once at startup; components
// receive the resolved values, never the file path.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ScheduleConfig describes the poller's three-tier delay schedule. Attempts
// run QuickAttempts times at the quick interval, then MediumAttempts times
// at the medium interval, and every remaining attempt up to MaxAttempts at
// the slow interval.
type ScheduleConfig struct {
	QuickAttempts    int   `yaml:"quick_attempts"`
	QuickIntervalMs  int64 `yaml:"quick_interval_ms"`
	MediumAttempts   int   `yaml:"medium_attempts"`
	MediumIntervalMs int64 `yaml:"medium_interval_ms"`
	SlowIntervalMs   int64 `yaml:"slow_interval_ms"`
	MaxAttempts      int   `yaml:"max_attempts"`
}

// QuickInterval returns the quick-tier delay.
func (s ScheduleConfig) QuickInterval() time.Duration {
	return time.Duration(s.QuickIntervalMs) * time.Millisecond
}

// MediumInterval returns the medium-tier delay.
func (s ScheduleConfig) MediumInterval() time.Duration {
	return time.Duration(s.MediumIntervalMs) * time.Millisecond
}

// SlowInterval returns the slow-tier delay.
func (s ScheduleConfig) SlowInterval() time.Duration {
	return time.Duration(s.SlowIntervalMs) * time.Millisecond
}

// BreakerConfig holds circuit breaker thresholds for backend endpoints.
type BreakerConfig struct {
	FailureThreshold int   `yaml:"failure_threshold"`
	OpenTimeoutMs    int64 `yaml:"open_timeout_ms"`
	HalfOpenSuccess  int   `yaml:"half_open_success"`
}

// OpenTimeout returns how long an open circuit lasts before probing.
func (b BreakerConfig) OpenTimeout() time.Duration {
	return time.Duration(b.OpenTimeoutMs) * time.Millisecond
}

// FulfillmentConfig controls the authenticated resolver's settling behavior
// and where deliveries land.
type FulfillmentConfig struct {
	SettleDelayMs  int64  `yaml:"settle_delay_ms"`
	SettleAttempts int    `yaml:"settle_attempts"`
	DownloadDir    string `yaml:"download_dir"`
	LibraryPath    string `yaml:"library_path"`
}

// SettleDelay returns the pause between order re-fetches.
func (f FulfillmentConfig) SettleDelay() time.Duration {
	return time.Duration(f.SettleDelayMs) * time.Millisecond
}

// Config is the root configuration document.
type Config struct {
	ListenAddr     string            `yaml:"listen_addr"`
	GatewayBaseURL string            `yaml:"gateway_base_url"`
	BackendBaseURL string            `yaml:"backend_base_url"`
	HTTPTimeoutMs  int64             `yaml:"http_timeout_ms"`
	Schedule       ScheduleConfig    `yaml:"schedule"`
	Breaker        BreakerConfig     `yaml:"breaker"`
	Fulfillment    FulfillmentConfig `yaml:"fulfillment"`
	RetryRule      string            `yaml:"retry_rule"`
}

// HTTPTimeout returns the per-request timeout for all outbound calls.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMs) * time.Millisecond
}

// Default returns the configuration used when no file or field overrides it.
// The schedule mirrors the production cadence: 6x4s, 5x6s, then 10s spacing
// up to 18 attempts, roughly two minutes end to end.
func Default() Config {
	return Config{
		ListenAddr:     ":8080",
		GatewayBaseURL: "https://api.stripe.com/v1",
		BackendBaseURL: "http://localhost:9000",
		HTTPTimeoutMs:  10_000,
		Schedule: ScheduleConfig{
			QuickAttempts:    6,
			QuickIntervalMs:  4_000,
			MediumAttempts:   5,
			MediumIntervalMs: 6_000,
			SlowIntervalMs:   10_000,
			MaxAttempts:      18,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenTimeoutMs:    30_000,
			HalfOpenSuccess:  2,
		},
		Fulfillment: FulfillmentConfig{
			SettleDelayMs:  2_000,
			SettleAttempts: 3,
			DownloadDir:    "downloads",
			LibraryPath:    "/library",
		},
		RetryRule: "gateway_accepted && verification_exhausted && !in_flight",
	}
}

// Load reads path, overlays it on Default, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.GatewayBaseURL == "" {
		return fmt.Errorf("config: gateway_base_url is required")
	}
	if c.BackendBaseURL == "" {
		return fmt.Errorf("config: backend_base_url is required")
	}
	if c.Schedule.MaxAttempts < 1 {
		return fmt.Errorf("config: schedule.max_attempts must be at least 1, got %d", c.Schedule.MaxAttempts)
	}
	if c.Schedule.QuickAttempts < 0 || c.Schedule.MediumAttempts < 0 {
		return fmt.Errorf("config: schedule tier attempt counts cannot be negative")
	}
	if c.Schedule.QuickAttempts+c.Schedule.MediumAttempts > c.Schedule.MaxAttempts {
		return fmt.Errorf("config: schedule tiers (%d quick + %d medium) exceed max_attempts %d",
			c.Schedule.QuickAttempts, c.Schedule.MediumAttempts, c.Schedule.MaxAttempts)
	}
	if c.HTTPTimeoutMs <= 0 {
		return fmt.Errorf("config: http_timeout_ms must be positive")
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("config: breaker.failure_threshold must be at least 1")
	}
	return nil
}
