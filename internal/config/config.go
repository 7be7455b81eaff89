// Package config holds the runtime configuration for yemoshot and the viper-backed
// loader that layers defaults, an optional YAML file and YEMOSHOT_* environment variables.
package config

import "time"

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// PublicBaseURL, when set, replaces the request scheme and host in download links.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// StorageConfig describes where captures are written and how long they live.
type StorageConfig struct {
	PublicDir     string        `mapstructure:"public_dir"`
	OutputDir     string        `mapstructure:"output_dir"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// RateLimitConfig configures the per-client fixed window limiter on /api.
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
	Ban         time.Duration `mapstructure:"ban"`

	// TrustForwardedFor keys clients by the first X-Forwarded-For hop.
	// The header is client controlled, so this is only safe behind a proxy that sets it.
	TrustForwardedFor bool          `mapstructure:"trust_forwarded_for"`
	PruneInterval     time.Duration `mapstructure:"prune_interval"`
}

// CaptureConfig tunes the capture sequence.
type CaptureConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	DefaultDelay      time.Duration `mapstructure:"default_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	JPEGQuality       int           `mapstructure:"jpeg_quality"`
}

// BrowserConfig selects between a locally launched Chrome and a remote DevTools endpoint.
type BrowserConfig struct {
	ExecPath       string        `mapstructure:"exec_path"`
	RemoteURL      string        `mapstructure:"remote_url"`
	BrowserlessURL string        `mapstructure:"browserless_url"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	Headless       bool          `mapstructure:"headless"`
}

// Remote reports whether sessions are attached to an external browser.
func (b BrowserConfig) Remote() bool {
	return b.RemoteURL != "" || b.BrowserlessURL != ""
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format is json or console.
	Format string `mapstructure:"format"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
