package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. YEMOSHOT_SERVER_PORT.
const EnvPrefix = "YEMOSHOT"

// SetDefaults registers every known key on v so AutomaticEnv can resolve them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 3*time.Minute)
	v.SetDefault("server.idle_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.public_base_url", "")

	v.SetDefault("storage.public_dir", "public")
	v.SetDefault("storage.output_dir", "public/files")
	v.SetDefault("storage.max_age", 24*time.Hour)
	v.SetDefault("storage.sweep_interval", time.Hour)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.window", 5*time.Minute)
	v.SetDefault("ratelimit.max_requests", 100)
	v.SetDefault("ratelimit.ban", 5*time.Minute)
	v.SetDefault("ratelimit.trust_forwarded_for", true)
	v.SetDefault("ratelimit.prune_interval", 5*time.Minute)

	v.SetDefault("capture.navigation_timeout", 15*time.Second)
	v.SetDefault("capture.default_delay", 5*time.Second)
	v.SetDefault("capture.max_delay", 30*time.Second)
	v.SetDefault("capture.request_timeout", 2*time.Minute)
	v.SetDefault("capture.jpeg_quality", 80)

	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.browserless_url", "")
	v.SetDefault("browser.dial_timeout", 30*time.Second)
	v.SetDefault("browser.headless", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
}

// Load resolves configuration from defaults, the optional file, and the environment.
// An explicitly named file must exist; otherwise ./yemoshot.yaml is read when present.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names kept for existing deployments.
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("browser.remote_url", EnvPrefix+"_BROWSER_REMOTE_URL", "CHROME_WS_ENDPOINT")
	_ = v.BindEnv("browser.browserless_url", EnvPrefix+"_BROWSER_BROWSERLESS_URL", "BROWSERLESS_HTTP_URL")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("yemoshot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 1 || c.Server.Port > 65535:
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	case strings.TrimSpace(c.Storage.OutputDir) == "":
		return errors.New("storage.output_dir is required")
	case c.Storage.MaxAge <= 0:
		return errors.New("storage.max_age must be > 0")
	case c.Storage.SweepInterval <= 0:
		return errors.New("storage.sweep_interval must be > 0")
	case c.Capture.NavigationTimeout <= 0:
		return errors.New("capture.navigation_timeout must be > 0")
	case c.Capture.MaxDelay < 0 || c.Capture.DefaultDelay < 0:
		return errors.New("capture delays must be >= 0")
	case c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100:
		return errors.New("capture.jpeg_quality must be between 1 and 100")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxRequests < 1 {
			return errors.New("ratelimit.max_requests must be >= 1")
		}
		if c.RateLimit.Window <= 0 || c.RateLimit.Ban <= 0 {
			return errors.New("ratelimit.window and ratelimit.ban must be > 0")
		}
	}
	return nil
}
