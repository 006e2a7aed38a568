// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// DefaultBookingURL is used whenever the configuration does not provide a
// valid booking.url of its own.
const DefaultBookingURL = "https://wafid.com/book-appointment"

// DefaultMaxRetries bounds the number of booking attempts per run.
const DefaultMaxRetries = 3

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Booking BookingConfig `mapstructure:"booking" yaml:"booking"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Proxy   ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BookingConfig carries the run parameters for a booking attempt.
type BookingConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	MaxRetries int    `mapstructure:"max_retries" yaml:"max_retries"`
	// CandidateFile points at the CSV holding the applicant data.
	CandidateFile string `mapstructure:"candidate_file" yaml:"candidate_file"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	LaunchTimeout   time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// ProxyConfig configures where proxy endpoints come from and how they are
// validated before entering the pool.
type ProxyConfig struct {
	// Static lists endpoints in host:port or scheme://host:port form that are
	// always merged into the candidate set.
	Static []string `mapstructure:"static" yaml:"static"`
	// TextSources are URLs returning newline separated host:port entries.
	TextSources []string `mapstructure:"text_sources" yaml:"text_sources"`
	// HTMLSources are URLs of free-proxy-list style HTML tables.
	HTMLSources     []string      `mapstructure:"html_sources" yaml:"html_sources"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	ValidateTimeout time.Duration `mapstructure:"validate_timeout" yaml:"validate_timeout"`
	// ValidateConcurrency bounds parallel dial probes during a refresh.
	ValidateConcurrency int `mapstructure:"validate_concurrency" yaml:"validate_concurrency"`
	// SkipValidation keeps fetched candidates as-is. Useful when the probe
	// target network is unreachable from the operator's machine.
	SkipValidation bool `mapstructure:"skip_validation" yaml:"skip_validation"`
}

// NetworkConfig tunes navigation and confirmation wait behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wafidbot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Booking --
	v.SetDefault("booking.url", DefaultBookingURL)
	v.SetDefault("booking.max_retries", DefaultMaxRetries)
	v.SetDefault("booking.candidate_file", "data/candidate.csv")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.launch_timeout", "30s")

	// -- Proxy --
	v.SetDefault("proxy.fetch_timeout", "20s")
	v.SetDefault("proxy.validate_timeout", "5s")
	v.SetDefault("proxy.validate_concurrency", 10)
	v.SetDefault("proxy.skip_validation", false)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.confirm_timeout", "30s")
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the static defaults above.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
// Malformed individual fields are repaired to their defaults rather than
// aborting the load.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.ApplyFallbacks()
	return &cfg, nil
}

// ApplyFallbacks repairs per-field values that are present but unusable.
func (c *Config) ApplyFallbacks() {
	if c.Booking.URL == "" {
		c.Booking.URL = DefaultBookingURL
	}
	if c.Booking.MaxRetries <= 0 {
		c.Booking.MaxRetries = DefaultMaxRetries
	}
	if c.Proxy.FetchTimeout <= 0 {
		c.Proxy.FetchTimeout = 20 * time.Second
	}
	if c.Proxy.ValidateTimeout <= 0 {
		c.Proxy.ValidateTimeout = 5 * time.Second
	}
	if c.Proxy.ValidateConcurrency <= 0 {
		c.Proxy.ValidateConcurrency = 10
	}
	if c.Browser.LaunchTimeout <= 0 {
		c.Browser.LaunchTimeout = 30 * time.Second
	}
	if c.Network.NavigationTimeout <= 0 {
		c.Network.NavigationTimeout = 90 * time.Second
	}
	if c.Network.ConfirmTimeout <= 0 {
		c.Network.ConfirmTimeout = 30 * time.Second
	}
}
