package framework

import (
	"fmt"
	"time"

	"github.com/kbukum/svckit/config"
	"github.com/kbukum/svckit/console"
	"github.com/kbukum/svckit/filter"
	"github.com/kbukum/svckit/observability"
	"github.com/kbukum/svckit/version"
)

// Config is the full framework configuration.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Registry      RegistryConfig      `yaml:"registry" mapstructure:"registry"`
	Tracker       TrackerConfig       `yaml:"tracker" mapstructure:"tracker"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Console       console.Config      `yaml:"console" mapstructure:"console"`
}

// RegistryConfig tunes the service registry.
type RegistryConfig struct {
	// FilterCacheTTL is how long an unused compiled filter stays cached.
	FilterCacheTTL     time.Duration `yaml:"filter_cache_ttl" mapstructure:"filter_cache_ttl" validate:"gte=0"`
	FilterCacheCleanup time.Duration `yaml:"filter_cache_cleanup" mapstructure:"filter_cache_cleanup" validate:"gte=0"`
}

// TrackerConfig tunes trackers created through the framework.
type TrackerConfig struct {
	// DefaultWaitTimeout bounds Lookup. Zero waits until the context ends.
	DefaultWaitTimeout time.Duration `yaml:"default_wait_timeout" mapstructure:"default_wait_timeout" validate:"gte=0"`
}

// ObservabilityConfig configures OTLP export of traces and metrics.
type ObservabilityConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure   bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval" validate:"gte=0"`
}

// ApplyDefaults fills unset fields across every section. An empty version
// falls back to the binary's build identity.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = version.Get().Short()
	}
	c.ServiceConfig.ApplyDefaults()
	if c.Registry.FilterCacheTTL == 0 {
		c.Registry.FilterCacheTTL = filter.DefaultCacheExpiration
	}
	if c.Registry.FilterCacheCleanup == 0 {
		c.Registry.FilterCacheCleanup = filter.DefaultCacheCleanup
	}
	if c.Tracker.DefaultWaitTimeout == 0 {
		c.Tracker.DefaultWaitTimeout = 30 * time.Second
	}
	if c.Observability.Enabled && c.Observability.Endpoint == "" {
		c.Observability.Endpoint = observability.DefaultEndpoint
	}
	if c.Observability.Enabled && c.Observability.SampleRate == 0 {
		c.Observability.SampleRate = 1
	}
	if c.Observability.Interval == 0 {
		c.Observability.Interval = observability.DefaultInterval
	}
	if c.Console.Enabled {
		c.Console.ApplyDefaults()
	}
}

// Validate checks struct tags on every section, then the logging settings.
func (c *Config) Validate() error {
	if err := config.Validate(c); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return nil
}

// LoadConfig reads the named service's configuration from files and the
// environment, applies defaults and validates it.
func LoadConfig(name string, opts ...config.LoaderOption) (*Config, error) {
	var cfg Config
	if err := config.LoadConfig(name, &cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
