package console

import "time"

// Config holds the admin console settings.
type Config struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
	// AuthSecret turns on HS256 bearer auth for every route except /healthz.
	AuthSecret string `yaml:"auth_secret" mapstructure:"auth_secret" validate:"omitempty,min=16"`
	// AuthIssuer, when set, must match the token's iss claim.
	AuthIssuer      string        `yaml:"auth_issuer" mapstructure:"auth_issuer"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// ApplyDefaults fills unset fields. The console binds to loopback unless
// told otherwise.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8089"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}
