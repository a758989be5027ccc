package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	apperrors "github.com/kbukum/svckit/errors"
	"github.com/kbukum/svckit/logger"
)

func loggingLevel(level string) logger.Config {
	return logger.Config{Level: level}
}

func TestServiceConfigApplyDefaults(t *testing.T) {
	tests := []struct {
		name      string
		cfg       ServiceConfig
		wantEnv   string
		wantDebug bool
		wantLevel string
	}{
		{"empty environment", ServiceConfig{Name: "svc"}, EnvDevelopment, true, "debug"},
		{"production", ServiceConfig{Name: "svc", Environment: EnvProduction}, EnvProduction, false, "info"},
		{"explicit level kept", ServiceConfig{Name: "svc", Environment: EnvDevelopment, Logging: loggingLevel("warn")}, EnvDevelopment, true, "warn"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.ApplyDefaults()
			if cfg.Environment != tc.wantEnv {
				t.Errorf("environment = %q, want %q", cfg.Environment, tc.wantEnv)
			}
			if cfg.Debug != tc.wantDebug {
				t.Errorf("debug = %v, want %v", cfg.Debug, tc.wantDebug)
			}
			if cfg.Logging.Level != tc.wantLevel {
				t.Errorf("logging.level = %q, want %q", cfg.Logging.Level, tc.wantLevel)
			}
			if cfg.Logging.ServiceName != "svc" {
				t.Errorf("logging.service_name = %q, want svc", cfg.Logging.ServiceName)
			}
		})
	}
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr string
	}{
		{"valid", ServiceConfig{Name: "svc", Environment: EnvStaging}, ""},
		{"missing name", ServiceConfig{Environment: EnvProduction}, "name: is required"},
		{"bad environment", ServiceConfig{Name: "svc", Environment: "qa"}, "environment: must be one of"},
		{"bad logging", ServiceConfig{Name: "svc", Environment: EnvStaging, Logging: loggingLevel("loud")}, "logging.level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			if cfg.Logging.Level == "" {
				cfg.Logging.ApplyDefaults()
			} else {
				cfg.Logging.Format = "json"
			}
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

type nested struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Console       struct {
		Addr string `mapstructure:"addr" validate:"required,hostname_port"`
	} `mapstructure:"console"`
	Workers int `mapstructure:"workers" validate:"min=1"`
}

func TestValidateReportsConfigKeys(t *testing.T) {
	var cfg nested
	cfg.Environment = EnvDevelopment

	err := Validate(&cfg)
	if !apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	appErr, _ := apperrors.AsAppError(err)
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok {
		t.Fatalf("missing field details: %#v", appErr.Details)
	}
	var got []string
	for _, f := range fields {
		got = append(got, f.Field)
	}
	for _, want := range []string{"name", "console.addr", "workers"} {
		if !slices.Contains(got, want) {
			t.Errorf("fields %v missing %q", got, want)
		}
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.yml")
	content := `
name: orders
environment: staging
version: "1.2.0"
logging:
  level: warn
  format: json
console:
  addr: "127.0.0.1:9090"
workers: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var cfg nested
	if err := LoadConfig("orders", &cfg, WithConfigFile(path), WithSearchDirs(dir)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Name != "orders" || cfg.Environment != EnvStaging || cfg.Version != "1.2.0" {
		t.Errorf("unexpected service config %+v", cfg.ServiceConfig)
	}
	if cfg.Logging.Level != "warn" || cfg.Console.Addr != "127.0.0.1:9090" || cfg.Workers != 3 {
		t.Errorf("unexpected nested values %+v", cfg)
	}
	if err := Validate(&cfg); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("name: from-file\nworkers: 1\n"), 0o644)
	t.Setenv("WORKERS", "8")
	t.Setenv("CONSOLE_ADDR", "localhost:7000")

	var cfg nested
	if err := LoadConfig("svc", &cfg, WithSearchDirs(dir)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Name != "from-file" {
		t.Errorf("name = %q, want from-file", cfg.Name)
	}
	if cfg.Workers != 8 || cfg.Console.Addr != "localhost:7000" {
		t.Errorf("env overrides not applied: workers=%d addr=%q", cfg.Workers, cfg.Console.Addr)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg nested
	if err := LoadConfig("nowhere", &cfg, WithConfigFile("/nonexistent/path.yml"), WithSearchDirs(t.TempDir())); err != nil {
		t.Fatalf("missing file should not fail, got %v", err)
	}
}

type mockFS struct {
	files  map[string]bool
	loaded []string
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error {
	m.loaded = append(m.loaded, path)
	return nil
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		files      []string
		lc         LoaderConfig
		wantConfig string
		wantEnv    string
	}{
		{
			name:       "service file before generic",
			files:      []string{"config/config.yml", "config/orders.yaml"},
			lc:         LoaderConfig{SearchDirs: []string{".", "config"}},
			wantConfig: "config/orders.yaml",
		},
		{
			name:       "first directory wins",
			files:      []string{"a/config.json", "b/config.json"},
			lc:         LoaderConfig{SearchDirs: []string{"a", "b"}},
			wantConfig: "a/config.json",
		},
		{
			name:    "service env before generic",
			files:   []string{".env", ".env.orders"},
			lc:      LoaderConfig{SearchDirs: []string{"."}},
			wantEnv: ".env.orders",
		},
		{
			name:       "explicit paths win",
			files:      []string{"config.yml"},
			lc:         LoaderConfig{SearchDirs: []string{"."}, ConfigFile: "/etc/x.yml", EnvFile: "/etc/.env"},
			wantConfig: "/etc/x.yml",
			wantEnv:    "/etc/.env",
		},
		{
			name:       "default dirs include cmd",
			files:      []string{"cmd/orders/orders.toml"},
			lc:         LoaderConfig{},
			wantConfig: "cmd/orders/orders.toml",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := &mockFS{files: map[string]bool{}}
			for _, f := range tc.files {
				fs.files[filepath.Clean(f)] = true
			}
			lc := tc.lc
			lc.FileSystem = fs
			got := Resolve("orders", lc)
			if got.ConfigFile != tc.wantConfig {
				t.Errorf("config = %q, want %q", got.ConfigFile, tc.wantConfig)
			}
			if got.EnvFile != tc.wantEnv {
				t.Errorf("env = %q, want %q", got.EnvFile, tc.wantEnv)
			}
		})
	}
}

func TestLoadConfigLoadsEnvFile(t *testing.T) {
	fs := &mockFS{files: map[string]bool{".env": true}}
	var cfg nested
	if err := LoadConfig("svc", &cfg, WithFileSystem(fs), WithSearchDirs(".")); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !slices.Equal(fs.loaded, []string{".env"}) {
		t.Errorf("loaded env files = %v", fs.loaded)
	}
}

func TestEnvKeyVariants(t *testing.T) {
	tests := []struct {
		key  string
		want []string
	}{
		{"PORT", []string{"port"}},
		{"CONSOLE_ADDR", []string{"console_addr", "console.addr"}},
		{"CONSOLE_AUTH_SECRET", []string{"console_auth_secret", "console.auth.secret", "console.auth_secret", "console_auth.secret"}},
		{"REGISTRY_FILTER_CACHE_TTL", []string{"registry.filter_cache_ttl"}},
	}

	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			got := envKeyVariants(tc.key)
			for _, w := range tc.want {
				if !slices.Contains(got, w) {
					t.Errorf("variants %v missing %q", got, w)
				}
			}
			seen := map[string]bool{}
			for _, v := range got {
				if seen[v] {
					t.Errorf("duplicate variant %q", v)
				}
				seen[v] = true
			}
		})
	}
}
