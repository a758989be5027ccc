package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/svckit/logger"
)

// FileSystem abstracts the file operations the loader needs.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// OSFileSystem reads from the real filesystem and process environment.
type OSFileSystem struct{}

func (OSFileSystem) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (OSFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// LoaderConfig holds the loader's dependencies and explicit file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string
	EnvFile    string
	SearchDirs []string
}

// LoaderOption configures LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem replaces the filesystem, mainly for tests.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile uses path instead of searching for a config file.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile uses path instead of searching for a .env file.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithSearchDirs sets the directories searched, in order, for config and
// .env files.
func WithSearchDirs(dirs ...string) LoaderOption {
	return func(lc *LoaderConfig) { lc.SearchDirs = dirs }
}

// ResolvedFiles holds the files the loader settled on. Empty means none.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

var configExtensions = []string{"yml", "yaml", "json", "toml"}

// Resolve picks the config and .env files for name. Explicit paths win;
// otherwise each search directory is tried for <name>.<ext>, config.<ext>,
// .env.<name> and .env.
func Resolve(name string, lc LoaderConfig) ResolvedFiles {
	resolved := ResolvedFiles{ConfigFile: lc.ConfigFile, EnvFile: lc.EnvFile}
	dirs := lc.SearchDirs
	if len(dirs) == 0 {
		dirs = defaultSearchDirs(name)
	}

	if resolved.ConfigFile == "" {
		resolved.ConfigFile = firstExisting(lc.FileSystem, dirs, configCandidates(name))
	}
	if resolved.EnvFile == "" {
		resolved.EnvFile = firstExisting(lc.FileSystem, dirs, []string{".env." + name, ".env"})
	}
	return resolved
}

func defaultSearchDirs(name string) []string {
	return []string{
		".",
		"./config",
		filepath.Join(".", "cmd", name),
		"..",
		"../config",
	}
}

func configCandidates(name string) []string {
	var files []string
	for _, base := range []string{name, "config"} {
		for _, ext := range configExtensions {
			files = append(files, base+"."+ext)
		}
	}
	return files
}

func firstExisting(fs FileSystem, dirs, files []string) string {
	for _, file := range files {
		for _, dir := range dirs {
			path := filepath.Join(dir, file)
			if fs.Exists(path) {
				return path
			}
		}
	}
	return ""
}

// LoadConfig fills cfg for the named service. The config file is read first,
// then the .env file is loaded into the process environment, then every
// environment variable is bound under its nested key variants so that
// REGISTRY_FILTER_CACHE_TTL reaches registry.filter_cache_ttl. A missing
// file is not an error; an unreadable one is logged and skipped.
func LoadConfig(name string, cfg any, opts ...LoaderOption) error {
	lc := LoaderConfig{FileSystem: OSFileSystem{}}
	for _, opt := range opts {
		opt(&lc)
	}
	files := Resolve(name, lc)
	return load(name, cfg, files, lc.FileSystem)
}

func load(name string, cfg any, files ResolvedFiles, fs FileSystem) error {
	log := logger.WithComponent("config")
	v := viper.New()

	if files.ConfigFile != "" && fs.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			log.Warn("config file not loaded", logger.Fields("file", files.ConfigFile, logger.FieldError, err.Error()))
		} else {
			log.Debug("config file loaded", logger.Fields("file", files.ConfigFile))
		}
	}

	if files.EnvFile != "" && fs.Exists(files.EnvFile) {
		if err := fs.LoadEnv(files.EnvFile); err != nil {
			log.Warn(".env file not loaded", logger.Fields("file", files.EnvFile, logger.FieldError, err.Error()))
		}
	}

	v.AutomaticEnv()
	bindEnv(v, os.Environ())

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config for %s: %w", name, err)
	}
	return nil
}

// bindEnv sets every KEY=value pair under each of its key variants.
func bindEnv(v *viper.Viper, environ []string) {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		for _, variant := range envKeyVariants(key) {
			v.Set(variant, value)
		}
	}
}

// envKeyVariants lists the nested keys an environment variable may mean.
//
//	CONSOLE_AUTH_SECRET -> console_auth_secret, console.auth.secret,
//	                       console.auth_secret, console_auth.secret
func envKeyVariants(envKey string) []string {
	lower := strings.ToLower(envKey)
	parts := strings.Split(lower, "_")
	if len(parts) == 1 {
		return []string{lower}
	}

	variants := []string{lower, strings.Join(parts, ".")}
	for i := 1; i < len(parts); i++ {
		variants = append(variants, strings.Join(parts[:i], ".")+"."+strings.Join(parts[i:], "_"))
		variants = append(variants, strings.Join(parts[:i], "_")+"."+strings.Join(parts[i:], "."))
	}

	seen := make(map[string]bool, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
