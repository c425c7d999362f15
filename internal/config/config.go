// Package config provides layered configuration loading.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// KeyringService is the keyring service tokens are stored under, with
// the API host as the account.
const KeyringService = "pagewise"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the resolved configuration.
type Config struct {
	BaseURL  string        `json:"base_url" yaml:"base_url"`
	Token    string        `json:"-" yaml:"-"`
	PageSize int           `json:"page_size" yaml:"page_size"`
	Format   string        `json:"format" yaml:"format"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
	CacheDir string        `json:"cache_dir" yaml:"cache_dir"`

	// Behavior preferences, overridable by flags
	Stats   *bool `json:"stats,omitempty" yaml:"stats,omitempty"`
	Verbose *int  `json:"verbose,omitempty" yaml:"verbose,omitempty"`

	// Sources tracks where each value came from.
	Sources map[string]string `json:"-" yaml:"-"`

	// Warnings collects skipped files and ignored keys.
	Warnings []string `json:"-" yaml:"-"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceGlobal  Source = "global"
	SourceLocal   Source = "local"
	SourceFile    Source = "file"
	SourceKeyring Source = "keyring"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	BaseURL    string
	Token      string
	PageSize   int
	Format     string
	CacheDir   string
	ConfigFile string
}

// keyringGet is replaced in tests.
var keyringGet = keyring.Get

// Default returns the default configuration.
func Default() *Config {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		if d, err := os.UserCacheDir(); err == nil {
			cacheDir = d
		} else {
			cacheDir = os.TempDir()
		}
	}

	cfg := &Config{
		BaseURL:  "https://api.github.com",
		PageSize: 30,
		Format:   "text",
		Timeout:  30 * time.Second,
		CacheDir: filepath.Join(cacheDir, "pagewise"),
		Sources:  make(map[string]string),
	}
	for _, k := range []string{"base_url", "page_size", "format", "timeout", "cache_dir"} {
		cfg.Sources[k] = string(SourceDefault)
	}
	return cfg
}

// Load resolves configuration.
// Precedence: flags > env > keyring (token only) > --config file > local > global > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	if path := findConfig(GlobalConfigDir()); path != "" {
		loadFromFile(cfg, path, SourceGlobal)
	}
	if dir := LocalConfigDir(); dir != "" {
		if path := findConfig(dir); path != "" {
			loadFromFile(cfg, path, SourceLocal)
		}
	}
	if overrides.ConfigFile != "" {
		if _, err := os.Stat(overrides.ConfigFile); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		loadFromFile(cfg, overrides.ConfigFile, SourceFile)
	}

	LoadFromEnv(cfg)
	ApplyOverrides(cfg, overrides)

	// Env and flags may have moved base_url; the keyring is keyed by host.
	if cfg.Token == "" {
		loadFromKeyring(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no command can work with.
func (cfg *Config) Validate() error {
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		return fmt.Errorf("page_size must be between 1 and 100, got %d", cfg.PageSize)
	}
	switch cfg.Format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown format %q (want text, json, or yaml)", cfg.Format)
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url %q", cfg.BaseURL)
	}
	return nil
}

// Host returns the host of BaseURL.
func (cfg *Config) Host() string {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func (cfg *Config) warnf(format string, args ...any) {
	cfg.Warnings = append(cfg.Warnings, fmt.Sprintf(format, args...))
}

// findConfig returns the first of config.json, config.yaml, config.yml
// present in dir.
func findConfig(dir string) string {
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func decodeFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return nil, err
	}
	var m map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func loadFromFile(cfg *Config, path string, source Source) {
	fileCfg, err := decodeFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			cfg.warnf("skipping malformed config at %s: %v", path, err)
		}
		return
	}

	// base_url and token decide where credentials go, so a config
	// dropped into the working directory may not set them.
	untrusted := source == SourceLocal

	if v, ok := fileCfg["base_url"].(string); ok && v != "" {
		if untrusted {
			cfg.warnf("ignoring base_url %q from %s config at %s", v, source, path)
		} else {
			cfg.BaseURL = NormalizeBaseURL(v)
			cfg.Sources["base_url"] = string(source)
		}
	}
	if v, ok := fileCfg["token"].(string); ok && v != "" {
		if untrusted {
			cfg.warnf("ignoring token from %s config at %s", source, path)
		} else {
			cfg.Token = v
			cfg.Sources["token"] = string(source)
		}
	}
	if v, ok := getInt(fileCfg, "page_size"); ok {
		cfg.PageSize = v
		cfg.Sources["page_size"] = string(source)
	}
	if v, ok := fileCfg["format"].(string); ok && v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(source)
	}
	if v, ok := fileCfg["timeout"].(string); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
			cfg.Sources["timeout"] = string(source)
		} else {
			cfg.warnf("ignoring timeout %q from %s: %v", v, path, err)
		}
	}
	if v, ok := fileCfg["cache_dir"].(string); ok && v != "" {
		cfg.CacheDir = v
		cfg.Sources["cache_dir"] = string(source)
	}
	if v, ok := fileCfg["stats"].(bool); ok {
		cfg.Stats = &v
		cfg.Sources["stats"] = string(source)
	}
	if v, ok := getInt(fileCfg, "verbose"); ok && v >= 0 && v <= 2 {
		cfg.Verbose = &v
		cfg.Sources["verbose"] = string(source)
	}
}

// getInt reads an integer that JSON decodes as float64 and YAML as int.
func getInt(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

func loadFromKeyring(cfg *Config) {
	host := cfg.Host()
	if host == "" {
		return
	}
	token, err := keyringGet(KeyringService, host)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			cfg.warnf("keyring unavailable: %v", err)
		}
		return
	}
	cfg.Token = token
	cfg.Sources["token"] = string(SourceKeyring)
}

// LoadFromEnv loads configuration from environment variables.
// PAGEWISE_TOKEN wins over GITHUB_TOKEN.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PAGEWISE_BASE_URL"); v != "" {
		cfg.BaseURL = NormalizeBaseURL(v)
		cfg.Sources["base_url"] = string(SourceEnv)
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.Token = v
		cfg.Sources["token"] = string(SourceEnv)
	}
	if v := os.Getenv("PAGEWISE_TOKEN"); v != "" {
		cfg.Token = v
		cfg.Sources["token"] = string(SourceEnv)
	}
	if v := os.Getenv("PAGEWISE_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PageSize = n
			cfg.Sources["page_size"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("PAGEWISE_FORMAT"); v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(SourceEnv)
	}
	if v := os.Getenv("PAGEWISE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
			cfg.Sources["timeout"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("PAGEWISE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
		cfg.Sources["cache_dir"] = string(SourceEnv)
	}
	if v := os.Getenv("PAGEWISE_STATS"); v != "" {
		if b, ok := parseEnvBool(v); ok {
			cfg.Stats = &b
			cfg.Sources["stats"] = string(SourceEnv)
		}
	}
}

// parseEnvBool parses a boolean environment variable strictly.
// Unrecognized values are ignored to preserve three-state pointer semantics.
func parseEnvBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	default:
		return false, false
	}
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.BaseURL != "" {
		cfg.BaseURL = NormalizeBaseURL(o.BaseURL)
		cfg.Sources["base_url"] = string(SourceFlag)
	}
	if o.Token != "" {
		cfg.Token = o.Token
		cfg.Sources["token"] = string(SourceFlag)
	}
	if o.PageSize != 0 {
		cfg.PageSize = o.PageSize
		cfg.Sources["page_size"] = string(SourceFlag)
	}
	if o.Format != "" {
		cfg.Format = o.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
	if o.CacheDir != "" {
		cfg.CacheDir = o.CacheDir
		cfg.Sources["cache_dir"] = string(SourceFlag)
	}
}

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "pagewise")
}

// LocalConfigDir is .pagewise in the working directory. Parent
// directories are not searched.
func LocalConfigDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, ".pagewise")
}

// NormalizeBaseURL ensures consistent URL format (no trailing slash).
func NormalizeBaseURL(url string) string {
	return strings.TrimSuffix(url, "/")
}
