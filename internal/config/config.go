package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// keyDelim separates koanf key levels. Manifest and entry keys routinely
	// contain dots and slashes so neither can be used.
	keyDelim = "::"

	envPrefix = "ASSETKIT_"
)

// Config is the external configuration consumed by the bundle assembler.
type Config struct {
	Env     Env     `koanf:"env"`
	Enabled Enabled `koanf:"enabled"`
	Paths   Paths   `koanf:"paths"`

	// Entry maps a bundle name to one or more source paths relative to the
	// assets path, e.g. app: [./scripts/main.js, ./styles/main.scss].
	Entry map[string][]string `koanf:"entry"`

	// PublicPath is the URL prefix the output directory is served from.
	PublicPath string `koanf:"publicPath"`

	// CacheBusting is the hashed filename pattern used when cache busting is enabled.
	CacheBusting string `koanf:"cacheBusting"`

	// Manifest seeds the assets manifest with existing entries.
	Manifest map[string]string `koanf:"manifest"`

	// DevURL is the application the watch server proxies to, e.g. http://example.test
	DevURL    string    `koanf:"devUrl"`
	DevServer DevServer `koanf:"devServer"`

	// Targets lists the script targets handed to the transpile step (es2017, chrome58, ...).
	Targets []string `koanf:"targets"`

	// Global describes the library exposed as a page global rather than bundled.
	Global Global `koanf:"global"`
}

type Env struct {
	Production  bool `koanf:"production"`
	Development bool `koanf:"development"`
}

type Enabled struct {
	SourceMaps   bool `koanf:"sourceMaps"`
	CacheBusting bool `koanf:"cacheBusting"`
	Optimize     bool `koanf:"optimize"`
	Watcher      bool `koanf:"watcher"`
}

type Paths struct {
	Root   string `koanf:"root"`
	Assets string `koanf:"assets"`
	Dist   string `koanf:"dist"`
}

type DevServer struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type Global struct {
	Module   string   `koanf:"module"`
	Variable string   `koanf:"variable"`
	Aliases  []string `koanf:"aliases"`
}

// Option adjusts the loaded configuration before flags are derived.
type Option func(k *koanf.Koanf) error

// WithProduction forces the production environment when enabled is true.
func WithProduction(enabled bool) Option {
	return func(k *koanf.Koanf) error {
		if !enabled {
			return nil
		}
		return k.Set(key("env", "production"), true)
	}
}

// WithWatcher forces the watcher feature flag when enabled is true.
func WithWatcher(enabled bool) Option {
	return func(k *koanf.Koanf) error {
		if !enabled {
			return nil
		}
		return k.Set(key("enabled", "watcher"), true)
	}
}

// Load reads the configuration file at path, applies ASSETKIT_ environment
// overrides and the given options, then derives unset flags and defaults.
// A missing file is not an error, the defaults and environment still apply.
func Load(path string, opts ...Option) (*Config, error) {
	k := koanf.New(keyDelim)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			parser, err := parserFor(path)
			if err != nil {
				return nil, err
			}
			if err := k.Load(file.Provider(path), parser); err != nil {
				return nil, fmt.Errorf("failed to load config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, keyDelim, envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	for _, opt := range opts {
		if err := opt(k); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.deriveFlags(k)
	cfg.ApplyDefaults()

	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default() Config {
	cfg := Config{}
	cfg.Env.Development = true
	cfg.Enabled.SourceMaps = true
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Paths.Root == "" {
		c.Paths.Root = "."
	}
	if c.Paths.Assets == "" {
		c.Paths.Assets = "resources/assets"
	}
	if c.Paths.Dist == "" {
		c.Paths.Dist = "dist"
	}
	if c.PublicPath == "" {
		c.PublicPath = "/" + filepath.Base(c.Paths.Dist) + "/"
	}
	if c.CacheBusting == "" {
		c.CacheBusting = "[name]_[hash:8]"
	}
	if c.DevServer.Host == "" {
		c.DevServer.Host = "localhost"
	}
	if c.DevServer.Port == 0 {
		c.DevServer.Port = 3000
	}
	if len(c.Targets) == 0 {
		c.Targets = []string{"es2017"}
	}
	if c.Global.Module == "" {
		c.Global = Global{
			Module:   "jquery",
			Variable: "jQuery",
			Aliases:  []string{"$", "jQuery", "window.jQuery"},
		}
	}
}

// ResolvePaths makes the root absolute and anchors relative assets and dist paths to it.
func (c *Config) ResolvePaths() error {
	root, err := filepath.Abs(c.Paths.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve root path: %w", err)
	}
	c.Paths.Root = root

	if !filepath.IsAbs(c.Paths.Assets) {
		c.Paths.Assets = filepath.Join(root, c.Paths.Assets)
	}
	if !filepath.IsAbs(c.Paths.Dist) {
		c.Paths.Dist = filepath.Join(root, c.Paths.Dist)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Global.Variable == "" {
		return fmt.Errorf("global %q requires a variable name", c.Global.Module)
	}
	if c.DevServer.Port < 0 || c.DevServer.Port > 65535 {
		return fmt.Errorf("dev server port %d out of range", c.DevServer.Port)
	}
	if c.Enabled.CacheBusting && !strings.Contains(c.CacheBusting, "[name]") {
		return errors.New("cache busting pattern must contain [name]")
	}
	return nil
}

// deriveFlags mirrors the environment into flags the file left unset: cache
// busting and optimize follow production, source maps its inverse.
func (c *Config) deriveFlags(k *koanf.Koanf) {
	if !k.Exists(key("env", "development")) {
		c.Env.Development = !c.Env.Production
	}
	if !k.Exists(key("enabled", "cacheBusting")) {
		c.Enabled.CacheBusting = c.Env.Production
	}
	if !k.Exists(key("enabled", "optimize")) {
		c.Enabled.Optimize = c.Env.Production
	}
	if !k.Exists(key("enabled", "sourceMaps")) {
		c.Enabled.SourceMaps = !c.Env.Production
	}
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
}

// canonical restores the camel case of keys that arrive lower cased from the environment.
var canonical = map[string]string{
	"sourcemaps":   "sourceMaps",
	"cachebusting": "cacheBusting",
	"publicpath":   "publicPath",
	"devurl":       "devUrl",
	"devserver":    "devServer",
}

// envKey maps ASSETKIT_ENABLED__CACHEBUSTING to enabled::cacheBusting.
func envKey(s string) string {
	parts := strings.Split(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__")
	for i, part := range parts {
		if c, ok := canonical[part]; ok {
			parts[i] = c
		}
	}
	return strings.Join(parts, keyDelim)
}

func key(parts ...string) string {
	return strings.Join(parts, keyDelim)
}
