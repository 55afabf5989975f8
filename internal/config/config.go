// Package config handles configuration loading and defaults for chokewatch.
// Configuration is loaded from XDG-compliant paths (typically
// ~/.config/chokewatch/config.yaml), then from an optional .env file beside
// it, then from CHOKEWATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"chokewatch/internal/fsutil"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHOKEWATCH_"

// Config represents the application configuration.
type Config struct {
	// DataDir overrides the default data directory (~/.chokewatch)
	DataDir string `yaml:"data_dir,omitempty"`

	// Worker configures the background worker
	Worker WorkerConfig `yaml:"worker,omitempty"`

	// Push configures the push ingresses
	Push PushConfig `yaml:"push,omitempty"`

	// Cache configures which caches are purged on activation
	Cache CacheConfig `yaml:"cache,omitempty"`

	// Notifications configures desktop notifications
	Notifications NotificationConfig `yaml:"notifications,omitempty"`

	// Log configures the worker log
	Log LogConfig `yaml:"log,omitempty"`

	// Theme customizes the visual appearance of the settings screen
	Theme ThemeConfig `yaml:"theme,omitempty"`

	// Keys customizes keyboard shortcuts of the settings screen
	Keys KeysConfig `yaml:"keys,omitempty"`
}

// WorkerConfig defines background worker settings.
type WorkerConfig struct {
	// Version overrides the build version recorded in the registry
	Version string `yaml:"version,omitempty"`

	// LookupTimeout bounds the quiet-hours read per notification ("2s")
	LookupTimeout string `yaml:"lookup_timeout,omitempty"`

	// TakeoverTimeout bounds how long a new worker waits for the previous
	// one to release the HTTP address ("20s")
	TakeoverTimeout string `yaml:"takeover_timeout,omitempty"`

	// PurgeCaches clears stale caches when a worker activates
	PurgeCaches bool `yaml:"purge_caches,omitempty"` // default: true
}

// LookupTimeoutDuration parses LookupTimeout. Empty or invalid values
// yield zero, which callers treat as the built-in default.
func (w WorkerConfig) LookupTimeoutDuration() time.Duration {
	return parseDuration(w.LookupTimeout)
}

// TakeoverTimeoutDuration parses TakeoverTimeout like LookupTimeoutDuration.
func (w WorkerConfig) TakeoverTimeoutDuration() time.Duration {
	return parseDuration(w.TakeoverTimeout)
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// PushConfig defines the push ingresses.
type PushConfig struct {
	HTTP  HTTPConfig  `yaml:"http,omitempty"`
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// HTTPConfig defines the HTTP ingress.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"` // default: true
	Addr    string `yaml:"addr,omitempty"`    // default: "127.0.0.1:7878"
}

// RedisConfig defines the Redis connection shared by the pub/sub ingress
// and the Redis cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	Addr     string `yaml:"addr,omitempty"` // default: "127.0.0.1:6379"
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Channel  string `yaml:"channel,omitempty"` // default: "chokewatch:push"
}

// CacheConfig defines the caches purged on activation.
type CacheConfig struct {
	// DirEnabled purges <data_dir>/cache
	DirEnabled bool `yaml:"dir_enabled,omitempty"` // default: true

	// RedisPrefix purges keys under this prefix when Redis is enabled
	RedisPrefix string `yaml:"redis_prefix,omitempty"`
}

// NotificationConfig defines desktop notification settings.
type NotificationConfig struct {
	// AppName is the application name shown by the desktop
	AppName string `yaml:"app_name,omitempty"`

	// Sound enables notification sounds
	Sound bool `yaml:"sound,omitempty"`
}

// LogConfig defines worker logging.
type LogConfig struct {
	Level      string `yaml:"level,omitempty"` // default: "info"
	File       string `yaml:"file,omitempty"`  // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

// ThemeConfig defines color and style settings.
type ThemeConfig struct {
	// Primary color for focused elements (hex, e.g., "#FF5733")
	Primary string `yaml:"primary,omitempty"`

	// Accent color for highlights (hex)
	Accent string `yaml:"accent,omitempty"`

	// Muted color for secondary text (hex)
	Muted string `yaml:"muted,omitempty"`

	// Background color (hex)
	Background string `yaml:"background,omitempty"`

	// Text color (hex)
	Text string `yaml:"text,omitempty"`
}

// KeysConfig defines customizable keyboard shortcuts.
// Each field accepts a comma-separated list of key bindings.
// Examples: "q,ctrl+c", "tab", "j,down"
type KeysConfig struct {
	Quit      string `yaml:"quit,omitempty"`       // default: "q,ctrl+c"
	Help      string `yaml:"help,omitempty"`       // default: "?"
	NextField string `yaml:"next_field,omitempty"` // default: "tab,right,l"
	PrevField string `yaml:"prev_field,omitempty"` // default: "shift+tab,left,h"
	Up        string `yaml:"up,omitempty"`         // default: "k,up"
	Down      string `yaml:"down,omitempty"`       // default: "j,down"
	Save      string `yaml:"save,omitempty"`       // default: "enter,s"
	Clear     string `yaml:"clear,omitempty"`      // default: "c"
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Worker: WorkerConfig{
			LookupTimeout:   "2s",
			TakeoverTimeout: "20s",
			PurgeCaches:     true,
		},
		Push: PushConfig{
			HTTP: HTTPConfig{
				Enabled: true,
				Addr:    "127.0.0.1:7878",
			},
			Redis: RedisConfig{
				Enabled: false,
				Addr:    "127.0.0.1:6379",
				Channel: "chokewatch:push",
			},
		},
		Cache: CacheConfig{
			DirEnabled:  true,
			RedisPrefix: "chokewatch:cache:",
		},
		Notifications: NotificationConfig{
			AppName: "Chokepoint Alerts",
			Sound:   false,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Theme: ThemeConfig{
			Primary: "#F59E0B", // Amber
			Accent:  "#10B981", // Emerald
			Muted:   "#6B7280", // Gray
		},
	}
}

// defaultDataDir returns the default data directory path.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chokewatch"
	}
	return filepath.Join(home, ".chokewatch")
}

// configDir returns the configuration directory path (XDG compliant).
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chokewatch")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "chokewatch")
}

// Path returns the path to the config file.
func Path() string {
	dir := configDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads configuration from disk, merging with defaults, and applies
// environment overrides. If no config file exists, the defaults are used.
func Load() (*Config, error) {
	cfg := Default()

	path := Path()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		// Variables already set in the environment win over .env.
		if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var userCfg Config
	if err := yaml.Unmarshal(data, &userCfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	var doc yaml.Node
	_ = yaml.Unmarshal(data, &doc) // best-effort; fall back to conservative merge if this fails

	c.mergeFromYAML(&userCfg, &doc)
	return nil
}

// applyEnv overrides fields from CHOKEWATCH_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATA_DIR":         &c.DataDir,
		"WORKER_VERSION":   &c.Worker.Version,
		"LOOKUP_TIMEOUT":   &c.Worker.LookupTimeout,
		"TAKEOVER_TIMEOUT": &c.Worker.TakeoverTimeout,
		"HTTP_ADDR":        &c.Push.HTTP.Addr,
		"REDIS_ADDR":       &c.Push.Redis.Addr,
		"REDIS_PASSWORD":   &c.Push.Redis.Password,
		"REDIS_CHANNEL":    &c.Push.Redis.Channel,
		"LOG_LEVEL":        &c.Log.Level,
		"LOG_FILE":         &c.Log.File,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"HTTP_ENABLED":  &c.Push.HTTP.Enabled,
		"REDIS_ENABLED": &c.Push.Redis.Enabled,
		"PURGE_CACHES":  &c.Worker.PurgeCaches,
	}
	for name, dst := range bools {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
	}

	if v, ok := lookup(EnvPrefix + "REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err)
		}
		c.Push.Redis.DB = n
	}
	return nil
}

// mergeNonEmpty applies non-empty values from other to c.
// It intentionally does not touch booleans (those require presence-aware merging).
func (c *Config) mergeNonEmpty(other *Config) {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}

	setString(&c.DataDir, other.DataDir)

	setString(&c.Worker.Version, other.Worker.Version)
	setString(&c.Worker.LookupTimeout, other.Worker.LookupTimeout)
	setString(&c.Worker.TakeoverTimeout, other.Worker.TakeoverTimeout)

	setString(&c.Push.HTTP.Addr, other.Push.HTTP.Addr)
	setString(&c.Push.Redis.Addr, other.Push.Redis.Addr)
	setString(&c.Push.Redis.Password, other.Push.Redis.Password)
	setString(&c.Push.Redis.Channel, other.Push.Redis.Channel)
	setInt(&c.Push.Redis.DB, other.Push.Redis.DB)

	setString(&c.Cache.RedisPrefix, other.Cache.RedisPrefix)

	setString(&c.Notifications.AppName, other.Notifications.AppName)

	setString(&c.Log.Level, other.Log.Level)
	setString(&c.Log.File, other.Log.File)
	setInt(&c.Log.MaxSizeMB, other.Log.MaxSizeMB)
	setInt(&c.Log.MaxBackups, other.Log.MaxBackups)

	setString(&c.Theme.Primary, other.Theme.Primary)
	setString(&c.Theme.Accent, other.Theme.Accent)
	setString(&c.Theme.Muted, other.Theme.Muted)
	setString(&c.Theme.Background, other.Theme.Background)
	setString(&c.Theme.Text, other.Theme.Text)

	setString(&c.Keys.Quit, other.Keys.Quit)
	setString(&c.Keys.Help, other.Keys.Help)
	setString(&c.Keys.NextField, other.Keys.NextField)
	setString(&c.Keys.PrevField, other.Keys.PrevField)
	setString(&c.Keys.Up, other.Keys.Up)
	setString(&c.Keys.Down, other.Keys.Down)
	setString(&c.Keys.Save, other.Keys.Save)
	setString(&c.Keys.Clear, other.Keys.Clear)
}

func (c *Config) mergeFromYAML(other *Config, doc *yaml.Node) {
	c.mergeNonEmpty(other)

	// Without a document we cannot tell an omitted boolean from false.
	if doc == nil || len(doc.Content) == 0 {
		return
	}

	bools := []struct {
		path []string
		dst  *bool
		src  bool
	}{
		{[]string{"worker", "purge_caches"}, &c.Worker.PurgeCaches, other.Worker.PurgeCaches},
		{[]string{"push", "http", "enabled"}, &c.Push.HTTP.Enabled, other.Push.HTTP.Enabled},
		{[]string{"push", "redis", "enabled"}, &c.Push.Redis.Enabled, other.Push.Redis.Enabled},
		{[]string{"cache", "dir_enabled"}, &c.Cache.DirEnabled, other.Cache.DirEnabled},
		{[]string{"notifications", "sound"}, &c.Notifications.Sound, other.Notifications.Sound},
	}
	for _, b := range bools {
		if yamlHasPath(doc, b.path...) {
			*b.dst = b.src
		}
	}

	// An explicit empty prefix disables the Redis cache purge.
	if yamlHasPath(doc, "cache", "redis_prefix") {
		c.Cache.RedisPrefix = other.Cache.RedisPrefix
	}
	// db 0 is a valid choice, not an omission.
	if yamlHasPath(doc, "push", "redis", "db") {
		c.Push.Redis.DB = other.Push.Redis.DB
	}
}

func yamlHasPath(doc *yaml.Node, path ...string) bool {
	if doc == nil || len(path) == 0 {
		return false
	}

	// Document -> root mapping.
	n := doc
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	for _, key := range path {
		if n == nil || n.Kind != yaml.MappingNode {
			return false
		}
		var next *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			v := n.Content[i+1]
			if k.Kind == yaml.ScalarNode && k.Value == key {
				next = v
				break
			}
		}
		if next == nil {
			return false
		}
		n = next
	}
	return true
}

// Save writes the configuration to the config file. An existing file is
// kept next to it as config.yaml.bak.
func (c *Config) Save() (string, error) {
	path := Path()
	if path == "" {
		return "", errors.New("no config directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}

	fsutil.BestEffortBackup(path, 0600)
	if err := fsutil.WriteFileAtomic(path, data, 0600); err != nil {
		return "", err
	}
	return path, nil
}

// GetDataDir returns the resolved data directory path.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return defaultDataDir()
	}
	return expandHome(c.DataDir)
}

// LogFile returns the resolved log file path, or "" for stderr.
func (c *Config) LogFile() string {
	if c.Log.File == "" {
		return ""
	}
	return expandHome(c.Log.File)
}

func expandHome(p string) string {
	if p == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return p
	}

	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, err := os.UserHomeDir()
		if err == nil {
			trimmed := strings.TrimPrefix(p, "~/")
			trimmed = strings.TrimPrefix(trimmed, `~\`)
			return filepath.Join(home, trimmed)
		}
	}
	return p
}
