// Package config loads pacelog's settings.
//
// Settings come from, in increasing priority: built-in defaults, the TOML
// config file (<data_dir>/config.toml unless --config is given) and
// PACELOG_* environment variables, e.g. PACELOG_SERVER_URL or
// PACELOG_CHUNK_ACTIVITY_KINDS.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// FileName is the config file name inside the data directory.
const FileName = "config.toml"

// Config is the full configuration.
type Config struct {
	DataDir          string        `mapstructure:"data_dir" json:"data_dir" yaml:"data_dir"`
	DBPath           string        `mapstructure:"db_path" json:"db_path" yaml:"db_path"`
	ServerURL        string        `mapstructure:"server_url" json:"server_url" yaml:"server_url"`
	Token            string        `mapstructure:"token" json:"token" yaml:"token"`
	SyncInterval     time.Duration `mapstructure:"sync_interval" json:"sync_interval" yaml:"sync_interval"`
	IconSyncInterval time.Duration `mapstructure:"icon_sync_interval" json:"icon_sync_interval" yaml:"icon_sync_interval"`
	DebounceInterval time.Duration `mapstructure:"debounce_interval" json:"debounce_interval" yaml:"debounce_interval"`

	Chunk     ChunkConfig     `mapstructure:"chunk" json:"chunk" yaml:"chunk"`
	Log       LogConfig       `mapstructure:"log" json:"log" yaml:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard" json:"dashboard" yaml:"dashboard"`
}

// ChunkConfig holds the batch chunk caps per entity.
type ChunkConfig struct {
	Activities    int `mapstructure:"activities" json:"activities" yaml:"activities"`
	ActivityKinds int `mapstructure:"activity_kinds" json:"activity_kinds" yaml:"activity_kinds"`
	Goals         int `mapstructure:"goals" json:"goals" yaml:"goals"`
	Tasks         int `mapstructure:"tasks" json:"tasks" yaml:"tasks"`
	ActivityLogs  int `mapstructure:"activity_logs" json:"activity_logs" yaml:"activity_logs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level" json:"level" yaml:"level"`
	File  string `mapstructure:"file" json:"file" yaml:"file"`
}

// DashboardConfig configures the status dashboard.
type DashboardConfig struct {
	Port int `mapstructure:"port" json:"port" yaml:"port"`
}

// DefaultDataDir returns ~/.pacelog, or .pacelog when there is no home
// directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pacelog"
	}
	return filepath.Join(home, ".pacelog")
}

// SetDefaults registers a default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("db_path", "")
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("token", "")
	v.SetDefault("sync_interval", 5*time.Minute)
	v.SetDefault("icon_sync_interval", 10*time.Minute)
	v.SetDefault("debounce_interval", 2*time.Second)

	v.SetDefault("chunk.activities", 100)
	v.SetDefault("chunk.activity_kinds", 500)
	v.SetDefault("chunk.goals", 100)
	v.SetDefault("chunk.tasks", 100)
	v.SetDefault("chunk.activity_logs", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("dashboard.port", 8090)
}

// Load reads the configuration. If file is empty, config.toml in the data
// directory is used. A missing file is not an error.
func Load(file string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("PACELOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file == "" {
		file = filepath.Join(v.GetString("data_dir"), FileName)
	}
	v.SetConfigFile(file)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.fillPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	cfg.fillPaths()
	return &cfg
}

func (c *Config) fillPaths() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "pacelog.db")
	}
}

// Validate checks values the rest of the program relies on.
func (c *Config) Validate() error {
	if err := ValidateServerURL(c.ServerURL); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"sync_interval":      c.SyncInterval,
		"icon_sync_interval": c.IconSyncInterval,
		"debounce_interval":  c.DebounceInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive (got %s)", name, d)
		}
	}
	for name, n := range map[string]int{
		"chunk.activities":     c.Chunk.Activities,
		"chunk.activity_kinds": c.Chunk.ActivityKinds,
		"chunk.goals":          c.Chunk.Goals,
		"chunk.tasks":          c.Chunk.Tasks,
		"chunk.activity_logs":  c.Chunk.ActivityLogs,
	} {
		if n < 1 {
			return fmt.Errorf("%s must be at least 1 (got %d)", name, n)
		}
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port)
	}
	return nil
}

// ValidateServerURL checks that s is an absolute http(s) URL.
func ValidateServerURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid server_url %q: %w", s, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url must be an http(s) URL (got %q)", s)
	}
	return nil
}

// Path returns the config file path for the configured data directory.
func (c *Config) Path() string {
	return filepath.Join(c.DataDir, FileName)
}

// Write saves cfg as TOML at path, creating the directory if needed.
// Durations are written in Go's duration syntax ("5m0s").
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	doc := map[string]any{
		"data_dir":           cfg.DataDir,
		"db_path":            cfg.DBPath,
		"server_url":         cfg.ServerURL,
		"token":              cfg.Token,
		"sync_interval":      cfg.SyncInterval.String(),
		"icon_sync_interval": cfg.IconSyncInterval.String(),
		"debounce_interval":  cfg.DebounceInterval.String(),
		"chunk": map[string]any{
			"activities":     cfg.Chunk.Activities,
			"activity_kinds": cfg.Chunk.ActivityKinds,
			"goals":          cfg.Chunk.Goals,
			"tasks":          cfg.Chunk.Tasks,
			"activity_logs":  cfg.Chunk.ActivityLogs,
		},
		"log": map[string]any{
			"level": cfg.Log.Level,
			"file":  cfg.Log.File,
		},
		"dashboard": map[string]any{
			"port": cfg.Dashboard.Port,
		},
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return f.Close()
}
