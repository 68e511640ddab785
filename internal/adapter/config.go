package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	API       APIConfig         `mapstructure:"api"`
	Store     StoreConfig       `mapstructure:"store"`
	Sync      SyncConfig        `mapstructure:"sync"`
	Modules   map[string]string `mapstructure:"modules"` // module -> endpoint overrides
	Dashboard DashboardConfig   `mapstructure:"dashboard"`
	Logging   LoggingConfig     `mapstructure:"logging"`
}

// APIConfig holds the REST backend configuration
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	TokenFile      string        `mapstructure:"token_file"` // re-read on every request
	Timeout        time.Duration `mapstructure:"timeout"`
	ProbePath      string        `mapstructure:"probe_path"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
	StartOffline   bool          `mapstructure:"start_offline"`
	WatchTokenFile bool          `mapstructure:"watch_token_file"`
}

// StoreConfig selects the durable store backend
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "bolt", "sqlite" or "memory"
	Path   string `mapstructure:"path"`
}

// SyncConfig holds coordinator tuning
type SyncConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	MaxRetries   int           `mapstructure:"max_retries"`
	GCAge        time.Duration `mapstructure:"gc_age"`
	GCMinRetries int           `mapstructure:"gc_min_retries"`
}

// DashboardConfig holds the progress WebSocket server configuration
type DashboardConfig struct {
	Addr           string   `mapstructure:"addr"`
	OriginPatterns []string `mapstructure:"origin_patterns"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000/api",
			Timeout:        30 * time.Second,
			ProbePath:      "/health",
			ProbeInterval:  30 * time.Second,
			WatchTokenFile: true,
		},
		Store: StoreConfig{
			Driver: "bolt",
			Path:   filepath.Join(defaultDataPath(), "offline.db"),
		},
		Sync: SyncConfig{
			Interval:     5 * time.Minute,
			MaxRetries:   3,
			GCAge:        24 * time.Hour,
			GCMinRetries: 2,
		},
		Modules: map[string]string{},
		Dashboard: DashboardConfig{
			Addr: "127.0.0.1:7878",
		},
		Logging: LoggingConfig{
			File:       filepath.Join(defaultDataPath(), "tsoam.log"),
			Level:      "INFO",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "tsoam")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "tsoam")
	}
}

// DefaultConfigPath returns the default config directory for the current OS
func DefaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "tsoam")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "tsoam")
	}
}

// newViper registers defaults so every key is visible to env overrides.
func newViper() *viper.Viper {
	v := viper.New()
	def := DefaultConfig()

	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.token", def.API.Token)
	v.SetDefault("api.token_file", def.API.TokenFile)
	v.SetDefault("api.timeout", def.API.Timeout)
	v.SetDefault("api.probe_path", def.API.ProbePath)
	v.SetDefault("api.probe_interval", def.API.ProbeInterval)
	v.SetDefault("api.start_offline", def.API.StartOffline)
	v.SetDefault("api.watch_token_file", def.API.WatchTokenFile)

	v.SetDefault("store.driver", def.Store.Driver)
	v.SetDefault("store.path", def.Store.Path)

	v.SetDefault("sync.interval", def.Sync.Interval)
	v.SetDefault("sync.max_retries", def.Sync.MaxRetries)
	v.SetDefault("sync.gc_age", def.Sync.GCAge)
	v.SetDefault("sync.gc_min_retries", def.Sync.GCMinRetries)

	v.SetDefault("modules", def.Modules)

	v.SetDefault("dashboard.addr", def.Dashboard.Addr)
	v.SetDefault("dashboard.origin_patterns", def.Dashboard.OriginPatterns)

	v.SetDefault("logging.file", def.Logging.File)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.max_size_mb", def.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", def.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", def.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", def.Logging.Compress)

	// Environment variable overrides, e.g. TSOAM_API_BASE_URL
	v.SetEnvPrefix("TSOAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads configuration from file and environment. An empty
// configFile searches the default config directory and the working directory.
func LoadConfig(configFile string) (*Config, error) {
	v := newViper()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultConfigPath())
		v.AddConfigPath(".")
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Logging.File = expandHome(cfg.Logging.File)
	cfg.API.TokenFile = expandHome(cfg.API.TokenFile)

	return cfg, nil
}

// SaveConfig writes cfg as YAML to path, or to the default location when empty.
func SaveConfig(cfg *Config, path string) (string, error) {
	if path == "" {
		path = filepath.Join(DefaultConfigPath(), "config.yaml")
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()

	// Set fields individually to ensure correct key names (snake_case)
	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.token", cfg.API.Token)
	v.Set("api.token_file", cfg.API.TokenFile)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("api.probe_path", cfg.API.ProbePath)
	v.Set("api.probe_interval", cfg.API.ProbeInterval.String())
	v.Set("api.start_offline", cfg.API.StartOffline)
	v.Set("api.watch_token_file", cfg.API.WatchTokenFile)

	v.Set("store.driver", cfg.Store.Driver)
	v.Set("store.path", cfg.Store.Path)

	v.Set("sync.interval", cfg.Sync.Interval.String())
	v.Set("sync.max_retries", cfg.Sync.MaxRetries)
	v.Set("sync.gc_age", cfg.Sync.GCAge.String())
	v.Set("sync.gc_min_retries", cfg.Sync.GCMinRetries)

	v.Set("modules", cfg.Modules)

	v.Set("dashboard.addr", cfg.Dashboard.Addr)
	v.Set("dashboard.origin_patterns", cfg.Dashboard.OriginPatterns)

	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.Set("logging.max_backups", cfg.Logging.MaxBackups)
	v.Set("logging.max_age_days", cfg.Logging.MaxAgeDays)
	v.Set("logging.compress", cfg.Logging.Compress)

	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}

// IsConfigured returns true if the API base URL is set
func (c *Config) IsConfigured() bool {
	return c.API.BaseURL != ""
}

// expandHome replaces a leading ~ with the user's home directory
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
