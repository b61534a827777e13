// Package settings loads claudeview configuration from defaults, an optional
// YAML file, a .env file and CLAUDEVIEW_* environment variables, in
// increasing order of precedence.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ConfigDir    = ".claudeview"
	ConfigName   = "config"
	EnvPrefix    = "CLAUDEVIEW"
	DatabaseFile = "notifications.db"
)

// Config holds all application settings.
type Config struct {
	ProjectsDir   string        `mapstructure:"projects_dir"`    // Claude Code projects root
	DataDir       string        `mapstructure:"data_dir"`        // where the inbox database lives
	Listen        string        `mapstructure:"listen"`          // HTTP listen address
	GroupBy       string        `mapstructure:"group_by"`        // "exchange" or "session"
	PageSize      int           `mapstructure:"page_size"`       // default threads per page
	Debounce      time.Duration `mapstructure:"debounce"`        // watcher quiet period
	ViewTTL       time.Duration `mapstructure:"view_ttl"`        // idle viewer sessions expire after this
	HookRateLimit float64       `mapstructure:"hook_rate_limit"` // hook requests per second
	HookBurst     int           `mapstructure:"hook_burst"`
	MCPEnabled    bool          `mapstructure:"mcp_enabled"`
	MCPPort       int           `mapstructure:"mcp_port"`
	ServerURL     string        `mapstructure:"server_url"` // used by the watch client
	Debug         bool          `mapstructure:"debug"`
}

// DatabasePath returns the inbox database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, DatabaseFile)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ProjectsDir == "" {
		errs = append(errs, errors.New("projects_dir is required"))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if c.GroupBy != "exchange" && c.GroupBy != "session" {
		errs = append(errs, fmt.Errorf("group_by must be exchange or session, got %q", c.GroupBy))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page_size must be positive, got %d", c.PageSize))
	}
	if c.HookRateLimit < 0 {
		errs = append(errs, fmt.Errorf("hook_rate_limit must not be negative, got %v", c.HookRateLimit))
	}
	if c.MCPEnabled && (c.MCPPort <= 0 || c.MCPPort > 65535) {
		errs = append(errs, fmt.Errorf("mcp_port out of range: %d", c.MCPPort))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("projects_dir", filepath.Join(home, ".claude", "projects"))
	v.SetDefault("data_dir", filepath.Join(home, ConfigDir))
	v.SetDefault("listen", "127.0.0.1:7878")
	v.SetDefault("group_by", "exchange")
	v.SetDefault("page_size", 50)
	v.SetDefault("debounce", 300*time.Millisecond)
	v.SetDefault("view_ttl", 30*time.Minute)
	v.SetDefault("hook_rate_limit", 20.0)
	v.SetDefault("hook_burst", 40)
	v.SetDefault("mcp_enabled", false)
	v.SetDefault("mcp_port", 9316)
	v.SetDefault("server_url", "http://127.0.0.1:7878")
	v.SetDefault("debug", false)
}

// Load reads the configuration. An explicit path must exist; without one,
// ~/.claudeview/config.yaml is used when present.
func Load(path string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}

	// .env is optional
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v, home)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(home, ConfigDir))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ProjectsDir = expandHome(cfg.ProjectsDir, home)
	cfg.DataDir = expandHome(cfg.DataDir, home)
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
