// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob loaded via Viper.
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	State    StateConfig    `mapstructure:"state"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	History  HistoryConfig  `mapstructure:"history"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Progress ProgressConfig `mapstructure:"progress"`
}

// PipelineConfig governs fan-out, retries, and candidate filtering.
type PipelineConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	// FollowLinks also probes anchors found on configured sites.
	FollowLinks bool `mapstructure:"follow_links"`
	// ExcludeHosts drops URLs on these domains or their subdomains.
	ExcludeHosts []string `mapstructure:"exclude_hosts"`
	// Exclude drops URLs containing any of these substrings.
	Exclude  []string `mapstructure:"exclude"`
	Keywords []string `mapstructure:"keywords"`
	Suffixes []string `mapstructure:"suffixes"`
	// PerHostRPS paces requests to one host; zero disables pacing.
	PerHostRPS   float64 `mapstructure:"per_host_rps"`
	PerHostBurst int     `mapstructure:"per_host_burst"`
}

// HTTPConfig holds per-attempt timeouts for the two request profiles.
type HTTPConfig struct {
	PageTimeout  time.Duration `mapstructure:"page_timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// SourcesConfig locates the channel/site list.
type SourcesConfig struct {
	Path string `mapstructure:"path"`
}

// StateConfig locates the persisted set and text report.
type StateConfig struct {
	Path string `mapstructure:"path"`
	// OutputPath defaults to Path with a .txt extension.
	OutputPath string `mapstructure:"output_path"`
}

// StorageConfig switches report output to GCS when a bucket is set.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// TelegramConfig holds the notification secrets.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// HistoryConfig selects the optional run history backend.
type HistoryConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// MetricsConfig enables the /metrics listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ProgressConfig toggles the terminal progress bar.
type ProgressConfig struct {
	Bar bool `mapstructure:"bar"`
}

// Load builds a Config from an optional file plus SUBHARVEST_* environment
// variables. TG_BOT_TOKEN and TG_CHAT_ID are honored as well.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SUBHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := v.BindEnv("telegram.bot_token", "SUBHARVEST_TELEGRAM_BOT_TOKEN", "TG_BOT_TOKEN"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("telegram.chat_id", "SUBHARVEST_TELEGRAM_CHAT_ID", "TG_CHAT_ID"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.State.OutputPath == "" {
		cfg.State.OutputPath = ReportPath(cfg.State.Path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.concurrency", 32)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.backoff_initial", 5*time.Second)
	v.SetDefault("pipeline.backoff_max", 30*time.Second)
	v.SetDefault("pipeline.follow_links", false)
	v.SetDefault("pipeline.exclude_hosts", []string{"t.me", "telegram.org", "telegram.me"})
	v.SetDefault("pipeline.exclude", []string{})
	v.SetDefault("pipeline.keywords", []string{})
	v.SetDefault("pipeline.suffixes", []string{})
	v.SetDefault("pipeline.per_host_rps", 0)
	v.SetDefault("pipeline.per_host_burst", 4)
	v.SetDefault("http.page_timeout", 10*time.Second)
	v.SetDefault("http.probe_timeout", 5*time.Second)
	v.SetDefault("sources.path", "./config.yaml")
	v.SetDefault("state.path", "./data/subscribe.yaml")
	v.SetDefault("state.output_path", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("history.driver", "none")
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.table", "subscription_history")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", os.Getenv("GITHUB_ACTIONS") == "")
	v.SetDefault("progress.bar", true)
}

// ReportPath swaps the extension of the state path for .txt.
func ReportPath(statePath string) string {
	return strings.TrimSuffix(statePath, filepath.Ext(statePath)) + ".txt"
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline.max_attempts must be > 0")
	}
	if c.Pipeline.BackoffInitial < 0 || c.Pipeline.BackoffMax < 0 {
		return fmt.Errorf("pipeline backoff durations must be >= 0")
	}
	if c.Pipeline.PerHostRPS < 0 {
		return fmt.Errorf("pipeline.per_host_rps must be >= 0")
	}
	if c.HTTP.PageTimeout <= 0 {
		return fmt.Errorf("http.page_timeout must be > 0")
	}
	if c.HTTP.ProbeTimeout <= 0 {
		return fmt.Errorf("http.probe_timeout must be > 0")
	}
	if strings.TrimSpace(c.State.Path) == "" {
		return fmt.Errorf("state.path is required")
	}
	if filepath.Clean(c.State.OutputPath) == filepath.Clean(c.State.Path) {
		return fmt.Errorf("state.output_path must differ from state.path")
	}
	switch strings.ToLower(c.History.Driver) {
	case "", "none":
	case "sqlite", "postgres":
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn must be set when history.driver is %s", c.History.Driver)
		}
	default:
		return fmt.Errorf("history.driver must be one of none, sqlite, postgres")
	}
	return nil
}

// NotificationsEnabled reports whether both Telegram secrets are present.
func (c Config) NotificationsEnabled() bool {
	return strings.TrimSpace(c.Telegram.BotToken) != "" && strings.TrimSpace(c.Telegram.ChatID) != ""
}
