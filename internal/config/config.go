// Package config loads application configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sydlexius/mediarr/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Data    DataConfig     `yaml:"data"`
	Library LibraryConfig  `yaml:"library"`
	Scanner ScannerConfig  `yaml:"scanner"`
	TMDb    TMDbConfig     `yaml:"tmdb"`
	Slack   SlackConfig    `yaml:"slack"`
	Logging logging.Config `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// DataConfig holds paths for persisted application state.
type DataConfig struct {
	Dir          string `yaml:"dir"`
	DatabasePath string `yaml:"database_path"`
}

// LibraryConfig holds the media root directories, grouped by kind.
type LibraryConfig struct {
	MovieFolders []string `yaml:"movie_folders"`
	TVFolders    []string `yaml:"tv_folders"`
}

// ScannerConfig holds scan pacing and mount throttling tunables.
type ScannerConfig struct {
	BatchSize       int           `yaml:"batch_size"`
	BatchPause      time.Duration `yaml:"batch_pause"`
	MaxRetries      int           `yaml:"max_retries"`
	BackoffFloor    time.Duration `yaml:"backoff_floor"`
	BackoffCeiling  time.Duration `yaml:"backoff_ceiling"`
	BackoffStep     time.Duration `yaml:"backoff_step"`
	SuccessStreak   int           `yaml:"success_streak"`
	ThumbnailDelay  time.Duration `yaml:"thumbnail_delay"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// TMDbConfig holds TMDb API settings.
type TMDbConfig struct {
	APIKey string `yaml:"api_key"`
}

// SlackConfig holds Slack notification settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			BasePath: "/",
		},
		Data: DataConfig{
			Dir:          "/data",
			DatabasePath: "/data/mediarr.db",
		},
		Library: LibraryConfig{
			MovieFolders: []string{"/movies"},
			TVFolders:    []string{"/tv"},
		},
		Scanner: ScannerConfig{
			BatchSize:       10,
			BatchPause:      2 * time.Second,
			MaxRetries:      8,
			BackoffFloor:    5 * time.Second,
			BackoffCeiling:  30 * time.Second,
			BackoffStep:     5 * time.Second,
			SuccessStreak:   3,
			ThumbnailDelay:  500 * time.Millisecond,
			RefreshInterval: 6 * time.Hour,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("MR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MR_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("MR_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("MR_DB_PATH"); v != "" {
		c.Data.DatabasePath = v
	}
	if v := os.Getenv("MOVIE_FOLDERS"); v != "" {
		c.Library.MovieFolders = splitFolders(v)
	}
	if v := os.Getenv("TV_FOLDERS"); v != "" {
		c.Library.TVFolders = splitFolders(v)
	}
	if v := os.Getenv("TMDB_API_KEY"); v != "" {
		c.TMDb.APIKey = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		c.Slack.WebhookURL = v
	}
	if v := os.Getenv("MR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MR_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// splitFolders parses a comma-separated folder list, dropping blanks.
func splitFolders(s string) []string {
	var folders []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			folders = append(folders, p)
		}
	}
	return folders
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data directory is required")
	}
	if len(c.Library.MovieFolders) == 0 && len(c.Library.TVFolders) == 0 {
		return fmt.Errorf("at least one movie or tv folder is required")
	}
	if c.Scanner.BatchSize < 1 {
		return fmt.Errorf("scanner batch size must be positive")
	}
	if c.Scanner.BackoffFloor > c.Scanner.BackoffCeiling {
		return fmt.Errorf("backoff floor %s exceeds ceiling %s",
			c.Scanner.BackoffFloor, c.Scanner.BackoffCeiling)
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}
