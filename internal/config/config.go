package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultRetentionDays        = 365
	DefaultBudgetWarningPercent = 80
	DefaultLogLevel             = "warn"
)

type CalculatorConfig struct {
	DefaultModel    string `toml:"default_model"`
	DefaultRequests int64  `toml:"default_requests"`
}

type CatalogConfig struct {
	Path string `toml:"path"`
}

type StorageConfig struct {
	DBPath        string `toml:"db_path"`
	RetentionDays int    `toml:"retention_days"`
}

type NotificationsConfig struct {
	BudgetWarningPercent int `toml:"budget_warning_percent"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type Config struct {
	Calculator    CalculatorConfig    `toml:"calculator"`
	Catalog       CatalogConfig       `toml:"catalog"`
	Storage       StorageConfig       `toml:"storage"`
	Notifications NotificationsConfig `toml:"notifications"`
	Log           LogConfig           `toml:"log"`
}

func Default() Config {
	return Config{
		Calculator: CalculatorConfig{
			DefaultRequests: 1,
		},
		Storage: StorageConfig{
			DBPath:        "~/.costcalc/costcalc.db",
			RetentionDays: DefaultRetentionDays,
		},
		Notifications: NotificationsConfig{
			BudgetWarningPercent: DefaultBudgetWarningPercent,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

func DefaultConfigPath() string {
	return "~/.costcalc/config.toml"
}

func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is empty")
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Clean(path), nil
}

func ParseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn or error)", raw)
	}
	return level, nil
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultConfigPath()
	}
	expanded, err := ExpandPath(path)
	if err != nil {
		return cfg, fmt.Errorf("expand config path: %w", err)
	}
	if _, err := os.Stat(expanded); err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("stat config: %w", err)
		}
		return finalize(cfg)
	}

	loaded := Config{}
	if _, err := toml.DecodeFile(expanded, &loaded); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	if loaded.Calculator.DefaultModel != "" {
		cfg.Calculator.DefaultModel = strings.TrimSpace(loaded.Calculator.DefaultModel)
	}
	if loaded.Calculator.DefaultRequests != 0 {
		cfg.Calculator.DefaultRequests = loaded.Calculator.DefaultRequests
	}
	if loaded.Catalog.Path != "" {
		cfg.Catalog.Path = loaded.Catalog.Path
	}
	if loaded.Storage.DBPath != "" {
		cfg.Storage.DBPath = loaded.Storage.DBPath
	}
	if loaded.Storage.RetentionDays != 0 {
		cfg.Storage.RetentionDays = loaded.Storage.RetentionDays
	}
	if loaded.Notifications.BudgetWarningPercent != 0 {
		cfg.Notifications.BudgetWarningPercent = loaded.Notifications.BudgetWarningPercent
	}
	if loaded.Log.Level != "" {
		cfg.Log.Level = loaded.Log.Level
	}
	return finalize(cfg)
}

func finalize(cfg Config) (Config, error) {
	var err error
	cfg.Storage.DBPath, err = ExpandPath(cfg.Storage.DBPath)
	if err != nil {
		return cfg, fmt.Errorf("expand db path: %w", err)
	}
	if cfg.Catalog.Path != "" {
		cfg.Catalog.Path, err = ExpandPath(cfg.Catalog.Path)
		if err != nil {
			return cfg, fmt.Errorf("expand catalog path: %w", err)
		}
	}
	if cfg.Calculator.DefaultRequests < 1 {
		return cfg, fmt.Errorf("invalid calculator.default_requests %d (must be >= 1)", cfg.Calculator.DefaultRequests)
	}
	if p := cfg.Notifications.BudgetWarningPercent; p < 0 || p > 100 {
		return cfg, fmt.Errorf("invalid notifications.budget_warning_percent %d (expected 0-100)", p)
	}
	if _, err := ParseLogLevel(cfg.Log.Level); err != nil {
		return cfg, fmt.Errorf("invalid log.level: %w", err)
	}
	return cfg, nil
}

func Save(path string, cfg Config) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	expanded, err := ExpandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path: %w", err)
	}

	dir := filepath.Dir(expanded)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpPath := expanded + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open temp config file: %w", err)
	}
	encodeErr := toml.NewEncoder(file).Encode(cfg)
	syncErr := file.Sync()
	closeErr := file.Close()
	if encodeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode config: %w", encodeErr)
	}
	if syncErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp config file: %w", syncErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp config file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, expanded); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}
