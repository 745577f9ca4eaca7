package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/erhanakin/sms-transfer-migration/internal/smstransfer/constants"
	"github.com/erhanakin/sms-transfer-migration/internal/utils"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DeviceName     string `yaml:"device_name"`
	Port           int    `yaml:"port"`
	BatchSize      int    `yaml:"batch_size"`
	BatchDelayMS   int    `yaml:"batch_delay_ms"`
	ProbeTimeoutMS int    `yaml:"probe_timeout_ms"`
	SweepTimeoutMS int    `yaml:"sweep_timeout_ms"`
	DBPath         string `yaml:"db_path"`
	LogLevel       string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		DeviceName:     utils.GenAlias(),
		Port:           constants.TransferPort,
		BatchSize:      constants.DefaultBatchSize,
		BatchDelayMS:   int(constants.BatchDelay / time.Millisecond),
		ProbeTimeoutMS: int(constants.ProbeTimeout / time.Millisecond),
		SweepTimeoutMS: int(constants.SweepTimeout / time.Millisecond),
		DBPath:         "sms.db",
		LogLevel:       "info",
	}
}

// Load reads the YAML config at path over the defaults. An empty path
// yields the defaults; a missing file is an error so typos surface early.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.BatchSize <= 0 {
		return Config{}, fmt.Errorf("invalid batch size %d", cfg.BatchSize)
	}

	return cfg, nil
}

func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMS) * time.Millisecond
}

func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

func (c Config) SweepTimeout() time.Duration {
	return time.Duration(c.SweepTimeoutMS) * time.Millisecond
}

// SlogLevel maps the configured level onto slog, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
