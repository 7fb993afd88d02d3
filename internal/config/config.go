// Package config assembles the engine configuration from defaults, an
// optional YAML file and environment variables. Loading never fails: a
// missing, unreadable or corrupt configuration logs a warning and the
// engine runs with the documented defaults, because a bad config file
// must never stop document intake.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scanprep/scanprep/internal/instrument"
	"github.com/scanprep/scanprep/internal/pipeline"
	"github.com/scanprep/scanprep/internal/process"
	"github.com/scanprep/scanprep/internal/recognize"
	"github.com/scanprep/scanprep/internal/server"
	"github.com/scanprep/scanprep/internal/store"
	"github.com/scanprep/scanprep/internal/watcher"
)

// Config is the full engine configuration.
type Config struct {
	LogLevel    string                  `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Dirs        process.Dirs            `mapstructure:"dirs" yaml:"dirs" json:"dirs"`
	Stages      pipeline.Config         `mapstructure:"stages" yaml:"stages" json:"stages"`
	Parallel    pipeline.ParallelConfig `mapstructure:"parallel" yaml:"parallel" json:"parallel"`
	Debug       instrument.Config       `mapstructure:"debug" yaml:"debug" json:"debug"`
	Recognition recognize.Config        `mapstructure:"recognition" yaml:"recognition" json:"recognition"`
	Watcher     watcher.Config          `mapstructure:"watcher" yaml:"watcher" json:"watcher"`
	Database    store.Config            `mapstructure:"database" yaml:"database" json:"database"`
	Server      server.Config           `mapstructure:"server" yaml:"server" json:"server"`
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		LogLevel:    "info",
		Dirs:        process.DefaultDirs(),
		Stages:      pipeline.DefaultConfig(),
		Parallel:    pipeline.DefaultParallelConfig(),
		Debug:       instrument.DefaultConfig(),
		Recognition: recognize.DefaultConfig(),
		Watcher:     watcher.DefaultConfig(),
		Database:    store.DefaultConfig(),
		Server:      server.DefaultConfig(),
	}
}

// SlogLevel maps the configured level name onto slog.
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

// WriteDefault writes the default configuration as YAML to path, for
// operators to edit.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encoding defaults: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
