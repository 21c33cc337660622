package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/kaldiio/pkg/stream"
)

// Config is the kaldiio configuration file (~/.config/kaldiio/config.yaml).
// Flags given on the command line win over anything set here.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Compression is appended as a suffix to copy outputs that carry none:
	// gz, zst, lz4 or none.
	Compression string `yaml:"compression"`

	// Seed makes nnet-init reproducible.
	Seed *int64 `yaml:"seed"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "kaldiio", "config.yaml")
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = configPath()
	}
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyGlobalConfig fills the logging flags from cfg when they were not
// given explicitly.
func applyGlobalConfig(c *cli.Command, cfg Config, logLevel, logFormat *string) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		*logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		*logFormat = cfg.LogFormat
	}
}

type configKey struct{}

func withConfig(ctx context.Context, cfg Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(ctx context.Context) Config {
	cfg, _ := ctx.Value(configKey{}).(Config)
	return cfg
}

// outputPath appends the suffix for compression to path unless path already
// names a compressed file or is stdout.
func outputPath(path, compression string) (string, error) {
	if path == stream.StdioPath || stream.CompressionFor(path) != stream.None {
		return path, nil
	}
	switch compression {
	case "", "none":
		return path, nil
	case "gz", "zst", "lz4":
		return path + "." + compression, nil
	default:
		return "", fmt.Errorf("unknown compression %q (want gz, zst, lz4 or none)", compression)
	}
}
