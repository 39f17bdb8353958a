package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

const defaultFindTimeout = 10 * time.Second

// fileConfig is the YAML configuration file.
type fileConfig struct {
	// Store is the pairing store path.
	Store string `yaml:"store"`

	// LogLevel is one of disabled, error, warn, info, debug, trace.
	LogLevel string `yaml:"log_level"`

	// FindTimeout bounds mDNS lookups of a single accessory.
	FindTimeout time.Duration `yaml:"find_timeout"`

	// Extensions is an optional catalog vendor extension file.
	Extensions string `yaml:"extensions"`

	// PINs holds setup codes by device ID.
	PINs map[string]string `yaml:"pins"`
}

func defaultConfig() fileConfig {
	store := "pairings.json"
	if dir, err := os.UserConfigDir(); err == nil {
		store = filepath.Join(dir, "hapctl", "pairings.json")
	}
	return fileConfig{
		Store:       store,
		LogLevel:    "warn",
		FindTimeout: defaultFindTimeout,
	}
}

// loadConfig reads path over the defaults. A missing file is not an
// error when the path was not given explicitly.
func loadConfig(path string, explicit bool) (fileConfig, error) {
	cfg := defaultConfig()
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		return cfg, nil
	case err != nil:
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.FindTimeout <= 0 {
		cfg.FindTimeout = defaultFindTimeout
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "hapctl", "config.yaml")
	}
	return "hapctl.yaml"
}

var levels = map[string]logging.LogLevel{
	"disabled": logging.LogLevelDisabled,
	"error":    logging.LogLevelError,
	"warn":     logging.LogLevelWarn,
	"info":     logging.LogLevelInfo,
	"debug":    logging.LogLevelDebug,
	"trace":    logging.LogLevelTrace,
}

func parseLevel(s string) (logging.LogLevel, error) {
	if s == "" {
		return logging.LogLevelWarn, nil
	}
	l, ok := levels[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

func loggerFactory(level string) (logging.LoggerFactory, error) {
	l, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	f := logging.NewDefaultLoggerFactory()
	f.Writer = os.Stderr
	f.DefaultLogLevel = l
	return f, nil
}
