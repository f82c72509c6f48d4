package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the aqlm configuration file (~/.config/aqlm/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Backend string `yaml:"backend"`

	// Bench defaults
	BenchRows   *int64 `yaml:"bench_rows"`
	BenchCols   *int64 `yaml:"bench_cols"`
	BenchBatch  *int64 `yaml:"bench_batch"`
	BenchRuns   *int64 `yaml:"bench_runs"`
	BenchWarmup *int64 `yaml:"bench_warmup"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "aqlm", "config.yaml")
}

// applyBenchConfig applies config file defaults to bench command variables
// when the corresponding CLI flag was not explicitly set.
func applyBenchConfig(c *cli.Command, cfg Config, rows, cols, batch, runs, warmup *int64) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.BenchRows != nil && !c.IsSet("rows") {
		*rows = *cfg.BenchRows
	}
	if cfg.BenchCols != nil && !c.IsSet("cols") {
		*cols = *cfg.BenchCols
	}
	if cfg.BenchBatch != nil && !c.IsSet("batch") {
		*batch = *cfg.BenchBatch
	}
	if cfg.BenchRuns != nil && !c.IsSet("runs") {
		*runs = *cfg.BenchRuns
	}
	if cfg.BenchWarmup != nil && !c.IsSet("warmup") {
		*warmup = *cfg.BenchWarmup
	}
}

// applyLoggingConfig applies config file logging defaults when the
// corresponding CLI flag was not explicitly set.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
