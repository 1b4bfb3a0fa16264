package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Version       int           `toml:"version"`
	Extract       Extract       `toml:"extract"`
	Sandbox       Sandbox       `toml:"sandbox"`
	DB            Database      `toml:"db"`
	Observability Observability `toml:"observability"`
}

type Extract struct {
	// Workers bounds concurrent file parses in the static pass.
	Workers  int      `toml:"workers"`
	Excludes []string `toml:"excludes"`
}

type Sandbox struct {
	Enabled           bool          `toml:"enabled"`
	PythonBin         string        `toml:"python_bin"`
	ImportTimeout     time.Duration `toml:"import_timeout"`
	MaxSandboxes      int           `toml:"max_sandboxes"`
	LaunchesPerSecond float64       `toml:"launches_per_second"`
}

type Database struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Observability struct {
	MetricsAddr  string `toml:"metrics_addr"`
	TraceEnabled bool   `toml:"trace_enabled"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if cfg.Extract.Workers <= 0 {
		cfg.Extract.Workers = 4
	}
	if len(cfg.Extract.Excludes) == 0 {
		cfg.Extract.Excludes = []string{"**/test*/**", "**/.git/**", "**/__pycache__/**"}
	}

	if strings.TrimSpace(cfg.Sandbox.PythonBin) == "" {
		cfg.Sandbox.PythonBin = "python3"
	}
	if cfg.Sandbox.ImportTimeout <= 0 {
		cfg.Sandbox.ImportTimeout = 60 * time.Second
	}
	if cfg.Sandbox.MaxSandboxes <= 0 {
		cfg.Sandbox.MaxSandboxes = 4
	}
	if cfg.Sandbox.LaunchesPerSecond <= 0 {
		cfg.Sandbox.LaunchesPerSecond = 2
	}

	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "py4a.db"
	}
	if !cfg.DB.Enabled && cfg.Version <= 1 {
		cfg.DB.Enabled = true
	}

	if strings.TrimSpace(cfg.Observability.MetricsAddr) == "" {
		cfg.Observability.MetricsAddr = "127.0.0.1:9180"
	}
	if strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		cfg.Observability.OTLPEndpoint = "127.0.0.1:4317"
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "py4a"
	}
}

func validate(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d", cfg.Version)
	}
	if cfg.Sandbox.ImportTimeout < time.Second {
		return fmt.Errorf("sandbox import_timeout %s is below the 1s minimum", cfg.Sandbox.ImportTimeout)
	}
	return nil
}
