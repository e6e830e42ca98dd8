package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/akhenakh/rrf/internal/rrf"

	"gopkg.in/yaml.v3"
)

const (
	OutputTable = "table"
	OutputJSON  = "json"
)

type SQLite struct {
	DSN     string `yaml:"dsn"`
	LoadVec bool   `yaml:"load_vec"`
}

type Postgres struct {
	DSN    string `yaml:"dsn"`
	Schema string `yaml:"schema"`
}

type Config struct {
	// Fusion Settings
	K     int64 `yaml:"k"`
	Limit int   `yaml:"limit"`

	// Presentation
	Output   string `yaml:"output"`
	DebugLog string `yaml:"debug_log"`

	// Hosts
	SQLite   SQLite   `yaml:"sqlite"`
	Postgres Postgres `yaml:"postgres"`
}

// Default settings
func Default() *Config {
	return &Config{
		K:      rrf.DefaultK,
		Output: OutputTable,
		SQLite: SQLite{
			DSN:     "file::memory:?cache=shared",
			LoadVec: true,
		},
		Postgres: Postgres{
			Schema: "public",
		},
	}
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rrf.yml"), nil
}

// Load reads the config at path, or at GetConfigPath when path is empty.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		cfg.applyEnv()
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.Postgres.DSN == "" {
		c.Postgres.DSN = os.Getenv("DATABASE_URL")
	}
}

// Validate checks the values a host would otherwise reject at call time.
func (c *Config) Validate() error {
	if c.K <= 0 {
		return fmt.Errorf("k: %w (got %d)", rrf.ErrInvalidConstant, c.K)
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must be >= 0 (got %d)", c.Limit)
	}
	switch c.Output {
	case OutputTable, OutputJSON:
	default:
		return fmt.Errorf("output must be %q or %q (got %q)", OutputTable, OutputJSON, c.Output)
	}
	return nil
}

// Save writes cfg to path, or to GetConfigPath when path is empty.
func Save(path string, cfg *Config) error {
	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
