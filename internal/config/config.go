// Package config loads the experiment scheme and service settings from a JSON
// or YAML file, with environment overrides for deployment-specific values.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/agreement.report/internal/agreement"
	"github.com/banshee-data/agreement.report/internal/annotations"
)

// DefaultConfigPath is the canonical defaults file, relative to the repo root.
const DefaultConfigPath = "config/agreement.defaults.json"

const (
	defaultDataDir  = "data"
	defaultListen   = ":8090"
	defaultCacheTTL = 5 * time.Minute
	maxFileSize     = 1 * 1024 * 1024
)

// Config is the root configuration. Nil fields fall back to the defaults
// returned by the Get* methods, so partial files are safe.
type Config struct {
	// Experiment scheme
	Categories    []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	Rounds        *int     `json:"rounds,omitempty" yaml:"rounds,omitempty"`
	Groups        *int     `json:"groups,omitempty" yaml:"groups,omitempty"`
	ScaleMin      *int     `json:"scale_min,omitempty" yaml:"scale_min,omitempty"`
	ScaleMax      *int     `json:"scale_max,omitempty" yaml:"scale_max,omitempty"`
	ItemsPerRater *int     `json:"items_per_rater,omitempty" yaml:"items_per_rater,omitempty"`
	Weighting     *string  `json:"weighting,omitempty" yaml:"weighting,omitempty"`

	// Service
	DataDir  *string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
	Listen   *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	CacheTTL *string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"` // duration string like "5m"
	DBPath   *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// envOverrides are read from the process environment after the file.
type envOverrides struct {
	DataDir  string `env:"AGREEMENT_DATA_DIR"`
	Listen   string `env:"AGREEMENT_LISTEN"`
	CacheTTL string `env:"AGREEMENT_CACHE_TTL"`
	DBPath   string `env:"AGREEMENT_DB"`
}

func ptrString(v string) *string { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a .json, .yaml or .yml config file and validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays AGREEMENT_* variables found by l onto the config. Pass
// nil to read the process environment.
func (c *Config) ApplyEnv(ctx context.Context, l envconfig.Lookuper) error {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	var env envOverrides
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &env, Lookuper: l}); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	if env.DataDir != "" {
		c.DataDir = ptrString(env.DataDir)
	}
	if env.Listen != "" {
		c.Listen = ptrString(env.Listen)
	}
	if env.CacheTTL != "" {
		c.CacheTTL = ptrString(env.CacheTTL)
	}
	if env.DBPath != "" {
		c.DBPath = ptrString(env.DBPath)
	}
	return c.Validate()
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.Scheme().Validate(); err != nil {
		return err
	}
	if c.Weighting != nil {
		if _, err := agreement.ParseWeighting(*c.Weighting); err != nil {
			return err
		}
	}
	if c.CacheTTL != nil && *c.CacheTTL != "" {
		d, err := time.ParseDuration(*c.CacheTTL)
		if err != nil {
			return fmt.Errorf("invalid cache_ttl '%s': %w", *c.CacheTTL, err)
		}
		if d < 0 {
			return fmt.Errorf("cache_ttl must be non-negative, got %s", d)
		}
	}
	return nil
}

// Scheme builds the experiment scheme, defaulting unset fields.
func (c *Config) Scheme() annotations.Scheme {
	s := annotations.DefaultScheme()
	if len(c.Categories) > 0 {
		s.Categories = append([]string(nil), c.Categories...)
	}
	if c.Rounds != nil {
		s.Rounds = *c.Rounds
	}
	if c.Groups != nil {
		s.Groups = *c.Groups
	}
	if c.ScaleMin != nil {
		s.ScaleMin = *c.ScaleMin
	}
	if c.ScaleMax != nil {
		s.ScaleMax = *c.ScaleMax
	}
	if c.ItemsPerRater != nil {
		s.ItemsPerRater = *c.ItemsPerRater
	}
	return s
}

// GetWeighting returns the kappa weighting, linear by default.
func (c *Config) GetWeighting() agreement.Weighting {
	if c.Weighting == nil {
		return agreement.Linear
	}
	w, err := agreement.ParseWeighting(*c.Weighting)
	if err != nil {
		return agreement.Linear
	}
	return w
}

// GetDataDir returns the rating tree root.
func (c *Config) GetDataDir() string {
	if c.DataDir == nil || *c.DataDir == "" {
		return defaultDataDir
	}
	return *c.DataDir
}

// GetListen returns the HTTP listen address.
func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return defaultListen
	}
	return *c.Listen
}

// GetCacheTTL returns how long a pipeline result is served before recompute.
func (c *Config) GetCacheTTL() time.Duration {
	if c.CacheTTL == nil || *c.CacheTTL == "" {
		return defaultCacheTTL
	}
	d, err := time.ParseDuration(*c.CacheTTL)
	if err != nil {
		return defaultCacheTTL
	}
	return d
}

// GetDBPath returns the sqlite archive path, or "" when none is configured.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}
