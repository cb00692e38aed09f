// Package config provides unified configuration loading for gkmerge.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/gkmerge/internal/constants"
	"github.com/nvandessel/gkmerge/internal/experiment"
	"github.com/nvandessel/gkmerge/internal/ratelimit"
)

// DirName is the per-user directory holding config, results and traces.
const DirName = ".gkmerge"

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// GkmergeConfig contains all gkmerge configuration settings.
type GkmergeConfig struct {
	// Logging contains settings for operational logging and cascade traces.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store selects where experiment results are kept.
	Store StoreConfig `json:"store" yaml:"store"`

	// Stats configures result aggregation.
	Stats StatsConfig `json:"stats" yaml:"stats"`

	// Window and Mergers are the defaults of the two experiments. Command
	// line flags override individual fields.
	Window  experiment.WindowConfig  `json:"window" yaml:"window"`
	Mergers experiment.MergersConfig `json:"mergers" yaml:"mergers"`

	// MCP configures the tool server.
	MCP MCPConfig `json:"mcp" yaml:"mcp"`
}

// LoggingConfig configures gkmerge's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "error", "warn", "info" (default),
	// "debug" or "trace". "trace" also writes every cascade round and
	// merge to TraceDir/cascade.jsonl.
	Level string `json:"level" yaml:"level"`

	// TraceDir is where cascade.jsonl goes. Empty means the gkmerge
	// directory.
	TraceDir string `json:"trace_dir,omitempty" yaml:"trace_dir,omitempty"`
}

// StoreConfig configures result persistence.
type StoreConfig struct {
	// Backend is "sqlite" (default) or "memory".
	Backend string `json:"backend" yaml:"backend"`

	// Dir holds results.db. Supports ${VAR} and a leading ~. Empty means
	// the gkmerge directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// StatsConfig configures result aggregation.
type StatsConfig struct {
	// CascadeThreshold is the defaulted fraction above which a run counts
	// as a global cascade.
	CascadeThreshold float64 `json:"cascade_threshold" yaml:"cascade_threshold"`
}

// MCPConfig configures the MCP tool server.
type MCPConfig struct {
	// RateLimits overrides the per-tool token buckets.
	RateLimits map[string]ratelimit.Rule `json:"rate_limits,omitempty" yaml:"rate_limits,omitempty"`

	// MaxRealizations caps points*runs of experiments started through MCP.
	MaxRealizations int `json:"max_realizations" yaml:"max_realizations"`

	// MaxBanks caps the size of networks built through MCP.
	MaxBanks int `json:"max_banks" yaml:"max_banks"`
}

// Default returns a GkmergeConfig with sensible defaults.
func Default() *GkmergeConfig {
	return &GkmergeConfig{
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Backend: BackendSQLite,
		},
		Stats: StatsConfig{
			CascadeThreshold: constants.DefaultCascadeThreshold,
		},
		Window:  experiment.DefaultWindowConfig(),
		Mergers: experiment.DefaultMergersConfig(),
		MCP: MCPConfig{
			MaxRealizations: 5000,
			MaxBanks:        5000,
		},
	}
}

// Dir returns the gkmerge directory, ~/.gkmerge.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.gkmerge/config.yaml -> environment variables
func Load() (*GkmergeConfig, error) {
	config := Default()

	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// LoadFrom loads configuration from path, which must exist, and applies
// environment variables on top. An empty path behaves like Load.
func LoadFrom(path string) (*GkmergeConfig, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(expandPath(path))
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Fields the
// file leaves out keep their defaults.
func LoadFromFile(path string) (*GkmergeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Dir = expandPath(config.Store.Dir)
	config.Logging.TraceDir = expandPath(config.Logging.TraceDir)
	return config, nil
}

// WriteFile writes the configuration as YAML, creating parent directories.
func (c *GkmergeConfig) WriteFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// StoreDir resolves the directory of the result database.
func (c *GkmergeConfig) StoreDir() (string, error) {
	if c.Store.Dir != "" {
		return c.Store.Dir, nil
	}
	return Dir()
}

// TraceDir resolves the directory of the cascade trace.
func (c *GkmergeConfig) TraceDir() (string, error) {
	if c.Logging.TraceDir != "" {
		return c.Logging.TraceDir, nil
	}
	return Dir()
}

// Validate checks that the configuration is valid.
func (c *GkmergeConfig) Validate() error {
	var errs []error

	validLevels := map[string]bool{"error": true, "warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, trace, or empty for default)", c.Logging.Level))
	}

	switch c.Store.Backend {
	case "", BackendSQLite, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid store backend: %s (valid: sqlite, memory)", c.Store.Backend))
	}

	if c.Stats.CascadeThreshold < 0 || c.Stats.CascadeThreshold > 1 {
		errs = append(errs, fmt.Errorf("cascade_threshold must be between 0 and 1, got %f", c.Stats.CascadeThreshold))
	}

	if err := c.Window.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("window: %w", err))
	}
	if err := c.Mergers.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mergers: %w", err))
	}

	if c.MCP.MaxRealizations < 1 {
		errs = append(errs, fmt.Errorf("mcp.max_realizations must be positive, got %d", c.MCP.MaxRealizations))
	}
	if c.MCP.MaxBanks < 2 {
		errs = append(errs, fmt.Errorf("mcp.max_banks must be at least 2, got %d", c.MCP.MaxBanks))
	}
	for tool, r := range c.MCP.RateLimits {
		if r.PerMinute < 0 {
			errs = append(errs, fmt.Errorf("mcp.rate_limits.%s: per_minute must be non-negative", tool))
		}
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies GKMERGE_* environment variable overrides.
// Experiment overrides apply to both experiments.
func applyEnvOverrides(config *GkmergeConfig) {
	if v := os.Getenv("GKMERGE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("GKMERGE_TRACE_DIR"); v != "" {
		config.Logging.TraceDir = expandPath(v)
	}
	if v := os.Getenv("GKMERGE_STORE_BACKEND"); v != "" {
		config.Store.Backend = v
	}
	if v := os.Getenv("GKMERGE_STORE_DIR"); v != "" {
		config.Store.Dir = expandPath(v)
	}
	if v := os.Getenv("GKMERGE_CASCADE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Stats.CascadeThreshold = f
		}
	}

	params := []*experiment.Params{&config.Window.Params, &config.Mergers.Params}
	if v := os.Getenv("GKMERGE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			for _, p := range params {
				p.Workers = n
			}
		}
	}
	if v := os.Getenv("GKMERGE_RUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			for _, p := range params {
				p.Runs = n
			}
		}
	}
	if v := os.Getenv("GKMERGE_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			for _, p := range params {
				p.Seed = n
			}
		}
	}
	if v := os.Getenv("GKMERGE_BANKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			for _, p := range params {
				p.Recipe.Banks = n
			}
		}
	}
}

// expandPath expands ${VAR} patterns and a leading ~ in a path.
func expandPath(s string) string {
	if strings.Contains(s, "${") {
		s = os.Expand(s, os.Getenv)
	}
	if s == "~" || strings.HasPrefix(s, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			s = filepath.Join(home, strings.TrimPrefix(s, "~"))
		}
	}
	return s
}
