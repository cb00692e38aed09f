package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/gkmerge/internal/experiment"
	"github.com/nvandessel/gkmerge/internal/generators"
	"github.com/nvandessel/gkmerge/internal/network"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if config.Store.Backend != BackendSQLite {
		t.Errorf("expected Store.Backend 'sqlite', got '%s'", config.Store.Backend)
	}
	if config.Stats.CascadeThreshold != 0.05 {
		t.Errorf("expected CascadeThreshold 0.05, got %f", config.Stats.CascadeThreshold)
	}
	if config.Window.Recipe.Topology != generators.TopologyFastErdosRenyi {
		t.Errorf("expected window topology fast_erdos_renyi, got %s", config.Window.Recipe.Topology)
	}
	if config.Mergers.Rule != network.MergeRandom {
		t.Errorf("expected merge rule random, got %s", config.Mergers.Rule)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("expected valid default config, got error: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: debug
store:
  backend: memory
stats:
  cascade_threshold: 0.1
window:
  recipe:
    topology: chung_lu
    banks: 200
    gamma: 2.5
  runs: 50
  workers: 4
  contagion_mode: simultaneous
  recovery_rate: 0.3
  min: 1
  max: 5
  points: 9
mergers:
  merge_rule: semihorizontal
  last_round: 40
mcp:
  max_banks: 300
  rate_limits:
    gkmerge_window:
      per_minute: 6
      burst: 2
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Logging.Level != "debug" {
		t.Errorf("expected level 'debug', got '%s'", config.Logging.Level)
	}
	if config.Store.Backend != BackendMemory {
		t.Errorf("expected backend 'memory', got '%s'", config.Store.Backend)
	}
	w := config.Window
	if w.Recipe.Topology != generators.TopologyChungLu || w.Recipe.Banks != 200 || w.Recipe.Gamma != 2.5 {
		t.Errorf("window recipe = %+v", w.Recipe)
	}
	if w.Runs != 50 || w.Workers != 4 || w.RecoveryRate != 0.3 {
		t.Errorf("window params = runs %d, workers %d, rr %v", w.Runs, w.Workers, w.RecoveryRate)
	}
	if w.Min != 1 || w.Max != 5 || w.Points != 9 {
		t.Errorf("window sweep = [%v, %v] x %d", w.Min, w.Max, w.Points)
	}
	// Fields left out keep their defaults.
	if w.Digits != 4 || w.Seeding.Kappa != 0.04 {
		t.Errorf("defaults lost: digits %d, kappa %v", w.Digits, w.Seeding.Kappa)
	}
	if config.Mergers.Rule != network.MergeSemihorizontal || config.Mergers.LastRound != 40 {
		t.Errorf("mergers = %+v", config.Mergers)
	}
	if config.Mergers.Points != 20 {
		t.Errorf("mergers points = %d, want default 20", config.Mergers.Points)
	}
	if r := config.MCP.RateLimits["gkmerge_window"]; r.Burst != 2 || r.PerMinute != 6 {
		t.Errorf("rate limit = %+v", r)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFromFile_PathExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
store:
  dir: ${TEST_GKMERGE_DIR}/results
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("TEST_GKMERGE_DIR", tmpDir)

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	dir, err := config.StoreDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != filepath.Join(tmpDir, "results") {
		t.Errorf("StoreDir() = %q", dir)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("window: [unclosed"), 0600)
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoad_HomeConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	cfg := Default()
	cfg.Logging.Level = "warn"
	path, err := Path()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", loaded.Logging.Level)
	}
	if loaded.Window.Recipe.Banks != cfg.Window.Recipe.Banks {
		t.Errorf("round trip lost recipe: %+v", loaded.Window.Recipe)
	}
}

func TestLoadFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	cfg := Default()
	cfg.Store.Backend = BackendMemory
	if err := cfg.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("GKMERGE_LOG_LEVEL", "debug")

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if loaded.Store.Backend != BackendMemory {
		t.Errorf("Store.Backend = %q, want memory", loaded.Store.Backend)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want env override debug", loaded.Logging.Level)
	}

	if _, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GKMERGE_LOG_LEVEL", "trace")
	t.Setenv("GKMERGE_STORE_BACKEND", "memory")
	t.Setenv("GKMERGE_STORE_DIR", "/tmp/gk")
	t.Setenv("GKMERGE_CASCADE_THRESHOLD", "0.2")
	t.Setenv("GKMERGE_WORKERS", "8")
	t.Setenv("GKMERGE_RUNS", "10")
	t.Setenv("GKMERGE_SEED", "42")
	t.Setenv("GKMERGE_BANKS", "300")

	config := Default()
	applyEnvOverrides(config)

	if config.Logging.Level != "trace" {
		t.Errorf("expected level 'trace', got '%s'", config.Logging.Level)
	}
	if config.Store.Backend != BackendMemory || config.Store.Dir != "/tmp/gk" {
		t.Errorf("store = %+v", config.Store)
	}
	if config.Stats.CascadeThreshold != 0.2 {
		t.Errorf("expected CascadeThreshold 0.2, got %f", config.Stats.CascadeThreshold)
	}
	for name, p := range map[string]experiment.Params{"window": config.Window.Params, "mergers": config.Mergers.Params} {
		if p.Workers != 8 || p.Runs != 10 || p.Seed != 42 || p.Recipe.Banks != 300 {
			t.Errorf("%s params = workers %d, runs %d, seed %d, banks %d", name, p.Workers, p.Runs, p.Seed, p.Recipe.Banks)
		}
	}
}

func TestEnvOverrides_IgnoresMalformed(t *testing.T) {
	t.Setenv("GKMERGE_RUNS", "many")
	t.Setenv("GKMERGE_CASCADE_THRESHOLD", "high")

	config := Default()
	applyEnvOverrides(config)

	if config.Window.Runs != 1000 {
		t.Errorf("Runs = %d, want default 1000", config.Window.Runs)
	}
	if config.Stats.CascadeThreshold != 0.05 {
		t.Errorf("CascadeThreshold = %v, want default", config.Stats.CascadeThreshold)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GkmergeConfig)
		want   string
	}{
		{"log level", func(c *GkmergeConfig) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"backend", func(c *GkmergeConfig) { c.Store.Backend = "postgres" }, "invalid store backend"},
		{"threshold", func(c *GkmergeConfig) { c.Stats.CascadeThreshold = 1.5 }, "cascade_threshold"},
		{"window runs", func(c *GkmergeConfig) { c.Window.Runs = 0 }, "window:"},
		{"mergers rounds", func(c *GkmergeConfig) { c.Mergers.LastRound = 5000 }, "mergers:"},
		{"mcp banks", func(c *GkmergeConfig) { c.MCP.MaxBanks = 1 }, "max_banks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	if got := expandPath("~/results"); got != filepath.Join(home, "results") {
		t.Errorf("expandPath(~/results) = %q", got)
	}
	if got := expandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("expandPath(/abs/path) = %q", got)
	}
	if got := expandPath(""); got != "" {
		t.Errorf("expandPath(\"\") = %q", got)
	}
}
