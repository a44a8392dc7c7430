package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/talgya/segsim/internal/engine"
	"github.com/talgya/segsim/internal/world"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Model.Width != 10 || config.Model.Height != 10 {
		t.Errorf("expected 10x10 grid, got %dx%d", config.Model.Width, config.Model.Height)
	}
	if config.Model.AgentCount != 90 {
		t.Errorf("expected 90 agents, got %d", config.Model.AgentCount)
	}
	if config.Model.SatisfactionThreshold != 0.6 {
		t.Errorf("expected satisfaction 0.6, got %v", config.Model.SatisfactionThreshold)
	}
	if config.Model.MovingRange != 2 {
		t.Errorf("expected moving range 2, got %d", config.Model.MovingRange)
	}
	if config.Model.ContractMode {
		t.Error("expected contract mode off by default")
	}
	if config.Server.Port != 8765 {
		t.Errorf("expected port 8765, got %d", config.Server.Port)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "segsim.yaml")

	configContent := `
model:
  agents: 50
  width: 12
  height: 8
  contract: true
  placement: clustered
  mobility:
    steepness: 2
    midpoint: 3
    scale: 1
server:
  port: 9000
  admin_key: ${SEGSIM_TEST_KEY}
  interval: 250ms
storage:
  path: runs.db
  snapshot_every: 10
logging:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("SEGSIM_TEST_KEY", "from-env")

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Model.AgentCount != 50 || config.Model.Width != 12 || config.Model.Height != 8 {
		t.Errorf("unexpected model %+v", config.Model)
	}
	if !config.Model.ContractMode {
		t.Error("expected contract mode on")
	}
	if config.Model.Placement != world.PlacementClustered {
		t.Errorf("expected clustered placement, got %q", config.Model.Placement)
	}
	if config.Model.Mobility.Steepness != 2 || config.Model.Mobility.Midpoint != 3 {
		t.Errorf("unexpected mobility curve %+v", config.Model.Mobility)
	}
	// Keys absent from the file keep their defaults.
	if config.Model.TypeRatio != 0.5 || config.Model.MovingRange != 2 {
		t.Errorf("defaults not preserved: %+v", config.Model)
	}
	if config.Server.Port != 9000 || config.Server.Interval != 250*time.Millisecond {
		t.Errorf("unexpected server config %s", config.Server)
	}
	if config.Server.AdminKey != "from-env" {
		t.Errorf("expected expanded admin key, got %q", config.Server.AdminKey)
	}
	if config.Storage.Path != "runs.db" || config.Storage.SnapshotEvery != 10 {
		t.Errorf("unexpected storage config %+v", config.Storage)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", config.Logging.Level)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("SEGSIM_AGENTS", "20")
	t.Setenv("SEGSIM_WIDTH", "5")
	t.Setenv("SEGSIM_HEIGHT", "6")
	t.Setenv("SEGSIM_RATIO", "0.25")
	t.Setenv("SEGSIM_SATISFACTION", "0.3")
	t.Setenv("SEGSIM_MOVING_RANGE", "3")
	t.Setenv("SEGSIM_CONTRACT", "1")
	t.Setenv("SEGSIM_SEED", "99")
	t.Setenv("SEGSIM_PORT", "8080")
	t.Setenv("SEGSIM_DB", "/tmp/x.db")
	t.Setenv("SEGSIM_LOG_LEVEL", "warn")
	t.Setenv("SEGSIM_ADMIN_KEY", "secret")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for an explicit missing path")
	}

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	m := config.Model
	if m.AgentCount != 20 || m.Width != 5 || m.Height != 6 || m.MovingRange != 3 {
		t.Errorf("int overrides not applied: %+v", m)
	}
	if m.TypeRatio != 0.25 || m.SatisfactionThreshold != 0.3 {
		t.Errorf("float overrides not applied: %+v", m)
	}
	if !m.ContractMode || m.Seed != 99 {
		t.Errorf("contract/seed overrides not applied: %+v", m)
	}
	if config.Server.Port != 8080 || config.Server.AdminKey != "secret" {
		t.Errorf("server overrides not applied: %s", config.Server)
	}
	if config.Storage.Path != "/tmp/x.db" || config.Logging.Level != "warn" {
		t.Errorf("storage/logging overrides not applied")
	}
	if config.Params() != m {
		t.Error("Params should return the model section")
	}
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("SEGSIM_AGENTS", "lots")
	t.Setenv("SEGSIM_RATIO", "half")
	config := Default()
	applyEnvOverrides(config)
	if config.Model.AgentCount != 90 || config.Model.TypeRatio != 0.5 {
		t.Errorf("garbage overrides should be ignored: %+v", config.Model)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"model capacity", func(c *Config) { c.Model.AgentCount = 101 }, "capacity"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"interval", func(c *Config) { c.Server.Interval = -time.Second }, "interval"},
		{"snapshot every", func(c *Config) { c.Storage.SnapshotEvery = -1 }, "snapshot_every"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	c := Default()
	c.Model.Width = 0
	if err := c.Validate(); !errors.Is(err, engine.ErrConfiguration) {
		t.Errorf("model errors should be configuration errors, got %v", err)
	}
}

func TestServerConfigRedactsAdminKey(t *testing.T) {
	s := ServerConfig{Port: 1, AdminKey: "abcd-secret-wxyz"}
	if strings.Contains(s.String(), "secret") {
		t.Errorf("admin key leaked: %s", s)
	}
	if got := (ServerConfig{AdminKey: "short"}).RedactedAdminKey(); got != "(set)" {
		t.Errorf("expected (set), got %q", got)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	c := Default()
	c.Model.Seed = 7
	data, err := c.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	back, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Model != c.Model || back.Server.Interval != c.Server.Interval {
		t.Errorf("round trip changed config: %+v vs %+v", back.Model, c.Model)
	}
}

func TestSchema(t *testing.T) {
	data, err := SchemaJSON()
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if doc["title"] != "segsim configuration" {
		t.Errorf("unexpected title %v", doc["title"])
	}
	for _, key := range []string{"satisfaction", "moving_range", "snapshot_every", "admin_key"} {
		if !strings.Contains(string(data), `"`+key+`"`) {
			t.Errorf("schema missing %s", key)
		}
	}
}
