package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inDir runs the test from an empty directory so that no stray knotdc.yaml
// is picked up.
func inDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inDir(t)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), normalize(c))
}

// normalize maps empty decoded slices to nil so they compare equal to
// Default.
func normalize(c Config) Config {
	if len(c.Crystals) == 0 {
		c.Crystals = nil
	}
	if len(c.Seed) == 0 {
		c.Seed = nil
	}
	return c
}

func TestLoadFile(t *testing.T) {
	dir := inDir(t)
	yml := `
name: TEST_DC
server:
  port: 6000
  poll_interval: 250ms
  commands_per_second: 10
  burst: 5
ai:
  interval: 0s
  seed: 42
log:
  level: debug
  format: json
demo: false
crystals:
  - name: Alpha
    dimensions: [4, 4, 4]
  - name: Beta
    dimensions: [2, 3, 1]
seed:
  - crystal: Alpha
    data: hello
    knot: hopf
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "knotdc.yaml"), []byte(yml), 0o644))

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "TEST_DC", c.Name)
	assert.Equal(t, 6000, c.Server.Port)
	assert.Equal(t, "localhost", c.Server.Host, "unset keys keep their defaults")
	assert.Equal(t, 250*time.Millisecond, c.Server.PollInterval)
	assert.InDelta(t, 10.0, c.Server.CommandsPerSecond, 1e-12)
	assert.Equal(t, 5, c.Server.Burst)
	assert.Zero(t, c.AI.Interval)
	assert.Equal(t, uint64(42), c.AI.Seed)
	assert.Equal(t, "json", c.Log.Format)
	assert.False(t, c.Demo)

	require.Len(t, c.Crystals, 2)
	assert.Equal(t, CrystalConfig{Name: "Beta", Dimensions: []int{2, 3, 1}}, c.Crystals[1])
	require.Len(t, c.Seed, 1)
	assert.Equal(t, SeedConfig{Crystal: "Alpha", Data: "hello", Knot: "hopf"}, c.Seed[0])
}

func TestLoadEnvOverride(t *testing.T) {
	inDir(t)
	t.Setenv("KNOTDC_SERVER_PORT", "7001")
	t.Setenv("KNOTDC_DASHBOARD_REFRESH", "5s")
	t.Setenv("KNOTDC_NAME", "ENV_DC")
	t.Setenv("KNOTDC_TRACE_EXPORTER", "stdout")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7001, c.Server.Port)
	assert.Equal(t, 5*time.Second, c.Dashboard.Refresh)
	assert.Equal(t, "ENV_DC", c.Name)
	assert.Equal(t, "stdout", c.Trace.Exporter)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	dir := inDir(t)
	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty name", mutate: func(c *Config) { c.Name = "" }},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "zero poll interval", mutate: func(c *Config) { c.Server.PollInterval = 0 }},
		{name: "tiny read buffer", mutate: func(c *Config) { c.Server.ReadBuffer = 8 }},
		{name: "negative rate", mutate: func(c *Config) { c.Server.CommandsPerSecond = -1 }},
		{name: "threshold above one", mutate: func(c *Config) { c.AI.FidelityThreshold = 1.5 }},
		{name: "no error history", mutate: func(c *Config) { c.AI.ErrorHistory = 0 }},
		{name: "bad dashboard addr", mutate: func(c *Config) { c.Dashboard.DatacenterAddr = "nohost" }},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }},
		{name: "unknown trace exporter", mutate: func(c *Config) { c.Trace.Exporter = "jaeger" }},
		{name: "crystal with two dimensions", mutate: func(c *Config) {
			c.Crystals = []CrystalConfig{{Name: "A", Dimensions: []int{2, 2}}}
		}},
		{name: "crystal with zero dimension", mutate: func(c *Config) {
			c.Crystals = []CrystalConfig{{Name: "A", Dimensions: []int{2, 0, 2}}}
		}},
		{name: "crystal dimension above bound", mutate: func(c *Config) {
			c.Crystals = []CrystalConfig{{Name: "A", Dimensions: []int{1, 1, 1 << 25}}}
		}},
		{name: "crystal volume above bound", mutate: func(c *Config) {
			c.Crystals = []CrystalConfig{{Name: "A", Dimensions: []int{1 << 12, 1 << 12, 1 << 12}}}
		}},
		{name: "crystal name with space", mutate: func(c *Config) {
			c.Crystals = []CrystalConfig{{Name: "A B", Dimensions: []int{1, 1, 1}}}
		}},
		{name: "unknown knot", mutate: func(c *Config) {
			c.Crystals = []CrystalConfig{{Name: "A", Dimensions: []int{1, 1, 1}}}
			c.Seed = []SeedConfig{{Crystal: "A", Data: "x", Knot: "granny"}}
		}},
		{name: "seed for undeclared crystal", mutate: func(c *Config) {
			c.Demo = false
			c.Seed = []SeedConfig{{Crystal: "Ghost", Data: "x", Knot: "hopf"}}
		}},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	dir := inDir(t)
	path := filepath.Join(dir, "conf", "knotdc.yaml")

	require.NoError(t, WriteDefault(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poll_interval: 1s")
	assert.Contains(t, string(data), "name: QUANTUM_KNOT_DC_001")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), normalize(c))

	assert.Error(t, WriteDefault(path, false), "existing file is kept")
	assert.NoError(t, WriteDefault(path, true))
}
