package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/knotdc/internal/config"
	"github.com/dreamware/knotdc/internal/crystal"
	"github.com/dreamware/knotdc/internal/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig binds every listener to a free loopback port.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.PollInterval = 20 * time.Millisecond
	cfg.Metrics.Listen = "127.0.0.1:0"
	cfg.AI.Interval = 0
	cfg.AI.Seed = 7
	return cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "datacenter dev\n", out)
}

func TestConfigInitAndShow(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "knotdc.yaml")

	out, err := execute(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")
	assert.FileExists(t, path)

	_, err = execute(t, "config", "init", "--path", path)
	assert.Error(t, err, "refuses to overwrite without --force")

	out, err = execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "QUANTUM_KNOT_DC_001")
}

func TestLoadDemoData(t *testing.T) {
	d, err := newDaemon(testConfig(), quietLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"Cristal_Alpha", "Cristal_Beta", "Cristal_Gamma"}, d.dc.List())

	want := map[string]int{"Cristal_Alpha": 2, "Cristal_Beta": 2, "Cristal_Gamma": 1}
	for name, used := range want {
		st, err := d.dc.State(name)
		require.NoError(t, err)
		assert.Equal(t, used, st.Used, name)
	}

	st, err := d.dc.State("Cristal_Gamma")
	require.NoError(t, err)
	assert.Equal(t, 125, st.Total)
}

func TestLoadConfiguredData(t *testing.T) {
	cfg := testConfig()
	cfg.Demo = false
	cfg.Crystals = []config.CrystalConfig{{Name: "Tiny", Dimensions: []int{1, 1, 2}}}
	cfg.Seed = []config.SeedConfig{
		{Crystal: "Tiny", Data: "one", Knot: "hopf"},
		{Crystal: "Tiny", Data: "two", Knot: "trebol"},
	}

	d, err := newDaemon(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"Tiny"}, d.dc.List())

	t.Run("overflow", func(t *testing.T) {
		cfg.Seed = append(cfg.Seed, config.SeedConfig{Crystal: "Tiny", Data: "three", Knot: "hopf"})
		_, err := newDaemon(cfg, quietLogger())
		assert.ErrorIs(t, err, crystal.ErrCapacityExceeded)
	})

	t.Run("duplicate of a demo crystal", func(t *testing.T) {
		dup := testConfig()
		dup.Crystals = []config.CrystalConfig{{Name: "Cristal_Alpha", Dimensions: []int{1, 1, 1}}}
		_, err := newDaemon(dup, quietLogger())
		assert.Error(t, err)
	})

	t.Run("unknown knot", func(t *testing.T) {
		bad := testConfig()
		bad.Seed = []config.SeedConfig{{Crystal: "Cristal_Alpha", Data: "x", Knot: "granny"}}
		_, err := newDaemon(bad, quietLogger())
		assert.Error(t, err)
	})
}

func TestRunServesAndStops(t *testing.T) {
	d, err := newDaemon(testConfig(), quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()

	select {
	case <-d.ready:
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not become ready")
	}

	client := protocol.NewClient(d.server.Addr().String(), time.Second)
	names, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 3)

	st, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "QUANTUM_KNOT_DC_001", st.Datacenter)
	assert.Equal(t, 3, st.Crystals)

	res, err := http.Get("http://" + d.metrics.String() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "knotdc_server_commands_total")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.False(t, d.server.Running())
}

func TestRunReportsBindError(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Listen = "256.0.0.1:1"

	d, err := newDaemon(cfg, quietLogger())
	require.NoError(t, err)
	assert.Error(t, d.run(context.Background()))
}

func TestMainUsesLogFatal(t *testing.T) {
	var called bool
	orig := logFatal
	logFatal = func(string, ...any) { called = true }
	defer func() { logFatal = orig }()

	origArgs := os.Args
	os.Args = []string{"datacenter", "no-such-command"}
	defer func() { os.Args = origArgs }()

	main()
	assert.True(t, called)
}
