package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow/kdag"
	"github.com/prometheus/client_golang/prometheus"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig("")
		assert.NoError(t, err)
		assert.Equal(t, "pebble", cfg.Storage)
		assert.Equal(t, time.Second, cfg.Checkpoint.Interval)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := loadConfig(writeConfig(t, `
storage: badger
checkpoint:
  interval: 250ms
source:
  count: 42
counter: true
`))
		assert.NoError(t, err)
		assert.Equal(t, "badger", cfg.Storage)
		assert.Equal(t, 250*time.Millisecond, cfg.Checkpoint.Interval)
		assert.Equal(t, 10_000, cfg.Checkpoint.MaxOperations)
		assert.Equal(t, "generator", cfg.Source.Type)
		assert.Equal(t, uint64(42), cfg.Source.Count)
		assert.True(t, cfg.Counter)
	})

	t.Run("unknown storage", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Storage = "tape"
		_, err := cfg.backend(slog.New(slog.DiscardHandler))
		assert.IsError(t, err, errInvalidConfig)
	})
}

func TestBuild(t *testing.T) {
	cfg := defaultConfig()
	cfg.Counter = true
	p, err := cfg.build()
	assert.NoError(t, err)
	assert.Equal(t, []kdag.NodeHandle{sourceHandle, sinkHandle, counterHandle}, p.dag.Nodes())
	assert.Equal(t, 2, len(p.dag.Edges()))

	cfg.Sink.Type = "printer"
	_, err = cfg.build()
	assert.IsError(t, err, errInvalidConfig)
}

func TestRunAndInspect(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
dir: `+dir+`
storage: memory
log:
  level: error
  format: json
source:
  count: 100
counter: true
`)

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run", "--config", path, "--metrics-addr", "127.0.0.1:0"})
	assert.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "sink received 100 operations")
	assert.Contains(t, out.String(), "FullyConsistent(100)")

	out.Reset()
	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"inspect", "--config", path})
	assert.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "FullyConsistent(100)")
}

func TestServeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ops := prometheus.NewCounter(prometheus.CounterOpts{Name: "kflow_node_operations_total", Help: "ops"})
	reg.MustRegister(ops)
	ops.Add(3)

	srv, err := serveMetrics("127.0.0.1:0", reg, slog.New(slog.DiscardHandler))
	assert.NoError(t, err)

	resp, err := http.Get("http://" + srv.addr.String() + "/metrics")
	assert.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "kflow_node_operations_total 3")

	assert.NoError(t, srv.shutdown())
	_, err = http.Get("http://" + srv.addr.String() + "/metrics")
	assert.Error(t, err)
}
