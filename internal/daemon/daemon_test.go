package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/pathorama/internal/config"
	"github.com/anstrom/pathorama/internal/logging"
)

func createTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	dict := filepath.Join(dir, "DIR.txt")
	require.NoError(t, os.WriteFile(dict, []byte("admin\nmissing\n"), 0600))

	cfg := config.Default()
	cfg.Scanner.DictionaryFile = dict
	cfg.Scanner.PollInterval = 20 * time.Millisecond
	cfg.Scanner.Threads = 2
	cfg.API.Port = 0
	cfg.Daemon.PIDFile = filepath.Join(dir, "run", "pathorama.pid")
	cfg.Daemon.ShutdownTimeout = 5 * time.Second
	cfg.Output.HitsFile = filepath.Join(dir, "out", "hits.jsonl")
	return cfg
}

func startDaemon(t *testing.T, d *Daemon) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case <-d.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("daemon did not become ready")
	}
	return cancel, done
}

func waitStopped(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestNew(t *testing.T) {
	cfg := createTestConfig(t)
	d := New(cfg, nil)

	require.NotNil(t, d)
	assert.Equal(t, cfg.Daemon.PIDFile, d.pidFile)
	assert.False(t, d.IsRunning())
	assert.Nil(t, d.Plugin())
}

func TestDaemon_RunScansAndWritesHits(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		http.NotFound(w, r)
	}))
	defer target.Close()

	cfg := createTestConfig(t)
	d := New(cfg, logging.Discard())
	cancel, done := startDaemon(t, d)
	defer cancel()

	assert.True(t, d.IsRunning())
	pid, err := os.ReadFile(cfg.Daemon.PIDFile)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(pid))

	added, err := d.Plugin().AddTargetURL(target.URL + "/login")
	require.NoError(t, err)
	require.True(t, added)

	ctx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, d.Plugin().Manager().WaitIdle(ctx))

	d.reportStats()
	d.dumpStatus()

	cancel()
	waitStopped(t, done)

	assert.False(t, d.IsRunning())
	assert.NoFileExists(t, cfg.Daemon.PIDFile)

	hits, err := os.ReadFile(cfg.Output.HitsFile)
	require.NoError(t, err)
	assert.Contains(t, string(hits), target.URL+"/admin")
	assert.Contains(t, string(hits), "403")
	assert.NotContains(t, string(hits), "/missing")
}

func TestDaemon_RunWithoutAPI(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.API.Enabled = false
	cfg.Output.HitsFile = ""
	cfg.Daemon.StatsSchedule = ""

	d := New(cfg, logging.Discard())
	cancel, done := startDaemon(t, d)
	assert.Nil(t, d.apiServer)
	assert.Nil(t, d.hub)

	cancel()
	waitStopped(t, done)
}

func TestDaemon_RunFailures(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"invalid config", func(c *config.Config) { c.Scanner.Concurrency = 0 }},
		{"missing dictionary", func(c *config.Config) { c.Scanner.DictionaryFile = "/nonexistent/DIR.txt" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestConfig(t)
			tt.modify(cfg)

			d := New(cfg, logging.Discard())
			err := d.Run(context.Background())
			assert.Error(t, err)
			assert.False(t, d.IsRunning())
			assert.NoFileExists(t, cfg.Daemon.PIDFile)
		})
	}
}

func TestDaemon_PIDFile(t *testing.T) {
	t.Run("refuses live process", func(t *testing.T) {
		cfg := createTestConfig(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Daemon.PIDFile), 0750))
		parent := strconv.Itoa(os.Getppid())
		require.NoError(t, os.WriteFile(cfg.Daemon.PIDFile, []byte(parent), 0600))

		d := New(cfg, logging.Discard())
		err := d.createPIDFile()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already running")
	})

	t.Run("replaces stale file", func(t *testing.T) {
		cfg := createTestConfig(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Daemon.PIDFile), 0750))
		require.NoError(t, os.WriteFile(cfg.Daemon.PIDFile, []byte("not-a-pid"), 0600))

		d := New(cfg, logging.Discard())
		require.NoError(t, d.createPIDFile())

		data, err := os.ReadFile(cfg.Daemon.PIDFile)
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

		d.removePIDFile()
		assert.NoFileExists(t, cfg.Daemon.PIDFile)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := createTestConfig(t)
		cfg.Daemon.PIDFile = ""
		d := New(cfg, logging.Discard())
		assert.NoError(t, d.createPIDFile())
		d.removePIDFile()
	})
}

func TestIsProcessRunning(t *testing.T) {
	assert.True(t, isProcessRunning(os.Getpid()))
	assert.False(t, isProcessRunning(0))
	assert.False(t, isProcessRunning(-1))
}
