// Package daemon runs pathorama as a long lived service. It wires the scanner
// plugin to its sinks, serves the API, reports statistics on a cron schedule
// and shuts everything down on SIGINT or SIGTERM.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/anstrom/pathorama/internal/api"
	"github.com/anstrom/pathorama/internal/api/handlers"
	"github.com/anstrom/pathorama/internal/config"
	"github.com/anstrom/pathorama/internal/host"
	"github.com/anstrom/pathorama/internal/logging"
	"github.com/anstrom/pathorama/internal/metrics"
	"github.com/anstrom/pathorama/internal/plugin"
)

const systemMetricsInterval = 15 * time.Second

// File permission constants.
const (
	DefaultDirPermissions  = 0o750
	DefaultFilePermissions = 0o600
)

// Daemon represents the main daemon process.
type Daemon struct {
	config  *config.Config
	logger  *logging.Logger
	metrics *metrics.PrometheusMetrics
	pidFile string

	plugin    *plugin.Scanner
	hub       *handlers.HitHub
	apiServer *api.Server
	hitsFile  *os.File
	cron      *cron.Cron

	mu      sync.RWMutex
	running bool
	ready   chan struct{}
}

// New creates a new daemon instance.
func New(cfg *config.Config, logger *logging.Logger) *Daemon {
	if logger == nil {
		logger = logging.Default()
	}
	return &Daemon{
		config:  cfg,
		logger:  logger.WithComponent("daemon"),
		pidFile: cfg.Daemon.PIDFile,
		ready:   make(chan struct{}),
	}
}

// Run starts every component and blocks until ctx is cancelled, a shutdown
// signal arrives or a component fails.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.InfoDaemon("Starting pathorama daemon", "pid", os.Getpid())

	if err := d.config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := d.createPIDFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer d.removePIDFile()

	if err := d.setup(); err != nil {
		if d.plugin != nil {
			d.plugin.Stop()
		}
		d.teardown()
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go d.handleStatusSignals(ctx)

	g, gctx := errgroup.WithContext(ctx)
	if d.apiServer != nil {
		g.Go(func() error { return d.apiServer.Start(gctx) })
	}
	g.Go(func() error {
		d.metrics.StartPeriodicUpdates(gctx, systemMetricsInterval)
		return nil
	})
	if d.cron != nil {
		g.Go(func() error {
			d.cron.Start()
			<-gctx.Done()
			<-d.cron.Stop().Done()
			return nil
		})
	}

	d.setRunning(true)
	close(d.ready)
	d.logger.InfoDaemon("Daemon started successfully", "api", d.apiServer != nil)

	err := g.Wait()
	d.setRunning(false)
	d.logger.InfoDaemon("Shutdown signal received")

	d.shutdown()
	if err != nil {
		d.logger.ErrorDaemon("Daemon stopped with error", err)
		return err
	}
	d.logger.InfoDaemon("Daemon stopped gracefully")
	return nil
}

// Ready is closed once every component is running.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// IsRunning reports whether the daemon is serving.
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Plugin returns the scanner plugin, or nil before Run.
func (d *Daemon) Plugin() *plugin.Scanner {
	return d.plugin
}

// Metrics returns the metrics registry, or nil before Run.
func (d *Daemon) Metrics() *metrics.PrometheusMetrics {
	return d.metrics
}

func (d *Daemon) setRunning(v bool) {
	d.mu.Lock()
	d.running = v
	d.mu.Unlock()
}

// setup builds metrics, sinks, the plugin, the API server and the reporter.
func (d *Daemon) setup() error {
	d.metrics = metrics.NewPrometheusMetrics()

	var sinks host.MultiSink
	if d.config.API.Enabled {
		d.hub = handlers.NewHitHub(d.logger, d.metrics)
		sinks = append(sinks, d.hub)
	}
	if path := d.config.Output.HitsFile; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
			return fmt.Errorf("failed to create hits file directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, DefaultFilePermissions)
		if err != nil {
			return fmt.Errorf("failed to open hits file: %w", err)
		}
		d.hitsFile = f
		sinks = append(sinks, host.NewJSONLinesSink(f))
	}

	d.plugin = plugin.New(d.config.ManagerConfig(),
		plugin.WithLogger(d.logger),
		plugin.WithRecorder(d.metrics))
	if err := d.plugin.Initialize(sinks); err != nil {
		return fmt.Errorf("failed to initialize scanner: %w", err)
	}
	if err := d.plugin.Manager().Start(); err != nil {
		return fmt.Errorf("failed to start scanner: %w", err)
	}

	if d.config.API.Enabled {
		srv, err := api.New(d.config, d.plugin, d.hub, d.metrics, d.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize API server: %w", err)
		}
		d.apiServer = srv
	}

	if schedule := d.config.Daemon.StatsSchedule; schedule != "" {
		d.cron = cron.New()
		if _, err := d.cron.AddFunc(schedule, d.reportStats); err != nil {
			return fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
		}
	}
	return nil
}

// shutdown stops the scanner within the configured timeout, then releases sinks.
func (d *Daemon) shutdown() {
	done := make(chan struct{})
	go func() {
		if d.plugin != nil {
			d.plugin.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d.config.Daemon.ShutdownTimeout):
		d.logger.Warn("Shutdown timeout reached, abandoning running scans",
			"timeout", d.config.Daemon.ShutdownTimeout)
	}
	d.teardown()
}

// teardown releases sinks. The API server stops itself when its context ends.
func (d *Daemon) teardown() {
	if d.hub != nil {
		d.hub.Shutdown()
	}
	if d.hitsFile != nil {
		if err := d.hitsFile.Close(); err != nil {
			d.logger.ErrorDaemon("Error closing hits file", err)
		}
		d.hitsFile = nil
	}
}

// reportStats logs a one line manager summary.
func (d *Daemon) reportStats() {
	status, ok := d.plugin.Status()
	if !ok {
		return
	}
	d.logger.InfoDaemon("Scanner status",
		"summary", status.String(),
		"queued", len(status.Queued),
		"active", len(status.Active),
		"hits", status.Hits)
}

// handleStatusSignals dumps the status on SIGUSR1.
func (d *Daemon) handleStatusSignals(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			d.dumpStatus()
		}
	}
}

func (d *Daemon) dumpStatus() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	d.logger.InfoDaemon("Status dump",
		"pid", os.Getpid(),
		"goroutines", runtime.NumGoroutine(),
		"alloc_kb", m.Alloc/1024,
		"uptime", d.metrics.GetUptime().Round(time.Second).String())
	d.reportStats()
}

// createPIDFile writes the PID file, refusing to start over a live process.
func (d *Daemon) createPIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(d.pidFile), DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}
	if err := d.checkExistingPID(); err != nil {
		return err
	}

	pid := os.Getpid()
	if err := os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)), DefaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	d.logger.InfoDaemon("Created PID file", "path", d.pidFile, "pid", pid)
	return nil
}

// checkExistingPID fails when the PID file names a running process; stale or
// unreadable files are removed.
func (d *Daemon) checkExistingPID() error {
	data, err := os.ReadFile(d.pidFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read existing PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err == nil && pid != os.Getpid() && isProcessRunning(pid) {
		return fmt.Errorf("daemon already running with PID %d", pid)
	}
	_ = os.Remove(d.pidFile)
	return nil
}

func (d *Daemon) removePIDFile() {
	if d.pidFile == "" {
		return
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		d.logger.ErrorDaemon("Error removing PID file", err)
	}
}

func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
