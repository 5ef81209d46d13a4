// Package manager runs path scans for targets that arrive over time. It owns
// the loaded dictionary, a deduplicated target queue and a fixed pool of
// manager workers, each driving one Scanner at a time.
package manager

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anstrom/pathorama/internal/dictionary"
	"github.com/anstrom/pathorama/internal/errors"
	"github.com/anstrom/pathorama/internal/host"
	"github.com/anstrom/pathorama/internal/logging"
	"github.com/anstrom/pathorama/internal/metrics"
	"github.com/anstrom/pathorama/internal/probe"
	"github.com/anstrom/pathorama/internal/scanning"
)

const (
	componentName = "scanner manager"

	DefaultConcurrency  = 1
	DefaultPollInterval = time.Second
	idlePollInterval    = 20 * time.Millisecond
)

// Config holds the manager configuration.
type Config struct {
	DictionaryFile string
	// Concurrency is the number of manager workers, i.e. targets scanned at once.
	Concurrency int
	// Threads is the per-scanner worker count, clamped to [1, 50].
	Threads       int
	PollInterval  time.Duration
	JoinTimeout   time.Duration
	ProgressEvery int
	Probe         probe.Config
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		DictionaryFile: "DIR.txt",
		Concurrency:    DefaultConcurrency,
		Threads:        scanning.DefaultThreads,
		PollInterval:   DefaultPollInterval,
		JoinTimeout:    scanning.DefaultJoinTimeout,
		ProgressEvery:  scanning.DefaultProgressEvery,
		Probe:          probe.DefaultConfig(),
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder shared with every scanner.
func WithRecorder(r metrics.Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithProber replaces the probe client shared by all scanners.
func WithProber(p scanning.Prober) Option {
	return func(m *Manager) {
		if p != nil {
			m.prober = p
		}
	}
}

// Status is a snapshot of the manager state.
type Status struct {
	Running     bool             `json:"running"`
	Dictionary  string           `json:"dictionary"`
	Encoding    string           `json:"encoding,omitempty"`
	Paths       int              `json:"paths"`
	Concurrency int              `json:"concurrency"`
	Threads     int              `json:"threads"`
	Queued      []string         `json:"queued"`
	Processed   int              `json:"processed"`
	Completed   int              `json:"completed"`
	Hits        int64            `json:"hits"`
	Active      []scanning.Stats `json:"active"`
}

// Manager schedules one Scanner per target. Targets are scanned at most once
// for the lifetime of the Manager.
type Manager struct {
	config   Config
	sink     host.Sink
	prober   scanning.Prober
	base     *logging.Logger
	logger   *logging.Logger
	recorder metrics.Recorder
	targets  *targetQueue
	hits     atomic.Int64

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu          sync.Mutex
	running     bool
	dict        *dictionary.Dictionary
	processed   map[string]struct{}
	scanners    map[string]*scanning.Scanner
	outstanding int
	completed   int
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// New creates a stopped Manager publishing hits to sink.
func New(cfg Config, sink host.Sink, opts ...Option) *Manager {
	defaults := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.Threads == 0 {
		cfg.Threads = defaults.Threads
	}
	cfg.Threads = scanning.ClampThreads(cfg.Threads)
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = defaults.JoinTimeout
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaults.ProgressEvery
	}
	if sink == nil {
		sink = host.SinkFunc(func(host.RowBatch) {})
	}

	m := &Manager{
		config:    cfg,
		sink:      sink,
		logger:    logging.Default(),
		recorder:  metrics.Nop{},
		targets:   newTargetQueue(),
		processed: make(map[string]struct{}),
		scanners:  make(map[string]*scanning.Scanner),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.prober == nil {
		m.prober = probe.New(cfg.Probe)
	}
	m.base = m.logger
	m.logger = m.logger.WithComponent("manager")
	return m
}

// Start loads the dictionary and spawns the manager workers. A dictionary
// failure leaves the manager stopped.
func (m *Manager) Start() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.IsRunning() {
		return errors.ErrAlreadyRunning(componentName)
	}

	dict, err := dictionary.Load(m.config.DictionaryFile)
	if err != nil {
		m.logger.Error("Failed to start scanner manager", "dictionary", m.config.DictionaryFile, "error", err)
		return err
	}

	m.mu.Lock()
	m.dict = dict
	m.running = true
	m.stopCh = make(chan struct{})
	stop := m.stopCh
	for i := 0; i < m.config.Concurrency; i++ {
		m.wg.Add(1)
		go m.worker(i, stop)
	}
	m.mu.Unlock()

	m.logger.Info("Scanner manager started",
		"workers", m.config.Concurrency,
		"threads", m.config.Threads,
		"paths", dict.Paths.Len(),
		"encoding", dict.Encoding,
		"queued", m.targets.Len())
	return nil
}

// Stop cancels running scanners and waits for every manager worker to exit.
func (m *Manager) Stop() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return errors.ErrNotRunning(componentName)
	}
	m.running = false
	close(m.stopCh)
	scanners := make([]*scanning.Scanner, 0, len(m.scanners))
	for _, s := range m.scanners {
		scanners = append(scanners, s)
	}
	m.scanners = make(map[string]*scanning.Scanner)
	m.mu.Unlock()

	m.logger.Info("Stopping scanner manager", "running_scanners", len(scanners))
	for _, s := range scanners {
		s.Cancel()
	}
	m.wg.Wait()

	m.logger.Info("Scanner manager stopped", "queued", m.targets.Len())
	return nil
}

// IsRunning reports whether the manager has been started and not stopped.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// AddTarget derives the target origin from an observed request context and
// queues it unless it was seen before. Safe for concurrent use, whether or not
// the manager is running.
func (m *Manager) AddTarget(ctx host.Context) bool {
	if ctx.Scheme == "" || ctx.Host == "" {
		added, err := m.AddTargetURL(ctx.URL)
		if err != nil {
			m.logger.Warn("Ignoring request without a usable origin", "url", ctx.URL, "error", err)
		}
		return added
	}

	port := ""
	if ctx.Port > 0 {
		port = strconv.Itoa(ctx.Port)
	}
	return m.addOrigin(scanning.FormatOrigin(ctx.Scheme, ctx.Host, port))
}

// AddTargetURL normalizes raw and queues it unless it was seen before.
func (m *Manager) AddTargetURL(raw string) (bool, error) {
	target, err := scanning.NormalizeTarget(raw)
	if err != nil {
		return false, err
	}
	return m.addOrigin(target), nil
}

func (m *Manager) addOrigin(target string) bool {
	m.mu.Lock()
	if _, seen := m.processed[target]; seen {
		m.mu.Unlock()
		m.recorder.IncrementTargetsDuplicate()
		return false
	}
	m.processed[target] = struct{}{}
	m.outstanding++
	m.targets.Push(target)
	m.mu.Unlock()

	m.recorder.IncrementTargetsAccepted()
	m.recorder.SetQueuedTargets(m.targets.Len())
	m.logger.InfoManager("Add target", "target", target)
	return true
}

// Status returns a snapshot of the manager state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{
		Running:     m.running,
		Dictionary:  m.config.DictionaryFile,
		Concurrency: m.config.Concurrency,
		Threads:     m.config.Threads,
		Processed:   len(m.processed),
		Completed:   m.completed,
		Hits:        m.hits.Load(),
	}
	if m.dict != nil {
		st.Encoding = m.dict.Encoding
		st.Paths = m.dict.Paths.Len()
	}
	scanners := make([]*scanning.Scanner, 0, len(m.scanners))
	for _, s := range m.scanners {
		scanners = append(scanners, s)
	}
	m.mu.Unlock()

	st.Queued = m.targets.Snapshot()
	st.Active = make([]scanning.Stats, 0, len(scanners))
	for _, s := range scanners {
		st.Active = append(st.Active, s.Stats())
	}
	sort.Slice(st.Active, func(i, j int) bool { return st.Active[i].Target < st.Active[j].Target })
	return st
}

// WaitIdle blocks until every accepted target has been scanned or ctx is done.
func (m *Manager) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		m.mu.Lock()
		idle := m.outstanding == 0
		m.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) worker(id int, stop <-chan struct{}) {
	defer m.wg.Done()

	m.logger.Debug("Manager worker started", "worker_id", id)
	defer m.logger.Debug("Manager worker stopped", "worker_id", id)

	for {
		select {
		case <-stop:
			return
		default:
		}

		target, ok := m.targets.Pop(stop, m.config.PollInterval)
		if !ok {
			continue
		}
		m.recorder.SetQueuedTargets(m.targets.Len())
		m.scanTarget(id, target)
	}
}

// scanTarget runs one Scanner for target to completion or cancellation.
func (m *Manager) scanTarget(workerID int, target string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Scan manager worker error",
				"worker_id", workerID,
				"target", target,
				"panic", r,
				"stack", string(debug.Stack()))
			m.finish("")
		}
	}()

	scanner, err := scanning.New(target, m.dict.Paths.Paths(), m.handleHit,
		scanning.WithThreads(m.config.Threads),
		scanning.WithProber(m.prober),
		scanning.WithJoinTimeout(m.config.JoinTimeout),
		scanning.WithProgressEvery(m.config.ProgressEvery),
		scanning.WithLogger(m.base),
		scanning.WithRecorder(m.recorder))
	if err != nil {
		m.logger.ErrorScan("Failed to create scanner", target, err)
		m.finish("")
		return
	}

	if !m.register(scanner) {
		return
	}

	scanner.WaitForCompletion()
	m.finish(scanner.ID())

	stats := scanner.Stats()
	m.logger.InfoManager("Target finished",
		"target", target,
		"state", stats.State,
		"scanned", stats.Scanned,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed)
}

// register records and starts scanner. Both happen under the manager lock so
// Stop either cancels the scanner or the target is put back in the queue.
func (m *Manager) register(scanner *scanning.Scanner) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		m.targets.Push(scanner.Target())
		return false
	}
	m.scanners[scanner.ID()] = scanner
	scanner.Scan()
	return true
}

func (m *Manager) finish(scannerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if scannerID != "" {
		delete(m.scanners, scannerID)
	}
	m.outstanding--
	m.completed++
}

// handleHit wraps a hit into a host row and publishes it as a one-row batch.
func (m *Manager) handleHit(hit scanning.Hit) {
	row := host.Row{
		Request: host.NewHTTPRequest(hit.Result.Request),
	}

	length := 0
	if r := hit.Result.Response; r != nil {
		row.Response = host.NewHTTPResponse(r.StatusCode, r.Status, r.Proto, r.Header, r.Body)
		length = host.PayloadLength(row.Response.Body)
	}
	row.Data = []any{hit.URL, hit.Status, length}

	m.hits.Add(1)
	m.sink.Publish(host.RowBatch{row})
}

// String implements fmt.Stringer for log output.
func (s Status) String() string {
	state := "stopped"
	if s.Running {
		state = "running"
	}
	return fmt.Sprintf("%s: %d processed, %d completed, %d queued, %d active, %d hits",
		state, s.Processed, s.Completed, len(s.Queued), len(s.Active), s.Hits)
}
