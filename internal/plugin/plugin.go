// Package plugin adapts the scanner manager to a plugin host lifecycle:
// describe, initialize, start, stop and per-request/response callbacks.
package plugin

import (
	"sync"

	"github.com/anstrom/pathorama/internal/errors"
	"github.com/anstrom/pathorama/internal/host"
	"github.com/anstrom/pathorama/internal/logging"
	"github.com/anstrom/pathorama/internal/manager"
	"github.com/anstrom/pathorama/internal/metrics"
)

const componentName = "scanner plugin"

// Result table columns.
const (
	ColumnURL    = 0
	ColumnStatus = 1
	ColumnLength = 2
)

// Describe returns the capability descriptor: a task plugin consuming
// request events and producing URL/status/length rows.
func Describe() host.Descriptor {
	return host.Descriptor{
		Type:     host.PluginTypeTask,
		Request:  true,
		Response: false,
		Layout: host.Layout{
			Headers: []host.Column{
				{Name: "URL", Index: ColumnURL},
				{Name: "Status", Index: ColumnStatus},
				{Name: "Length", Index: ColumnLength},
			},
		},
	}
}

// Scanner is the content discovery plugin. It is constructed explicitly and
// owns its manager; there is no package level state.
type Scanner struct {
	config   manager.Config
	logger   *logging.Logger
	recorder metrics.Recorder

	mu      sync.RWMutex
	manager *manager.Manager
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger passed to the manager.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithRecorder sets the metrics recorder passed to the manager.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scanner) { s.recorder = r }
}

// New creates an uninitialized plugin.
func New(cfg manager.Config, opts ...Option) *Scanner {
	s := &Scanner{config: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Describe returns the plugin descriptor.
func (s *Scanner) Describe() host.Descriptor {
	return Describe()
}

// Initialize builds the manager publishing to sink. Calling it again replaces
// a stopped manager; a running one is left untouched.
func (s *Scanner) Initialize(sink host.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manager != nil && s.manager.IsRunning() {
		return nil
	}
	s.manager = manager.New(s.config, sink,
		manager.WithLogger(s.logger),
		manager.WithRecorder(s.recorder))
	return nil
}

// Start starts the manager. It returns false when not initialized, already
// running or when the dictionary cannot be loaded.
func (s *Scanner) Start() bool {
	m := s.Manager()
	if m == nil {
		return false
	}
	return m.Start() == nil
}

// Stop stops the manager. It returns false when it was not running.
func (s *Scanner) Stop() bool {
	m := s.Manager()
	if m == nil {
		return false
	}
	return m.Stop() == nil
}

// OnRequest queues the request's origin for scanning. It never returns rows;
// hits are published asynchronously through the sink.
func (s *Scanner) OnRequest(ctx host.Context, _ *host.HTTPRequest) host.RowBatch {
	if m := s.Manager(); m != nil {
		m.AddTarget(ctx)
	}
	return nil
}

// OnResponse is not used by the scanner.
func (s *Scanner) OnResponse(host.Context, *host.HTTPResponse) host.RowBatch {
	return nil
}

// AddTargetURL queues the origin of raw for scanning. It reports whether the
// origin was new.
func (s *Scanner) AddTargetURL(raw string) (bool, error) {
	m := s.Manager()
	if m == nil {
		return false, errors.ErrNotRunning(componentName)
	}
	return m.AddTargetURL(raw)
}

// Status returns the manager status; ok is false before Initialize.
func (s *Scanner) Status() (status manager.Status, ok bool) {
	m := s.Manager()
	if m == nil {
		return manager.Status{}, false
	}
	return m.Status(), true
}

// Manager returns the underlying manager, or nil before Initialize.
func (s *Scanner) Manager() *manager.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager
}
